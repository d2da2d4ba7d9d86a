package command

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

// NormalizePayload folds the accepted payload transports into one record: a
// JSON object, a URL-encoded string, or an array whose first element is
// either of those. Bare scalars that are not form-encoded land under the
// "value" key so handlers can treat them like a trailing argument.
func NormalizePayload(raw []byte) (map[string]any, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return recordFromString(text)
	}
	return recordFromValue(decoded)
}

func recordFromValue(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		return recordFromValue(t[0])
	case string:
		return recordFromString(t)
	case float64, bool:
		return map[string]any{"value": t}, nil
	default:
		return nil, apperrors.NewValidationError("unsupported payload shape")
	}
}

// recordFromString decodes form-encoded text. A token without '=' is a bare
// value, not a form; it keeps its text under "value".
func recordFromString(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, "=") {
		if v, err := url.QueryUnescape(s); err == nil {
			s = v
		}
		return map[string]any{"value": s}, nil
	}
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, apperrors.NewValidationError("bad payload encoding: " + err.Error())
	}
	out := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		} else {
			out[key] = ""
		}
	}
	return out, nil
}

// payloadString reads a payload field as text. Numbers format without a
// trailing .0 so "volume": 5 and "volume": "5" behave the same.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	return stringify(payload[key])
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
