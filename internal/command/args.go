package command

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

// argInt parses a numeric argument. Values beyond the integer range clamp
// to the nearest representable value, fractions truncate, and anything
// non-numeric is a validation error, NaN and infinities included.
func argInt(name, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, apperrors.NewValidationError(name + " is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return int(n), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		// ParseInt already pinned n to the range edge.
		return int(n), nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperrors.NewValidationError(name + " is not a number: " + strconv.Quote(s))
	}
	return int(f), nil
}

// argIntDefault parses an optional numeric argument.
func argIntDefault(name, s string, def int) (int, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return argInt(name, s)
}

// argOrValue prefers the positional argument and falls back to the
// payload's bare value, so `volume/5` and `volume` with payload "5" are the
// same command.
func argOrValue(req *Request, i int) string {
	if arg := req.Arg(i); arg != "" {
		return arg
	}
	return payloadString(req.Payload, "value")
}

// idSet splits comma lists into unique ids, keeping first-occurrence order.
func idSet(name string, tokens []string) ([]int, error) {
	seen := make(map[int]bool)
	out := []int{}
	for _, token := range tokens {
		for _, part := range strings.Split(token, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := argInt(name, part)
			if err != nil {
				return nil, err
			}
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// favoriteID parses a favorite id argument.
func favoriteID(s string) (uint, error) {
	n, err := argInt("favorite id", s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, apperrors.NewValidationError("favorite id must not be negative")
	}
	return uint(n), nil
}

// displayText percent-decodes a path argument meant for humans, like a
// favorite title or a search query. Malformed escapes degrade to the raw
// text instead of failing the command.
func displayText(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}
