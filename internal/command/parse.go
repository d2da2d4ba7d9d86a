// Package command parses the miniserver command grammar and routes parsed
// commands to the zone runtime or the media-provider surface. This is the
// only layer that turns tagged errors into wire responses; everything below
// it either recovers locally or surfaces an apperrors kind.
package command

import (
	"strconv"
	"strings"

	"github.com/msaudio/audioserver-go/internal/apperrors"
)

// Target says which surface a parsed command addresses.
type Target int

const (
	// TargetZone is audio/<zoneId>/<verb>/..., handled by the zone runtime.
	TargetZone Target = iota
	// TargetCfg is audio/cfg/<verb>/..., handled by the media surface.
	TargetCfg
)

// Request is one parsed command. Raw holds the command string as received,
// minus a single leading slash, and is echoed verbatim in every response.
type Request struct {
	Raw    string
	Target Target
	ZoneID int
	Verb   string
	Args   []string

	// Payload is the normalized command payload, nil when none was sent.
	Payload map[string]any
}

// Arg returns the positional argument at i or "".
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Parse splits a slash-separated command string. Verbs are lowercased so
// groupJoin and groupjoin land in the same handler; arguments keep their
// exact spelling because ids and urls are case and encoding sensitive.
func Parse(raw string) (*Request, error) {
	cmd := strings.TrimPrefix(raw, "/")
	segments := strings.Split(cmd, "/")
	if len(segments) < 2 || segments[0] != "audio" {
		return nil, apperrors.NewValidationError("not an audio command: " + strconv.Quote(raw))
	}

	req := &Request{Raw: cmd}

	if strings.EqualFold(segments[1], "cfg") {
		if len(segments) < 3 || segments[2] == "" {
			return nil, apperrors.NewValidationError("cfg command needs a verb")
		}
		req.Target = TargetCfg
		req.Verb = strings.ToLower(segments[2])
		req.Args = trimTrailing(segments[3:])
		return req, nil
	}

	zoneID, err := strconv.Atoi(segments[1])
	if err != nil {
		return nil, apperrors.NewValidationError("bad zone id " + strconv.Quote(segments[1]))
	}
	if len(segments) < 3 || segments[2] == "" {
		return nil, apperrors.NewValidationError("zone command needs a verb")
	}

	req.Target = TargetZone
	req.ZoneID = zoneID
	req.Verb = strings.ToLower(segments[2])
	req.Args = trimTrailing(segments[3:])

	// queue/play/<idx> is the one two-segment verb in the grammar.
	if req.Verb == "queue" && strings.EqualFold(req.Arg(0), "play") {
		req.Verb = "queueplay"
		req.Args = req.Args[1:]
	}
	return req, nil
}

// trimTrailing drops empty trailing segments left by trailing slashes.
// Interior empties survive: they are part of split urls like http://.
func trimTrailing(args []string) []string {
	for len(args) > 0 && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	return args
}
