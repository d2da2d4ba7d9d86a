package ident

import (
	"net/url"
	"strings"
)

// Normalize bridges vendor-facing URIs into the canonical internal grammar.
// Canonical inputs pass through unchanged, as does anything unrecognised.
//
// Handled families:
//   - library://<kind>/<id>?provider=<p>  ->  library:<p>:<kind>:<id>
//   - <scheme>://track/<id>               ->  library:local:track:<scheme>:<id>
//     for the known third-party track schemes
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	if scheme, rest, ok := splitScheme(s); ok {
		if trackSchemes[scheme] {
			if itemID, ok2 := strings.CutPrefix(rest, "track/"); ok2 && itemID != "" {
				return "library:local:track:" + scheme + ":" + itemID
			}
			return s
		}
		if scheme == "library" {
			id := parseLibraryURL(rest)
			if id.Kind == "" {
				return s
			}
			out := "library:" + encodeSegment(providerOrLocal(id.Provider)) + ":" +
				encodeSegment(id.Kind) + ":" + encodeSegment(id.ItemID)
			if id.Provider == "" {
				// Keep provider absence representable for lossless round-trips.
				out = "library::" + encodeSegment(id.Kind) + ":" + encodeSegment(id.ItemID)
			}
			return out
		}
		return s
	}
	return s
}

// Denormalize converts canonical ids back to the vendor-facing URI family.
// Non-library forms (playlist:, radio:, foreign URIs) pass through unchanged,
// which keeps the function safe to apply at every vendor boundary.
func Denormalize(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "library:") || strings.HasPrefix(s, "library://") {
		return s
	}

	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return s
	}
	provider := decodeSegment(parts[1])
	kind := decodeSegment(parts[2])
	itemID := joinSegments(parts[3:])

	if provider == "local" && kind == KindTrack {
		if scheme, rest, found := strings.Cut(itemID, ":"); found && trackSchemes[scheme] {
			return scheme + "://track/" + rest
		}
	}

	out := "library://" + encodeSegment(kind) + "/" + encodeSegment(itemID)
	if provider != "" {
		out += "?provider=" + url.QueryEscape(provider)
	}
	return out
}

// ToPlaylistCommandURI coerces any recognised form into the URI used by the
// "play this playlist" command path. When s yields no usable id the fallback
// id is used; an empty result means the caller has nothing to play.
func ToPlaylistCommandURI(s, provider, fallbackID string) string {
	id := Parse(s)
	itemID := id.ItemID
	if itemID == "" {
		itemID = fallbackID
	}
	if itemID == "" {
		if s != "" && strings.Contains(s, "://") {
			// Already a vendor URI; hand it over untouched.
			return s
		}
		return ""
	}
	p := id.Provider
	if p == "" {
		p = provider
	}
	out := "library://playlist/" + encodeSegment(itemID)
	if p != "" && p != "local" {
		out += "?provider=" + url.QueryEscape(p)
	}
	return out
}

func providerOrLocal(p string) string {
	if p == "" {
		return "local"
	}
	return p
}
