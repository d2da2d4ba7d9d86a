// Package ident implements the canonical media-identifier grammar shared by
// every component. All media ids crossing package boundaries are built and
// parsed here; external strings enter only through Parse.
package ident

import (
	"net/url"
	"strings"
)

// Identifier kinds understood by the grammar. The plural forms address
// library category roots rather than single items.
const (
	KindAlbum    = "album"
	KindArtist   = "artist"
	KindTrack    = "track"
	KindPlaylist = "playlist"
	KindRadio    = "radio"
	KindAlbums   = "albums"
	KindArtists  = "artists"
	KindTracks   = "tracks"
)

var knownKinds = map[string]bool{
	KindAlbum:    true,
	KindArtist:   true,
	KindTrack:    true,
	KindPlaylist: true,
	KindRadio:    true,
	KindAlbums:   true,
	KindArtists:  true,
	KindTracks:   true,
}

// trackSchemes are third-party schemes whose track URIs normalize into the
// local library namespace and must round-trip exactly.
var trackSchemes = map[string]bool{
	"apple_music": true,
	"tidal":       true,
	"deezer":      true,
}

// Identifier is the parsed form of any canonical media id. Zero value means
// "nothing recognised".
type Identifier struct {
	Kind     string
	Provider string
	ItemID   string
}

// IsZero reports whether nothing was recognised.
func (id Identifier) IsZero() bool {
	return id.Kind == "" && id.Provider == "" && id.ItemID == ""
}

// Parse recognises the library://, library:, playlist:, radio: and bare
// <kind>:<provider>:<id> forms. Empty input returns the zero Identifier;
// malformed percent sequences degrade to the raw text instead of failing.
func Parse(s string) Identifier {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}
	}

	if rest, ok := strings.CutPrefix(s, "library://"); ok {
		return parseLibraryURL(rest)
	}
	if scheme, rest, ok := splitScheme(s); ok && trackSchemes[scheme] {
		if itemID, ok2 := strings.CutPrefix(rest, "track/"); ok2 && itemID != "" {
			return Identifier{Kind: KindTrack, Provider: "local", ItemID: scheme + ":" + itemID}
		}
	}

	parts := strings.Split(s, ":")
	switch {
	case parts[0] == "library" && len(parts) >= 4:
		return Identifier{
			Provider: decodeSegment(parts[1]),
			Kind:     decodeSegment(parts[2]),
			ItemID:   joinSegments(parts[3:]),
		}
	case knownKinds[parts[0]] && len(parts) >= 3:
		return Identifier{
			Kind:     parts[0],
			Provider: decodeSegment(parts[1]),
			ItemID:   joinSegments(parts[2:]),
		}
	case knownKinds[parts[0]] && len(parts) == 2:
		// Provider-less shorthand, e.g. "playlist:42".
		return Identifier{Kind: parts[0], ItemID: decodeSegment(parts[1])}
	}
	return Identifier{}
}

func parseLibraryURL(rest string) Identifier {
	pathPart := rest
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		pathPart = rest[:i]
		query = rest[i+1:]
	}
	kind, itemID, _ := strings.Cut(pathPart, "/")
	provider := ""
	if query != "" {
		if vals, err := url.ParseQuery(query); err == nil {
			provider = vals.Get("provider")
		}
	}
	return Identifier{
		Kind:     decodeSegment(kind),
		Provider: provider,
		ItemID:   decodeSegment(itemID),
	}
}

// BuildLibraryURI emits library:<provider>:<kind>:<id> with every segment
// URL-encoded so embedded colons survive parsing. An empty provider defaults
// to "local".
func BuildLibraryURI(kind, id, provider string) string {
	if provider == "" {
		provider = "local"
	}
	return "library:" + encodeSegment(provider) + ":" + encodeSegment(kind) + ":" + encodeSegment(id)
}

// BuildPlaylistURI emits playlist:<provider>:<id>.
func BuildPlaylistURI(id, provider string) string {
	if provider == "" {
		provider = "local"
	}
	return "playlist:" + encodeSegment(provider) + ":" + encodeSegment(id)
}

// BuildRadioKey emits radio:<provider>:<id>.
func BuildRadioKey(provider, id string) string {
	if provider == "" {
		provider = "local"
	}
	return "radio:" + encodeSegment(provider) + ":" + encodeSegment(id)
}

func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.Index(s, "://")
	if i <= 0 {
		return "", "", false
	}
	return strings.ToLower(s[:i]), s[i+3:], true
}

func encodeSegment(s string) string {
	return url.QueryEscape(s)
}

// decodeSegment degrades to the raw text on malformed escapes.
func decodeSegment(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}

// joinSegments decodes each colon-separated piece individually and rejoins,
// so both encoded and raw embedded colons yield the same item id.
func joinSegments(parts []string) string {
	decoded := make([]string, len(parts))
	for i, p := range parts {
		decoded[i] = decodeSegment(p)
	}
	return strings.Join(decoded, ":")
}
