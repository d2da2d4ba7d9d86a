package provider

import "github.com/msaudio/audioserver-go/internal/player"

// Browse item discriminators used on the "type" field of folder listings.
const (
	ItemTypeFolder   = 1
	ItemTypeFile     = 2
	ItemTypePlaylist = 3
)

// BaseFavoriteID offsets favorite ids so they stay disjoint from every
// other numeric id the miniserver assigns: id = BaseFavoriteID + slot - 1.
const BaseFavoriteID uint = 1_000_000

// RadioEntry is one radio service root shown by getradios.
type RadioEntry struct {
	Cmd  string `json:"cmd"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Root string `json:"root"`
}

// FolderItem is one entry of a service or media folder listing. AudioPath
// always carries the canonical identifier grammar.
type FolderItem struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        int              `json:"type"`
	ContentType string           `json:"contentType,omitempty"`
	Title       string           `json:"title,omitempty"`
	Artist      string           `json:"artist,omitempty"`
	Album       string           `json:"album,omitempty"`
	Station     string           `json:"station,omitempty"`
	CoverURL    string           `json:"coverurl,omitempty"`
	AudioPath   string           `json:"audiopath,omitempty"`
	AudioType   player.AudioType `json:"audiotype"`
	Duration    int              `json:"duration,omitempty"`
}

// FolderResponse is a paginated folder view. Start echoes the requested
// offset; TotalItems is the full count when known.
type FolderResponse struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Service    string       `json:"service,omitempty"`
	Start      int          `json:"start"`
	TotalItems int          `json:"totalitems"`
	Items      []FolderItem `json:"items"`
}

// EmptyFolder is what unknown folder ids resolve to: presence, not error.
func EmptyFolder(id string, start int) *FolderResponse {
	return &FolderResponse{ID: id, Start: start, Items: []FolderItem{}}
}

// PlaylistItem is one playlist, or one track inside a playlist.
type PlaylistItem struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Title     string           `json:"title,omitempty"`
	Artist    string           `json:"artist,omitempty"`
	Album     string           `json:"album,omitempty"`
	CoverURL  string           `json:"coverurl,omitempty"`
	AudioPath string           `json:"audiopath"`
	AudioType player.AudioType `json:"audiotype"`
	Duration  int              `json:"duration,omitempty"`
	Owner     string           `json:"owner,omitempty"`
	Type      int              `json:"type"`
}

// PlaylistResponse is a paginated playlist (or playlist-content) view.
type PlaylistResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Start      int            `json:"start"`
	TotalItems int            `json:"totalitems"`
	Items      []PlaylistItem `json:"items"`
}

// EmptyPlaylists is the unknown-id playlist response.
func EmptyPlaylists(id string, start int) *PlaylistResponse {
	return &PlaylistResponse{ID: id, Start: start, Items: []PlaylistItem{}}
}

// FavoriteItem matches the persisted favorite shape, so provider-sourced
// favorites and the per-zone favorite files speak the same dialect.
type FavoriteItem struct {
	ID        uint   `json:"id"`
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Album     string `json:"album,omitempty"`
	CoverURL  string `json:"coverurl,omitempty"`
	AudioPath string `json:"audiopath"`
	Type      int    `json:"type"`
	Service   string `json:"service,omitempty"`
	Provider  string `json:"provider,omitempty"`
	RawID     string `json:"rawId,omitempty"`
	Duration  int    `json:"duration,omitempty"`
	Station   string `json:"station,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Username  string `json:"username,omitempty"`
	Plus      bool   `json:"plus"`
	SourceID  string `json:"sourceId,omitempty"`
}

// FavoriteResponse is the favorites envelope, also used as the on-disk file
// layout for per-zone favorites.
type FavoriteResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Start      int            `json:"start"`
	TotalItems int            `json:"totalitems"`
	TS         int64          `json:"ts,omitempty"`
	Items      []FavoriteItem `json:"items"`
}

// RecentItem is one recently-played entry.
type RecentItem struct {
	Title     string           `json:"title,omitempty"`
	Artist    string           `json:"artist,omitempty"`
	Album     string           `json:"album,omitempty"`
	Station   string           `json:"station,omitempty"`
	CoverURL  string           `json:"coverurl,omitempty"`
	AudioPath string           `json:"audiopath"`
	AudioType player.AudioType `json:"audiotype"`
	PlayedAt  string           `json:"played_at,omitempty"`
}

// RecentResponse is the recently-played envelope.
type RecentResponse struct {
	TotalItems int          `json:"totalitems"`
	Items      []RecentItem `json:"items"`
}

// SearchSection is one category's slice of a global search result.
type SearchSection struct {
	Items      []FolderItem `json:"items"`
	TotalItems int          `json:"totalitems"`
	Link       string       `json:"link,omitempty"`
}

// SearchResults maps category name (tracks, albums, ...) to its section.
type SearchResults map[string]SearchSection
