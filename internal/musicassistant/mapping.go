package musicassistant

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/msaudio/audioserver-go/internal/ident"
	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// mapper turns Music Assistant items into the shapes the command surface
// speaks. It needs the icon proxy address to make non-public artwork
// reachable for the miniserver UI.
type mapper struct {
	iconHost string
	iconPort string
}

// canonicalProvider translates the MA provider domain into the identifier
// grammar's provider segment. MA's own library is "local" everywhere else in
// this server.
func canonicalProvider(p string) string {
	if p == "" || p == "library" || p == "builtin" {
		return "local"
	}
	return p
}

// maProviderArg is the inverse: the provider argument MA commands expect.
func maProviderArg(canonical string) string {
	if canonical == "" || canonical == "local" {
		return "library"
	}
	return canonical
}

// canonicalPath builds the canonical audiopath for an item.
func canonicalPath(item *MediaItem) string {
	if item == nil {
		return ""
	}
	return ident.BuildLibraryURI(item.MediaType, item.ItemID, canonicalProvider(item.Provider))
}

func artistLine(item *MediaItem) string {
	if item == nil || len(item.Artists) == 0 {
		return ""
	}
	names := make([]string, 0, len(item.Artists))
	for _, a := range item.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

func albumName(item *MediaItem) string {
	if item == nil || item.Album == nil {
		return ""
	}
	return item.Album.Name
}

func durationSeconds(d float64) int {
	if d <= 0 {
		return 0
	}
	return int(d)
}

// image picks the first artwork. Remote paths pass through; provider-local
// paths are routed via the MA image proxy so the UI can fetch them.
func (m mapper) image(item *MediaItem) string {
	if item == nil {
		return ""
	}
	for _, img := range item.Metadata.Images {
		if img.Path == "" {
			continue
		}
		if img.Remote {
			return img.Path
		}
		if m.iconHost == "" {
			continue
		}
		return fmt.Sprintf("http://%s:%s/imageproxy?provider=%s&path=%s",
			m.iconHost, m.iconPort, url.QueryEscape(img.Provider), url.QueryEscape(img.Path))
	}
	if item.Album != nil && item.Album != item {
		return m.image(item.Album)
	}
	return ""
}

func audioTypeFor(item *MediaItem) player.AudioType {
	if item == nil {
		return player.AudioTypeFile
	}
	switch item.MediaType {
	case "radio":
		return player.AudioTypeRadio
	case "playlist":
		return player.AudioTypePlaylist
	default:
		return player.AudioTypeForPath(canonicalPath(item))
	}
}

// folderItem maps one browse result. Albums and artists browse as folders,
// playlists as playlist entries, everything else as playable files.
func (m mapper) folderItem(item MediaItem) provider.FolderItem {
	path := canonicalPath(&item)
	out := provider.FolderItem{
		ID:        path,
		Name:      item.Name,
		Title:     item.Name,
		Artist:    artistLine(&item),
		Album:     albumName(&item),
		CoverURL:  m.image(&item),
		AudioPath: path,
		AudioType: audioTypeFor(&item),
		Duration:  durationSeconds(item.Duration),
	}
	switch item.MediaType {
	case "album":
		out.Type = provider.ItemTypeFolder
		out.ContentType = "Albums"
	case "artist":
		out.Type = provider.ItemTypeFolder
		out.ContentType = "Artists"
	case "playlist":
		out.Type = provider.ItemTypePlaylist
	default:
		out.Type = provider.ItemTypeFile
	}
	return out
}

// stationItem maps a radio to the folder-item shape used on the radio
// browse surface.
func (m mapper) stationItem(item MediaItem) provider.FolderItem {
	path := canonicalPath(&item)
	return provider.FolderItem{
		ID:        ident.BuildRadioKey(canonicalProvider(item.Provider), item.ItemID),
		Name:      item.Name,
		Type:      provider.ItemTypeFile,
		Station:   item.Name,
		CoverURL:  m.image(&item),
		AudioPath: path,
		AudioType: player.AudioTypeRadio,
	}
}

// playlistEntry maps a playlist for the getplaylists listing.
func (m mapper) playlistEntry(item MediaItem) provider.PlaylistItem {
	return provider.PlaylistItem{
		ID:        ident.BuildPlaylistURI(item.ItemID, canonicalProvider(item.Provider)),
		Name:      item.Name,
		CoverURL:  m.image(&item),
		AudioPath: canonicalPath(&item),
		AudioType: player.AudioTypePlaylist,
		Owner:     item.Owner,
		Type:      provider.ItemTypePlaylist,
	}
}

// playlistTrack maps one track inside a playlist. Tracks without artwork
// inherit the playlist cover.
func (m mapper) playlistTrack(item MediaItem, fallbackCover string) provider.PlaylistItem {
	cover := m.image(&item)
	if cover == "" {
		cover = fallbackCover
	}
	path := canonicalPath(&item)
	return provider.PlaylistItem{
		ID:        path,
		Name:      item.Name,
		Title:     item.Name,
		Artist:    artistLine(&item),
		Album:     albumName(&item),
		CoverURL:  cover,
		AudioPath: path,
		AudioType: player.AudioTypeForPath(path),
		Duration:  durationSeconds(item.Duration),
		Type:      provider.ItemTypeFile,
	}
}

// favorite maps one favorite-category item. Items that produce no playable
// audiopath are dropped by the caller.
func (m mapper) favorite(item MediaItem) (provider.FavoriteItem, bool) {
	path := canonicalPath(&item)
	if path == "" || item.ItemID == "" {
		return provider.FavoriteItem{}, false
	}
	fav := provider.FavoriteItem{
		Name:      item.Name,
		Title:     item.Name,
		Artist:    artistLine(&item),
		Album:     albumName(&item),
		CoverURL:  m.image(&item),
		AudioPath: path,
		Type:      int(audioTypeFor(&item)),
		Service:   item.MediaType,
		Provider:  canonicalProvider(item.Provider),
		RawID:     item.ItemID,
		Duration:  durationSeconds(item.Duration),
		Owner:     item.Owner,
		SourceID:  path,
	}
	if item.MediaType == "radio" {
		fav.Station = item.Name
	}
	return fav, true
}

// searchSection maps a category hit list for globalsearch.
func (m mapper) searchSection(items []MediaItem, limit int) provider.SearchSection {
	mapped := make([]provider.FolderItem, 0, len(items))
	for _, item := range items {
		mapped = append(mapped, m.folderItem(item))
	}
	total := len(mapped)
	if limit > 0 && len(mapped) > limit {
		mapped = mapped[:limit]
	}
	return provider.SearchSection{Items: mapped, TotalItems: total}
}

// stationSection maps radio hits for globalsearch in the same shape the
// radio browse surface serves, linked back into that surface.
func (m mapper) stationSection(items []MediaItem, limit int, link string) provider.SearchSection {
	mapped := make([]provider.FolderItem, 0, len(items))
	for _, item := range items {
		mapped = append(mapped, m.stationItem(item))
	}
	total := len(mapped)
	if limit > 0 && len(mapped) > limit {
		mapped = mapped[:limit]
	}
	return provider.SearchSection{Items: mapped, TotalItems: total, Link: link}
}
