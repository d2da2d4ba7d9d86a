package musicassistant

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
)

func TestCanonicalProvider(t *testing.T) {
	require.Equal(t, "local", canonicalProvider(""))
	require.Equal(t, "local", canonicalProvider("library"))
	require.Equal(t, "local", canonicalProvider("builtin"))
	require.Equal(t, "spotify", canonicalProvider("spotify"))

	require.Equal(t, "library", maProviderArg(""))
	require.Equal(t, "library", maProviderArg("local"))
	require.Equal(t, "spotify", maProviderArg("spotify"))
}

func TestCanonicalPath(t *testing.T) {
	require.Empty(t, canonicalPath(nil))
	require.Equal(t, "library:local:track:42", canonicalPath(&MediaItem{
		ItemID: "42", Provider: "library", MediaType: "track",
	}))
	require.Equal(t, "library:spotify:album:7x9", canonicalPath(&MediaItem{
		ItemID: "7x9", Provider: "spotify", MediaType: "album",
	}))
}

func TestArtistLine(t *testing.T) {
	require.Empty(t, artistLine(nil))
	require.Empty(t, artistLine(&MediaItem{}))
	require.Equal(t, "Can, Neu!", artistLine(&MediaItem{
		Artists: []Artist{{Name: "Can"}, {Name: ""}, {Name: "Neu!"}},
	}))
}

func TestDurationSeconds(t *testing.T) {
	require.Zero(t, durationSeconds(0))
	require.Zero(t, durationSeconds(-3))
	require.Equal(t, 187, durationSeconds(187.9))
}

func TestMapper_ImageSelection(t *testing.T) {
	m := mapper{iconHost: "10.0.0.5", iconPort: "8095"}

	require.Empty(t, m.image(nil))
	require.Empty(t, m.image(&MediaItem{}))

	remote := &MediaItem{Metadata: MediaItemMetadata{Images: []MediaItemImage{
		{Path: "https://cdn.example/cover.jpg", Remote: true},
	}}}
	require.Equal(t, "https://cdn.example/cover.jpg", m.image(remote))

	local := &MediaItem{Metadata: MediaItemMetadata{Images: []MediaItemImage{
		{Path: "spotify://image/ab12", Provider: "spotify", Remote: false},
	}}}
	require.Equal(t,
		"http://10.0.0.5:8095/imageproxy?provider=spotify&path=spotify%3A%2F%2Fimage%2Fab12",
		m.image(local))

	// Without a proxy host only remote artwork is usable.
	bare := mapper{}
	require.Empty(t, bare.image(local))

	// Tracks without artwork inherit the album cover.
	track := &MediaItem{Album: remote}
	require.Equal(t, "https://cdn.example/cover.jpg", m.image(track))
}

func TestMapper_FolderItemShapes(t *testing.T) {
	m := mapper{}

	album := m.folderItem(MediaItem{ItemID: "9", Provider: "library", MediaType: "album", Name: "Tago Mago"})
	require.Equal(t, provider.ItemTypeFolder, album.Type)
	require.Equal(t, "Albums", album.ContentType)
	require.Equal(t, "library:local:album:9", album.ID)

	artist := m.folderItem(MediaItem{ItemID: "4", MediaType: "artist", Name: "Can"})
	require.Equal(t, provider.ItemTypeFolder, artist.Type)
	require.Equal(t, "Artists", artist.ContentType)

	playlist := m.folderItem(MediaItem{ItemID: "p1", MediaType: "playlist", Name: "Krautrock"})
	require.Equal(t, provider.ItemTypePlaylist, playlist.Type)
	require.Equal(t, player.AudioTypePlaylist, playlist.AudioType)

	track := m.folderItem(MediaItem{
		ItemID: "42", MediaType: "track", Name: "Halleluhwah",
		Duration: 1098.6,
		Artists:  []Artist{{Name: "Can"}},
		Album:    &MediaItem{Name: "Tago Mago"},
	})
	require.Equal(t, provider.ItemTypeFile, track.Type)
	require.Equal(t, player.AudioTypeFile, track.AudioType)
	require.Equal(t, "Can", track.Artist)
	require.Equal(t, "Tago Mago", track.Album)
	require.Equal(t, 1098, track.Duration)
	require.Equal(t, track.ID, track.AudioPath)
}

func TestMapper_StationItem(t *testing.T) {
	m := mapper{}
	station := m.stationItem(MediaItem{ItemID: "77", Provider: "tunein", MediaType: "radio", Name: "FM4"})

	require.Equal(t, "radio:tunein:77", station.ID)
	require.Equal(t, "FM4", station.Station)
	require.Equal(t, player.AudioTypeRadio, station.AudioType)
	require.Equal(t, "library:tunein:radio:77", station.AudioPath)
}

func TestMapper_PlaylistTrackInheritsCover(t *testing.T) {
	m := mapper{}

	bare := m.playlistTrack(MediaItem{ItemID: "1", MediaType: "track", Name: "One"}, "http://cover/pl.jpg")
	require.Equal(t, "http://cover/pl.jpg", bare.CoverURL)

	own := m.playlistTrack(MediaItem{
		ItemID: "2", MediaType: "track", Name: "Two",
		Metadata: MediaItemMetadata{Images: []MediaItemImage{{Path: "https://cdn/2.jpg", Remote: true}}},
	}, "http://cover/pl.jpg")
	require.Equal(t, "https://cdn/2.jpg", own.CoverURL)
}

func TestMapper_FavoriteMapping(t *testing.T) {
	m := mapper{}

	_, ok := m.favorite(MediaItem{MediaType: "track", Name: "No ID"})
	require.False(t, ok)

	fav, ok := m.favorite(MediaItem{ItemID: "42", Provider: "library", MediaType: "track", Name: "Halleluhwah"})
	require.True(t, ok)
	require.Equal(t, "library:local:track:42", fav.AudioPath)
	require.Equal(t, fav.AudioPath, fav.SourceID)
	require.Equal(t, "42", fav.RawID)
	require.Equal(t, "local", fav.Provider)
	require.Equal(t, "track", fav.Service)
	require.Empty(t, fav.Station)

	radio, ok := m.favorite(MediaItem{ItemID: "77", Provider: "tunein", MediaType: "radio", Name: "FM4"})
	require.True(t, ok)
	require.Equal(t, "FM4", radio.Station)
	require.Equal(t, int(player.AudioTypeRadio), radio.Type)
}

func TestMapper_SearchSectionLimits(t *testing.T) {
	m := mapper{}
	items := []MediaItem{
		{ItemID: "1", MediaType: "track", Name: "One"},
		{ItemID: "2", MediaType: "track", Name: "Two"},
		{ItemID: "3", MediaType: "track", Name: "Three"},
	}

	section := m.searchSection(items, 2)
	require.Len(t, section.Items, 2)
	require.Equal(t, 3, section.TotalItems)

	all := m.searchSection(items, 0)
	require.Len(t, all.Items, 3)
}
