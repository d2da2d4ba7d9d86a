package musicassistant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/msaudio/audioserver-go/internal/ident"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/provider"
)

const (
	libraryFetchLimit  = 500
	defaultSearchLimit = 25
	defaultRecentLimit = 20
)

// Root folder tokens of the media browse tree.
const (
	folderRoot      = "start"
	folderAlbums    = "albums"
	folderArtists   = "artists"
	folderTracks    = "tracks"
	folderPlaylists = "playlists"
)

// Radio service buckets shown by getradios.
const (
	radioServiceLocal  = "local"
	radioServiceCustom = "custom"
)

var (
	_ provider.MediaProvider  = (*maProvider)(nil)
	_ provider.FavoriteSource = (*maProvider)(nil)
	_ provider.RecentSource   = (*maProvider)(nil)
	_ provider.Searcher       = (*maProvider)(nil)
)

// maProvider serves the browse, playlist, radio, favorite, recent and
// search surfaces from the shared client.
type maProvider struct {
	svc    *Service
	logger zerolog.Logger

	folders   *folderCache
	radios    *radioCache
	playlists *playlistCache
}

func newProvider(svc *Service) *maProvider {
	cfg := svc.cfg
	return &maProvider{
		svc:       svc,
		logger:    log.WithComponent("musicassistant").With().Str("facet", "provider").Logger(),
		folders:   newFolderCache(),
		radios:    &radioCache{ttl: time.Duration(cfg.MARadioTTLSeconds) * time.Second},
		playlists: &playlistCache{refreshEvery: time.Duration(cfg.MAPlaylistRefreshSeconds) * time.Second},
	}
}

func (p *maProvider) Key() string { return "musicassistant" }

// GetRadios lists the radio roots. Both synthetic buckets are always
// present so the UI can offer them even while the library is still loading.
func (p *maProvider) GetRadios(ctx context.Context) ([]provider.RadioEntry, error) {
	return []provider.RadioEntry{
		{Cmd: radioServiceLocal, Name: "Radio Favorites", Root: folderRoot},
		{Cmd: radioServiceCustom, Name: "Custom Streams", Root: folderRoot},
	}, nil
}

// GetServiceFolder lists the stations of one radio bucket. Stations from
// the URL provider count as custom streams, everything else as local.
func (p *maProvider) GetServiceFolder(ctx context.Context, service, folderID, user string, offset, limit int) (*provider.FolderResponse, error) {
	switch service {
	case radioServiceLocal, radioServiceCustom:
	default:
		return provider.EmptyFolder(folderID, offset), nil
	}

	items, err := p.radios.get(ctx, p.fetchRadios)
	if err != nil {
		p.logger.Warn().Err(err).Str("service", service).Msg("radio listing failed")
		return provider.EmptyFolder(folderID, offset), nil
	}

	custom := service == radioServiceCustom
	mapped := make([]provider.FolderItem, 0, len(items))
	for _, item := range items {
		if isCustomStream(&item) != custom {
			continue
		}
		mapped = append(mapped, p.svc.m.stationItem(item))
	}

	return &provider.FolderResponse{
		ID:         folderID,
		Name:       service,
		Service:    service,
		Start:      offset,
		TotalItems: len(mapped),
		Items:      pageSlice(mapped, offset, limit),
	}, nil
}

// ResolveStation finds one station by raw item id or canonical radio key.
func (p *maProvider) ResolveStation(ctx context.Context, service, stationID string) (*provider.FolderItem, error) {
	items, err := p.radios.get(ctx, p.fetchRadios)
	if err != nil {
		p.logger.Warn().Err(err).Str("station", stationID).Msg("radio listing failed")
		return nil, nil
	}
	want := ident.Parse(stationID)
	for _, item := range items {
		if radioMatches(&item, stationID, want) {
			st := p.svc.m.stationItem(item)
			return &st, nil
		}
	}
	return nil, nil
}

func (p *maProvider) fetchRadios(ctx context.Context) ([]MediaItem, error) {
	var items []MediaItem
	err := p.svc.client.CallInto(ctx, "music/radios/library_items", map[string]any{
		"favorite": true,
		"limit":    libraryFetchLimit,
		"offset":   0,
	}, &items)
	if err != nil {
		return nil, err
	}
	p.fetchRadioDetails(ctx, items)
	return items, nil
}

// fetchRadioDetails upgrades the first few stations with their full item
// records, which carry artwork the list call omits.
func (p *maProvider) fetchRadioDetails(ctx context.Context, items []MediaItem) {
	for i := range items {
		if i >= p.svc.cfg.MARadioDetailCount {
			return
		}
		var full MediaItem
		err := p.svc.client.CallInto(ctx, "music/radios/get_radio", map[string]any{
			"item_id":  items[i].ItemID,
			"provider": maProviderArg(canonicalProvider(items[i].Provider)),
		}, &full)
		if err != nil {
			p.logger.Debug().Err(err).Str("item", items[i].ItemID).Msg("radio detail fetch failed")
			continue
		}
		if full.ItemID != "" {
			items[i] = full
		}
	}
}

// isCustomStream reports whether a radio came from the URL provider, i.e.
// was added by hand as a stream URL.
func isCustomStream(item *MediaItem) bool {
	if strings.HasPrefix(item.Provider, "url") {
		return true
	}
	for _, m := range item.ProviderMappings {
		if m.ProviderDomain == "url" {
			return true
		}
	}
	return false
}

func radioMatches(item *MediaItem, raw string, want ident.Identifier) bool {
	if item.ItemID == raw {
		return true
	}
	if ident.BuildRadioKey(canonicalProvider(item.Provider), item.ItemID) == raw {
		return true
	}
	return want.Kind == ident.KindRadio && want.ItemID == item.ItemID
}

// GetPlaylists serves the cached playlist list, fetching it on first use
// and refreshing it in the background afterwards.
func (p *maProvider) GetPlaylists(ctx context.Context, offset, limit int) (*provider.PlaylistResponse, error) {
	p.playlists.startRefresher(p.svc.client.Done(), p.svc.client.Connected, p.fetchPlaylists, p.logger)

	items, err := p.playlists.get(ctx, p.fetchPlaylists)
	if err != nil {
		p.logger.Warn().Err(err).Msg("playlist listing failed")
		return provider.EmptyPlaylists(folderPlaylists, offset), nil
	}

	mapped := make([]provider.PlaylistItem, 0, len(items))
	for _, item := range items {
		mapped = append(mapped, p.svc.m.playlistEntry(item))
	}
	return &provider.PlaylistResponse{
		ID:         folderPlaylists,
		Name:       "Playlists",
		Start:      offset,
		TotalItems: len(mapped),
		Items:      pageSlice(mapped, offset, limit),
	}, nil
}

func (p *maProvider) fetchPlaylists(ctx context.Context) ([]MediaItem, error) {
	var items []MediaItem
	err := p.svc.client.CallInto(ctx, "music/playlists/library_items", map[string]any{
		"limit":  libraryFetchLimit,
		"offset": 0,
	}, &items)
	return items, err
}

// GetPlaylistItems fetches playlist metadata and tracks in parallel and
// folds the playlist cover down into tracks without their own artwork.
func (p *maProvider) GetPlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*provider.PlaylistResponse, error) {
	itemID, prov, _ := itemRef(playlistID)
	if itemID == "" {
		return provider.EmptyPlaylists(playlistID, offset), nil
	}

	var meta MediaItem
	var tracks []MediaItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.svc.client.CallInto(gctx, "music/playlists/get_playlist", map[string]any{
			"item_id":  itemID,
			"provider": maProviderArg(prov),
		}, &meta)
	})
	g.Go(func() error {
		return p.svc.client.CallInto(gctx, "music/playlists/playlist_tracks", map[string]any{
			"item_id":  itemID,
			"provider": maProviderArg(prov),
		}, &tracks)
	})
	if err := g.Wait(); err != nil {
		p.logger.Warn().Err(err).Str("playlist", playlistID).Msg("playlist items failed")
		return provider.EmptyPlaylists(playlistID, offset), nil
	}

	cover := p.svc.m.image(&meta)
	mapped := make([]provider.PlaylistItem, 0, len(tracks))
	for _, track := range tracks {
		mapped = append(mapped, p.svc.m.playlistTrack(track, cover))
	}

	name := meta.Name
	if name == "" {
		name = playlistID
	}
	return &provider.PlaylistResponse{
		ID:         playlistID,
		Name:       name,
		Start:      offset,
		TotalItems: len(mapped),
		Items:      pageSlice(mapped, offset, limit),
	}, nil
}

// ResolvePlaylist answers from the cached list when it can and falls back
// to a direct lookup.
func (p *maProvider) ResolvePlaylist(ctx context.Context, service, playlistID string) (*provider.PlaylistItem, error) {
	itemID, prov, _ := itemRef(playlistID)
	if itemID == "" {
		return nil, nil
	}

	if items, err := p.playlists.get(ctx, p.fetchPlaylists); err == nil {
		for _, item := range items {
			if item.ItemID == itemID && canonicalProvider(item.Provider) == prov {
				entry := p.svc.m.playlistEntry(item)
				return &entry, nil
			}
		}
	}

	var meta MediaItem
	err := p.svc.client.CallInto(ctx, "music/playlists/get_playlist", map[string]any{
		"item_id":  itemID,
		"provider": maProviderArg(prov),
	}, &meta)
	if err != nil {
		p.logger.Warn().Err(err).Str("playlist", playlistID).Msg("playlist resolve failed")
		return nil, nil
	}
	if meta.ItemID == "" {
		return nil, nil
	}
	entry := p.svc.m.playlistEntry(meta)
	return &entry, nil
}

// GetMediaFolder lists one folder of the media tree: the synthetic root,
// a category listing, or the tracks of one album or artist.
func (p *maProvider) GetMediaFolder(ctx context.Context, folderID string, offset, limit int) (*provider.FolderResponse, error) {
	norm := normalizeFolder(folderID)
	items, name, err := p.folderItems(ctx, norm)
	if err != nil {
		p.logger.Warn().Err(err).Str("folder", folderID).Msg("folder listing failed")
		return provider.EmptyFolder(folderID, offset), nil
	}
	if items == nil {
		return provider.EmptyFolder(folderID, offset), nil
	}
	return &provider.FolderResponse{
		ID:         folderID,
		Name:       name,
		Start:      offset,
		TotalItems: len(items),
		Items:      pageSlice(items, offset, limit),
	}, nil
}

// ResolveMediaItem finds one item inside a folder. The folder cache answers
// warm lookups in O(1); a cold folder is fetched first. Canonical album,
// artist, track and playlist ids also resolve through their category
// listing when the folder id itself says nothing.
func (p *maProvider) ResolveMediaItem(ctx context.Context, folderID, itemID string) (*provider.FolderItem, error) {
	norm := normalizeFolder(folderID)

	if item, ok := p.folders.lookup(norm, itemID); ok {
		return &item, nil
	}
	if _, _, err := p.folderItems(ctx, norm); err != nil {
		p.logger.Warn().Err(err).Str("folder", folderID).Msg("folder fetch for resolve failed")
	} else if item, ok := p.folders.lookup(norm, itemID); ok {
		return &item, nil
	}

	if category, ok := categoryForItem(itemID); ok {
		if _, _, err := p.folderItems(ctx, category); err == nil {
			if item, ok := p.folders.lookup(category, itemID); ok {
				return &item, nil
			}
		}
	}
	return nil, nil
}

// folderItems returns the full listing for one normalized folder id, from
// cache when warm. A nil slice with nil error means "unknown folder".
func (p *maProvider) folderItems(ctx context.Context, folderID string) ([]provider.FolderItem, string, error) {
	if items, ok := p.folders.items(folderID); ok {
		return items, folderName(folderID), nil
	}

	switch folderID {
	case folderRoot:
		items := rootFolders()
		p.folders.put(folderID, items)
		return items, folderName(folderID), nil
	case folderAlbums, folderArtists, folderTracks, folderPlaylists:
		items, err := p.fetchCategory(ctx, folderID)
		if err != nil {
			return nil, "", err
		}
		p.folders.put(folderID, items)
		return items, folderName(folderID), nil
	}

	itemID, prov, kind := itemRef(folderID)
	var command string
	switch kind {
	case ident.KindAlbum:
		command = "music/albums/album_tracks"
	case ident.KindArtist:
		command = "music/artists/artist_tracks"
	default:
		return nil, "", nil
	}

	var tracks []MediaItem
	err := p.svc.client.CallInto(ctx, command, map[string]any{
		"item_id":  itemID,
		"provider": maProviderArg(prov),
	}, &tracks)
	if err != nil {
		return nil, "", err
	}
	mapped := make([]provider.FolderItem, 0, len(tracks))
	for _, t := range tracks {
		mapped = append(mapped, p.svc.m.folderItem(t))
	}
	p.folders.put(folderID, mapped)
	return mapped, folderName(folderID), nil
}

var categoryCommands = map[string]string{
	folderAlbums:    "music/albums/library_items",
	folderArtists:   "music/artists/library_items",
	folderTracks:    "music/tracks/library_items",
	folderPlaylists: "music/playlists/library_items",
}

func (p *maProvider) fetchCategory(ctx context.Context, category string) ([]provider.FolderItem, error) {
	var items []MediaItem
	err := p.svc.client.CallInto(ctx, categoryCommands[category], map[string]any{
		"limit":  libraryFetchLimit,
		"offset": 0,
	}, &items)
	if err != nil {
		return nil, err
	}
	mapped := make([]provider.FolderItem, 0, len(items))
	for _, item := range items {
		mapped = append(mapped, p.svc.m.folderItem(item))
	}
	return mapped, nil
}

// rootFolders is the synthetic top level of the media tree.
func rootFolders() []provider.FolderItem {
	return []provider.FolderItem{
		{ID: folderAlbums, Name: "Albums", Type: provider.ItemTypeFolder, ContentType: "Albums"},
		{ID: folderArtists, Name: "Artists", Type: provider.ItemTypeFolder, ContentType: "Artists"},
		{ID: folderTracks, Name: "Tracks", Type: provider.ItemTypeFolder},
		{ID: folderPlaylists, Name: "Playlists", Type: provider.ItemTypeFolder},
	}
}

// normalizeFolder maps the folder id spellings clients send to one cache
// key: percent-decoded, trimmed, with the root aliases collapsed.
func normalizeFolder(folderID string) string {
	s := strings.TrimSpace(folderID)
	if strings.Contains(s, "%") {
		if decoded, err := url.QueryUnescape(s); err == nil && decoded != s {
			s = decoded
		}
	}
	switch s {
	case "", "0", "root", folderRoot:
		return folderRoot
	}
	return s
}

func folderName(folderID string) string {
	switch folderID {
	case folderRoot:
		return "Library"
	case folderAlbums:
		return "Albums"
	case folderArtists:
		return "Artists"
	case folderTracks:
		return "Tracks"
	case folderPlaylists:
		return "Playlists"
	}
	return folderID
}

func categoryForItem(itemID string) (string, bool) {
	switch ident.Parse(itemID).Kind {
	case ident.KindAlbum:
		return folderAlbums, true
	case ident.KindArtist:
		return folderArtists, true
	case ident.KindTrack:
		return folderTracks, true
	case ident.KindPlaylist:
		return folderPlaylists, true
	}
	return "", false
}

// itemRef extracts the vendor item id, canonical provider and kind from any
// accepted id spelling. Raw unprefixed ids pass through as local.
func itemRef(s string) (itemID, prov, kind string) {
	id := ident.Parse(s)
	if id.IsZero() {
		if s == "" {
			return "", "", ""
		}
		return s, "local", ""
	}
	return id.ItemID, canonicalProvider(id.Provider), id.Kind
}

// favoriteCategories are the five library lists folded into the favorites
// view, in display order.
var favoriteCategories = []string{
	"music/tracks/library_items",
	"music/albums/library_items",
	"music/artists/library_items",
	"music/playlists/library_items",
	"music/radios/library_items",
}

// GetFavorites folds the five favorite-flagged category lists into the
// favorite shape. Items that map to no playable audiopath are dropped.
func (p *maProvider) GetFavorites(ctx context.Context, zoneID, offset, limit int) (*provider.FavoriteResponse, error) {
	lists := make([][]MediaItem, len(favoriteCategories))
	g, gctx := errgroup.WithContext(ctx)
	for i, command := range favoriteCategories {
		g.Go(func() error {
			return p.svc.client.CallInto(gctx, command, map[string]any{
				"favorite": true,
				"limit":    libraryFetchLimit,
				"offset":   0,
			}, &lists[i])
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Warn().Err(err).Int("zone", zoneID).Msg("favorite listing failed")
		return &provider.FavoriteResponse{
			ID:    strconv.Itoa(zoneID),
			Name:  p.svc.cfg.MAFavoritesName,
			Start: offset,
			Items: []provider.FavoriteItem{},
		}, nil
	}

	var items []provider.FavoriteItem
	for _, list := range lists {
		for _, media := range list {
			fav, ok := p.svc.m.favorite(media)
			if !ok {
				continue
			}
			fav.Slot = len(items) + 1
			fav.ID = provider.BaseFavoriteID + uint(fav.Slot) - 1
			items = append(items, fav)
		}
	}

	return &provider.FavoriteResponse{
		ID:         strconv.Itoa(zoneID),
		Name:       p.svc.cfg.MAFavoritesName,
		Start:      offset,
		TotalItems: len(items),
		TS:         time.Now().UnixMilli(),
		Items:      pageSlice(items, offset, limit),
	}, nil
}

// GetRecentlyPlayed maps the server's recently played list. Errors
// propagate so the caller can fall back to the local history.
func (p *maProvider) GetRecentlyPlayed(ctx context.Context, zoneID, limit int) (*provider.RecentResponse, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var items []MediaItem
	err := p.svc.client.CallInto(ctx, "music/recently_played_items", map[string]any{
		"limit": limit,
	}, &items)
	if err != nil {
		return nil, err
	}

	out := make([]provider.RecentItem, 0, len(items))
	for _, item := range items {
		if item.ItemID == "" {
			continue
		}
		path := canonicalPath(&item)
		entry := provider.RecentItem{
			Title:     item.Name,
			Artist:    artistLine(&item),
			Album:     albumName(&item),
			CoverURL:  p.svc.m.image(&item),
			AudioPath: path,
			AudioType: audioTypeFor(&item),
		}
		if item.MediaType == "radio" {
			entry.Station = item.Name
		}
		out = append(out, entry)
	}
	return &provider.RecentResponse{TotalItems: len(out), Items: out}, nil
}

// ClearRecentlyPlayed is not supported upstream; the caller falls back to
// the local history store.
func (p *maProvider) ClearRecentlyPlayed(ctx context.Context, zoneID int) error {
	return fmt.Errorf("musicassistant: clearing recently played is not supported")
}

var searchMediaTypes = map[string]string{
	"track": "track", "tracks": "track",
	"album": "album", "albums": "album",
	"artist": "artist", "artists": "artist",
	"playlist": "playlist", "playlists": "playlist",
	"radio": "radio", "radios": "radio",
}

// GlobalSearch runs one categorised search. Media hits map section by
// section, dropping the empty ones. Radio hits split into the same local
// and custom-stream buckets the radio surface browses; the station section
// stays in the result even when nothing matched, because its link into that
// surface is still worth showing.
func (p *maProvider) GlobalSearch(ctx context.Context, source, query string) (provider.SearchResults, error) {
	mediaTypes, limit := parseSearchScope(source)

	var result searchResult
	err := p.svc.client.CallInto(ctx, "music/search", map[string]any{
		"search_query": query,
		"media_types":  mediaTypes,
		"limit":        limit,
	}, &result)
	if err != nil {
		return nil, err
	}

	out := provider.SearchResults{}
	add := func(category string, items []MediaItem) {
		if len(items) == 0 {
			return
		}
		out[category] = p.svc.m.searchSection(items, limit)
	}
	add("tracks", result.Tracks)
	add("albums", result.Albums)
	add("artists", result.Artists)
	add("playlists", result.Playlists)

	if searchedRadio(mediaTypes) {
		stations, custom := splitRadioHits(result.Radio)
		out["station"] = p.svc.m.stationSection(stations, limit, radioServiceLocal+"/"+folderRoot)
		if len(custom) > 0 {
			out["custom"] = p.svc.m.stationSection(custom, limit, radioServiceCustom+"/"+folderRoot)
		}
	}
	return out, nil
}

func searchedRadio(mediaTypes []string) bool {
	for _, t := range mediaTypes {
		if t == "radio" {
			return true
		}
	}
	return false
}

// splitRadioHits separates library stations from url-provider custom
// streams, the same split GetServiceFolder serves.
func splitRadioHits(items []MediaItem) (stations, custom []MediaItem) {
	for i := range items {
		if isCustomStream(&items[i]) {
			custom = append(custom, items[i])
		} else {
			stations = append(stations, items[i])
		}
	}
	return stations, custom
}

// parseSearchScope reads the `<source>:<categories>|<limit>` scope string.
// `#` works as the limit separator too, as sent by websocket clients where
// it survives the path grammar. Unknown or bare scopes search the default
// categories with the default limit.
func parseSearchScope(scope string) (mediaTypes []string, limit int) {
	limit = defaultSearchLimit
	defaults := []string{"track", "album", "artist", "playlist"}

	_, rest, ok := strings.Cut(scope, ":")
	if !ok || rest == "" {
		return defaults, limit
	}

	cats := rest
	if i := strings.IndexAny(rest, "|#"); i >= 0 {
		cats = rest[:i]
		if n, err := strconv.Atoi(strings.TrimSpace(rest[i+1:])); err == nil && n > 0 {
			limit = n
		}
	}
	for _, token := range strings.Split(cats, ",") {
		if t, ok := searchMediaTypes[strings.TrimSpace(strings.ToLower(token))]; ok {
			mediaTypes = append(mediaTypes, t)
		}
	}
	if len(mediaTypes) == 0 {
		return defaults, limit
	}
	return mediaTypes, limit
}
