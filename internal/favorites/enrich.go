package favorites

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/ident"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// enrichCacheSize bounds the per-sourceId lookup cache.
const enrichCacheSize = 512

// Resolver is the slice of the media provider consulted for metadata
// enrichment.
type Resolver interface {
	ResolveMediaItem(ctx context.Context, folderID, itemID string) (*provider.FolderItem, error)
	ResolvePlaylist(ctx context.Context, service, playlistID string) (*provider.PlaylistItem, error)
	ResolveStation(ctx context.Context, service, stationID string) (*provider.FolderItem, error)
}

// ResolverFunc returns the active media provider. Enrichment degrades to a
// no-op when it errors, so favorites stay usable without a provider.
type ResolverFunc func() (Resolver, error)

// enrichData is the provider metadata a favorite can inherit.
type enrichData struct {
	Title    string
	Artist   string
	Album    string
	Cover    string
	Station  string
	Owner    string
	Duration int
}

type lookupResult struct {
	found bool
	data  enrichData
}

// lookupCache remembers positive and negative lookups per sourceId. Eviction
// is oldest-inserted; re-storing an existing key does not refresh its age.
type lookupCache struct {
	mu    sync.Mutex
	max   int
	order []string
	data  map[string]lookupResult
}

func newLookupCache(max int) *lookupCache {
	return &lookupCache{max: max, data: make(map[string]lookupResult)}
}

func (c *lookupCache) get(key string) (lookupResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.data[key]
	return res, ok
}

func (c *lookupCache) put(key string, res lookupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[key]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
		c.order = append(c.order, key)
	}
	c.data[key] = res
}

type enricher struct {
	resolve ResolverFunc
	cache   *lookupCache
	logger  zerolog.Logger
}

func newEnricher(resolve ResolverFunc, logger zerolog.Logger) *enricher {
	return &enricher{
		resolve: resolve,
		cache:   newLookupCache(enrichCacheSize),
		logger:  logger,
	}
}

// apply fills missing display metadata on the item from the provider and
// reports whether anything changed. Misses are cached; transport failures
// are not, so a provider that comes up later still gets asked.
func (e *enricher) apply(ctx context.Context, item *provider.FavoriteItem) bool {
	if item.SourceID == "" || !needsEnrichment(item) {
		return false
	}
	res, ok := e.cache.get(item.SourceID)
	if !ok {
		var cacheable bool
		res, cacheable = e.fetch(ctx, item.SourceID)
		if cacheable {
			e.cache.put(item.SourceID, res)
		}
	}
	if !res.found {
		return false
	}
	return fill(item, res.data)
}

func needsEnrichment(item *provider.FavoriteItem) bool {
	return item.CoverURL == "" || item.Artist == "" || item.Album == ""
}

func (e *enricher) fetch(ctx context.Context, sourceID string) (lookupResult, bool) {
	r, err := e.resolve()
	if err != nil {
		e.logger.Debug().Err(err).Msg("no media provider for favorite enrichment")
		return lookupResult{}, false
	}

	id := ident.Parse(sourceID)
	switch id.Kind {
	case ident.KindRadio:
		item, err := r.ResolveStation(ctx, id.Provider, sourceID)
		if err != nil {
			e.logger.Debug().Err(err).Str("sourceId", sourceID).Msg("station lookup failed")
			return lookupResult{}, false
		}
		if item == nil {
			return lookupResult{}, true
		}
		return lookupResult{found: true, data: dataFromFolderItem(item)}, true

	case ident.KindPlaylist:
		pl, err := r.ResolvePlaylist(ctx, id.Provider, id.ItemID)
		if err != nil {
			e.logger.Debug().Err(err).Str("sourceId", sourceID).Msg("playlist lookup failed")
			return lookupResult{}, false
		}
		if pl == nil {
			return lookupResult{}, true
		}
		return lookupResult{found: true, data: dataFromPlaylistItem(pl)}, true

	default:
		item, err := r.ResolveMediaItem(ctx, "", sourceID)
		if err != nil {
			e.logger.Debug().Err(err).Str("sourceId", sourceID).Msg("media lookup failed")
			return lookupResult{}, false
		}
		if item == nil {
			return lookupResult{}, true
		}
		return lookupResult{found: true, data: dataFromFolderItem(item)}, true
	}
}

// fill copies provider metadata onto empty fields only; a favorite's own
// values always win.
func fill(item *provider.FavoriteItem, d enrichData) bool {
	changed := false
	if item.CoverURL == "" && d.Cover != "" {
		item.CoverURL = d.Cover
		changed = true
	}
	if item.Artist == "" && d.Artist != "" {
		item.Artist = d.Artist
		changed = true
	}
	if item.Album == "" && d.Album != "" {
		item.Album = d.Album
		changed = true
	}
	if item.Title == "" && d.Title != "" {
		item.Title = d.Title
		changed = true
	}
	if item.Station == "" && d.Station != "" {
		item.Station = d.Station
		changed = true
	}
	if item.Owner == "" && d.Owner != "" {
		item.Owner = d.Owner
		changed = true
	}
	if item.Duration == 0 && d.Duration > 0 {
		item.Duration = d.Duration
		changed = true
	}
	return changed
}

func dataFromFolderItem(fi *provider.FolderItem) enrichData {
	title := fi.Title
	if title == "" {
		title = fi.Name
	}
	return enrichData{
		Title:    title,
		Artist:   fi.Artist,
		Album:    fi.Album,
		Cover:    fi.CoverURL,
		Station:  fi.Station,
		Duration: fi.Duration,
	}
}

func dataFromPlaylistItem(pl *provider.PlaylistItem) enrichData {
	title := pl.Title
	if title == "" {
		title = pl.Name
	}
	return enrichData{
		Title:    title,
		Artist:   pl.Artist,
		Album:    pl.Album,
		Cover:    pl.CoverURL,
		Owner:    pl.Owner,
		Duration: pl.Duration,
	}
}
