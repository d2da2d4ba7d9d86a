package musicassistant

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/msaudio/audioserver-go/internal/provider"
)

// folderEntry is one cached folder listing with an id index covering the
// canonical ids and their encoded/decoded spellings.
type folderEntry struct {
	items []provider.FolderItem
	byID  map[string]provider.FolderItem
}

// folderCache remembers folder listings so a later resolvemediaitem is a
// map hit instead of a second RPC round.
type folderCache struct {
	mu      sync.Mutex
	folders map[string]*folderEntry
}

func newFolderCache() *folderCache {
	return &folderCache{folders: make(map[string]*folderEntry)}
}

func (c *folderCache) put(folderID string, items []provider.FolderItem) {
	entry := &folderEntry{
		items: items,
		byID:  make(map[string]provider.FolderItem, len(items)*2),
	}
	for _, item := range items {
		for _, key := range idVariants(item.ID) {
			entry.byID[key] = item
		}
	}
	c.mu.Lock()
	c.folders[folderID] = entry
	c.mu.Unlock()
}

func (c *folderCache) items(folderID string) ([]provider.FolderItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.folders[folderID]
	if !ok {
		return nil, false
	}
	return entry.items, true
}

func (c *folderCache) lookup(folderID, itemID string) (provider.FolderItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.folders[folderID]
	if !ok {
		return provider.FolderItem{}, false
	}
	for _, key := range idVariants(itemID) {
		if item, ok := entry.byID[key]; ok {
			return item, true
		}
	}
	return provider.FolderItem{}, false
}

// idVariants spells an id the ways clients send it back: verbatim, fully
// URL-decoded and fully URL-encoded.
func idVariants(id string) []string {
	variants := []string{id}
	if decoded, err := url.QueryUnescape(id); err == nil && decoded != id {
		variants = append(variants, decoded)
	}
	if encoded := url.QueryEscape(id); encoded != id {
		variants = append(variants, encoded)
	}
	return variants
}

// radioCache holds the radio favorites for one TTL window. Concurrent
// refreshes collapse into a single RPC; a failed refresh serves the
// previous snapshot when one exists.
type radioCache struct {
	ttl time.Duration

	sf      singleflight.Group
	mu      sync.Mutex
	items   []MediaItem
	fetched time.Time
}

func (c *radioCache) get(ctx context.Context, fetch func(context.Context) ([]MediaItem, error)) ([]MediaItem, error) {
	c.mu.Lock()
	if !c.fetched.IsZero() && time.Since(c.fetched) < c.ttl {
		items := c.items
		c.mu.Unlock()
		return items, nil
	}
	stale := c.items
	hasStale := !c.fetched.IsZero()
	c.mu.Unlock()

	v, err, _ := c.sf.Do("radios", func() (any, error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items = items
		c.fetched = time.Now()
		c.mu.Unlock()
		return items, nil
	})
	if err != nil {
		if hasStale {
			return stale, nil
		}
		return nil, err
	}
	return v.([]MediaItem), nil
}

// playlistCache keeps the full playlist list warm. The first access fetches
// synchronously; after that a background refresher keeps it current while
// the link is up.
type playlistCache struct {
	refreshEvery time.Duration

	sf     singleflight.Group
	once   sync.Once
	mu     sync.Mutex
	items  []MediaItem
	loaded bool
}

func (c *playlistCache) get(ctx context.Context, fetch func(context.Context) ([]MediaItem, error)) ([]MediaItem, error) {
	c.mu.Lock()
	if c.loaded {
		items := c.items
		c.mu.Unlock()
		return items, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("playlists", func() (any, error) {
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.set(items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]MediaItem), nil
}

func (c *playlistCache) set(items []MediaItem) {
	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.mu.Unlock()
}

// startRefresher spawns the background loop on first call. Refreshes are
// skipped while the link is down so an absent server does not keep the
// dialer busy.
func (c *playlistCache) startRefresher(done <-chan struct{}, connected func() bool, fetch func(context.Context) ([]MediaItem, error), logger zerolog.Logger) {
	c.once.Do(func() {
		every := c.refreshEvery
		if every <= 0 {
			every = 5 * time.Minute
		}
		go func() {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
				}
				if !connected() {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
				items, err := fetch(ctx)
				cancel()
				if err != nil {
					logger.Debug().Err(err).Msg("playlist refresh failed")
					continue
				}
				c.set(items)
			}
		}()
	})
}

// pageSlice windows a full listing into the offset/limit a caller asked
// for. A limit <= 0 returns everything from the offset on.
func pageSlice[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T{}, items[offset:end]...)
}
