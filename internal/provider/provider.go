// Package provider defines the media-provider contract: browsing, playlists,
// radios, search and favorites as seen by the command surface. Concrete
// providers live in their own packages and register here.
package provider

import (
	"context"
	"sync"

	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/log"
)

// MediaProvider is the mandatory operation set. Every returned item carries
// the canonical identifier grammar; unknown ids produce empty responses, not
// errors. Provider-internal failures are logged and converted to empty
// results before they reach the router.
type MediaProvider interface {
	Key() string

	GetRadios(ctx context.Context) ([]RadioEntry, error)
	GetServiceFolder(ctx context.Context, service, folderID, user string, offset, limit int) (*FolderResponse, error)
	ResolveStation(ctx context.Context, service, stationID string) (*FolderItem, error)

	GetPlaylists(ctx context.Context, offset, limit int) (*PlaylistResponse, error)
	GetPlaylistItems(ctx context.Context, playlistID string, offset, limit int) (*PlaylistResponse, error)
	ResolvePlaylist(ctx context.Context, service, playlistID string) (*PlaylistItem, error)

	GetMediaFolder(ctx context.Context, folderID string, offset, limit int) (*FolderResponse, error)
	ResolveMediaItem(ctx context.Context, folderID, itemID string) (*FolderItem, error)
}

// FavoriteSource is implemented by providers that expose their own favorite
// lists. The router falls back to the per-zone favorite files otherwise.
type FavoriteSource interface {
	GetFavorites(ctx context.Context, zoneID, offset, limit int) (*FavoriteResponse, error)
}

// RecentSource is implemented by providers with a recently-played history.
type RecentSource interface {
	GetRecentlyPlayed(ctx context.Context, zoneID, limit int) (*RecentResponse, error)
	ClearRecentlyPlayed(ctx context.Context, zoneID int) error
}

// Searcher is implemented by providers that support global search.
type Searcher interface {
	GlobalSearch(ctx context.Context, source, query string) (SearchResults, error)
}

// Factory builds a provider from the process config.
type Factory func(cfg *config.Config) (MediaProvider, error)

// Registry selects and caches the active provider. The instance is built
// lazily on first use; Reset drops it so tests and reconfiguration can force
// a rebuild. Unknown selection keys fall back to the dummy provider.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	aliases   map[string]string
	active    MediaProvider
	activeKey string
}

func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
	r.Register("dummy", func(*config.Config) (MediaProvider, error) {
		return NewDummy(), nil
	})
	return r
}

// Register installs a factory under its key plus any aliases.
func (r *Registry) Register(key string, f Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
	for _, a := range aliases {
		r.aliases[a] = key
	}
}

// Active returns the cached provider, building it on first call. Selection
// comes from cfg.MediaProvider; a key that is neither registered nor aliased
// selects the dummy provider.
func (r *Registry) Active(cfg *config.Config) (MediaProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolveKeyLocked(cfg.MediaProvider)
	if r.active != nil && r.activeKey == key {
		return r.active, nil
	}

	f := r.factories[key]
	p, err := f(cfg)
	if err != nil {
		return nil, err
	}
	r.active = p
	r.activeKey = key
	logger := log.WithComponent("provider")
	logger.Info().Str("provider", key).Msg("media provider selected")
	return p, nil
}

// Reset drops the cached instance.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = nil
	r.activeKey = ""
}

func (r *Registry) resolveKeyLocked(selection string) string {
	if _, ok := r.factories[selection]; ok {
		return selection
	}
	if key, ok := r.aliases[selection]; ok {
		return key
	}
	if selection != "" && selection != "dummy" {
		logger := log.WithComponent("provider")
		logger.Warn().Str("provider", selection).Msg("unknown media provider, using dummy")
	}
	return "dummy"
}
