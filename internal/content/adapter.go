// Package content hosts the per-zone playback extenders. An adapter picks up
// commands the zone's backend reports as unhandled, typically by reusing the
// backend's own RPC client for richer media operations.
package content

import (
	"context"
	"sort"
	"sync"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/config"
)

// Adapter extends a zone with commands its backend does not handle natively.
type Adapter interface {
	// Handles reports whether the adapter wants to see the given verb at all.
	Handles(verb string) bool
	// Execute runs the command. handled=false means the command should fall
	// through to the caller's unknown-command path.
	Execute(ctx context.Context, zoneID int, cmd backend.Command) (handled bool, err error)
}

// Factory builds an adapter instance for one zone.
type Factory func(cfg config.ZoneConfig) (Adapter, error)

// Registry maps adapter keys (backend kinds) to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Create builds the adapter registered under key. A missing key returns
// (nil, nil): most zones have no content adapter.
func (r *Registry) Create(key string, cfg config.ZoneConfig) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return f(cfg)
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
