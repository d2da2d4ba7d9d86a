// Package backend defines the contract between the zone runtime and the
// vendor drivers. Concrete drivers live in their own packages and register
// through a factory at wiring time.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/player"
)

// ErrUnhandled is returned by SendCommand when the driver has no native
// handling for a verb; the router then offers the command to the zone's
// content adapter.
var ErrUnhandled = errors.New("command not handled by backend")

// Command is a normalized zone command after router parsing.
type Command struct {
	Verb    string
	Args    []string
	Payload map[string]any
}

// Arg returns the positional argument at i or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Driver owns the device connection for one zone.
//
// Initialize connects, subscribes to device events and publishes an initial
// status merge. SendCommand translates a normalized verb to vendor RPC.
// Cleanup tears down sockets and timers; it is idempotent and safe to call
// from any state, including mid-connect.
type Driver interface {
	Initialize(ctx context.Context) error
	SendCommand(ctx context.Context, cmd Command) error
	Cleanup() error
}

// Runtime is the slice of the zone manager that drivers are allowed to
// touch: status merges, queue replacement and group topology reports.
type Runtime interface {
	MergeStatus(zoneID int, u *player.Update)
	ReplaceQueue(zoneID int, q *player.Queue)
	UpsertGroup(u groups.Upsert)
	RemoveZoneFromGroup(zoneID int)
	FindZoneByBackendPlayerID(playerID string) (int, bool)
	BackendPlayerID(zoneID int) (string, bool)
}

// Options carries everything a factory needs to build a driver.
type Options struct {
	ZoneID  int
	Config  config.ZoneConfig
	Runtime Runtime
}

// Factory builds a driver for one zone.
type Factory func(opts Options) (Driver, error)

// ProbeFunc is the cheap reachability check used to validate a zone config
// before it is persisted. It must return a descriptive error on failure.
type ProbeFunc func(ctx context.Context, cfg config.ZoneConfig) error

// Registry maps backend kinds to factories and probes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	probes    map[string]ProbeFunc
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		probes:    make(map[string]ProbeFunc),
	}
}

// Register installs a backend kind. A nil probe means the kind accepts any
// config without checking.
func (r *Registry) Register(kind string, factory Factory, probe ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	if probe != nil {
		r.probes[kind] = probe
	}
}

// Create builds a driver of the given kind.
func (r *Registry) Create(kind string, opts Options) (Driver, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
	return factory(opts)
}

// Probe validates a config against the kind's reachability check.
func (r *Registry) Probe(ctx context.Context, kind string, cfg config.ZoneConfig) error {
	r.mu.RLock()
	probe, ok := r.probes[kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown backend kind %q", kind)
	}
	return probe(ctx, cfg)
}

// Kinds lists registered backend kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
