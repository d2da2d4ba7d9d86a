// Package zone owns the registry of zones and the per-zone serial merge
// boundary. Backends report partial status updates; the manager merges them
// field-by-field, diffs against the previous snapshot and pushes the wire
// events the miniserver listens for.
package zone

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/content"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/player"
)

// Publisher is the slice of the broadcast hub the manager needs.
type Publisher interface {
	Publish(eventType string, payload any)
}

// HistoryRecorder receives play transitions for the recently-played store.
// Record must not block; implementations enqueue and return.
type HistoryRecorder interface {
	Record(zoneID int, snap player.Status)
}

// BuildFunc constructs the backend stack for one zone config. Used by
// Reconcile so the manager stays ignorant of concrete driver kinds.
type BuildFunc func(ctx context.Context, cfg config.ZoneConfig) (backend.Driver, Capabilities, content.Adapter, error)

// Entry is one registered zone. All mutable state is guarded by mu, which is
// also the zone's serial point: merges, queue swaps and the resulting event
// publishes happen under it, so the broadcast order matches merge order.
type Entry struct {
	id int

	mu      sync.Mutex
	cfg     config.ZoneConfig
	driver  backend.Driver
	adapter content.Adapter
	caps    Capabilities
	status  *player.Status
	queue   *player.Queue
	removed bool
}

// ID returns the zone id.
func (e *Entry) ID() int { return e.id }

// Config returns a copy of the zone's current config.
func (e *Entry) Config() config.ZoneConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Capabilities returns the zone's capability matrix.
func (e *Entry) Capabilities() Capabilities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caps
}

// Status returns a deep copy of the latest snapshot.
func (e *Entry) Status() *player.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Clone()
}

// Queue returns a deep copy of the current queue view, or nil when the
// backend has not reported one.
func (e *Entry) Queue() *player.Queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue == nil {
		return nil
	}
	return e.queue.Clone()
}

// Manager is the process-wide zone registry. It implements backend.Runtime.
type Manager struct {
	mu    sync.RWMutex
	zones map[int]*Entry

	pub     Publisher
	tracker *groups.Tracker
	history HistoryRecorder
	logger  zerolog.Logger
}

func NewManager(pub Publisher, tracker *groups.Tracker) *Manager {
	return &Manager{
		zones:   make(map[int]*Entry),
		pub:     pub,
		tracker: tracker,
		logger:  log.WithComponent("zone"),
	}
}

// SetHistoryRecorder wires the recently-played store. Optional.
func (m *Manager) SetHistoryRecorder(h HistoryRecorder) {
	m.history = h
}

// CreateZone registers a zone and starts its driver in the background. The
// initial status carries the configured volume policy and source name.
func (m *Manager) CreateZone(ctx context.Context, cfg config.ZoneConfig, driver backend.Driver, caps Capabilities, adapter content.Adapter) error {
	if cfg.ID <= 0 {
		return apperrors.NewValidationError(fmt.Sprintf("invalid zone id %d", cfg.ID))
	}

	st := player.NewStatus(cfg.ID)
	st.Volume = cfg.Volumes.Default
	st.DefaultVolume = cfg.Volumes.Default
	st.MaxVolume = cfg.Volumes.Max
	st.TTSVolume = cfg.Volumes.TTS
	st.AlarmVolume = cfg.Volumes.Alarm
	st.EventVolume = cfg.Volumes.Event
	st.SourceName = cfg.Source

	entry := &Entry{
		id:      cfg.ID,
		cfg:     cfg,
		driver:  driver,
		adapter: adapter,
		caps:    caps,
		status:  st,
	}

	m.mu.Lock()
	if _, exists := m.zones[cfg.ID]; exists {
		m.mu.Unlock()
		return apperrors.NewInvariantError(fmt.Sprintf("zone %d already registered", cfg.ID), nil)
	}
	m.zones[cfg.ID] = entry
	m.mu.Unlock()

	m.logger.Info().Int("zone", cfg.ID).Str("backend", cfg.Backend).Msg("zone registered")
	go m.initializeDriver(ctx, cfg.ID, driver)
	return nil
}

// initializeDriver runs Initialize off the caller's goroutine so one dead
// device never delays startup or reload. Failures flip the zone offline.
func (m *Manager) initializeDriver(ctx context.Context, zoneID int, driver backend.Driver) {
	if err := driver.Initialize(ctx); err != nil {
		m.logger.Warn().Err(err).Int("zone", zoneID).Msg("backend initialize failed")
		m.MergeStatus(zoneID, &player.Update{
			Power: player.Power(player.PowerOffline),
			Mode:  player.Mode(player.ModeStop),
		})
	}
}

// RemoveZone tears the zone down: driver cleanup, group detach, registry
// removal. Safe to call for unknown ids.
func (m *Manager) RemoveZone(zoneID int) {
	m.mu.Lock()
	entry, ok := m.zones[zoneID]
	if ok {
		delete(m.zones, zoneID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.removed = true
	driver := entry.driver
	entry.mu.Unlock()

	if driver != nil {
		if err := driver.Cleanup(); err != nil {
			m.logger.Warn().Err(err).Int("zone", zoneID).Msg("backend cleanup failed")
		}
	}
	if m.tracker.RemoveZone(zoneID) {
		m.publishGroups()
		m.reconcileMembership()
	}
	m.logger.Info().Int("zone", zoneID).Msg("zone removed")
}

// Zone looks up a registered zone.
func (m *Manager) Zone(zoneID int) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.zones[zoneID]
	return e, ok
}

// IDs returns all registered zone ids in ascending order.
func (m *Manager) IDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.zones))
	for id := range m.zones {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Count returns the number of registered zones.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.zones)
}

// MergeStatus merges a partial update into the zone's snapshot. When any
// field changed, one audio_event frame with the new snapshot is pushed while
// still inside the zone's critical section, so event order equals merge order.
func (m *Manager) MergeStatus(zoneID int, u *player.Update) {
	entry, ok := m.Zone(zoneID)
	if !ok {
		return
	}

	entry.mu.Lock()
	if entry.removed {
		entry.mu.Unlock()
		return
	}
	prevMode := entry.status.Mode
	prevPath := entry.status.AudioPath
	changed := entry.status.Apply(u)
	if !changed {
		entry.mu.Unlock()
		return
	}
	snap := entry.status.Clone()
	m.pub.Publish(broadcast.EventAudio, []*player.Status{snap})

	startedPlaying := snap.Mode == player.ModePlay && snap.AudioPath != "" &&
		(prevMode != player.ModePlay || prevPath != snap.AudioPath)
	entry.mu.Unlock()

	if startedPlaying && m.history != nil {
		m.history.Record(zoneID, *snap)
	}
}

// ReplaceQueue atomically swaps the zone's queue view and announces it.
func (m *Manager) ReplaceQueue(zoneID int, q *player.Queue) {
	entry, ok := m.Zone(zoneID)
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return
	}
	entry.queue = q.Clone()

	count := q.TotalItems
	if count == 0 {
		count = len(q.Items)
	}
	m.pub.Publish(broadcast.EventQueue, []map[string]any{{
		"playerid": zoneID,
		"count":    count,
		"start":    q.Start,
	}})
}

// UpsertGroup reports a group topology change from a backend or a manual
// command. No-op upserts emit nothing.
func (m *Manager) UpsertGroup(u groups.Upsert) {
	_, changed := m.tracker.Upsert(u)
	if !changed {
		return
	}
	m.publishGroups()
	m.reconcileMembership()
}

// RemoveZoneFromGroup detaches a zone from whatever group holds it.
func (m *Manager) RemoveZoneFromGroup(zoneID int) {
	if !m.tracker.RemoveZone(zoneID) {
		return
	}
	m.publishGroups()
	m.reconcileMembership()
}

// Groups returns the current group topology.
func (m *Manager) Groups() []*groups.Record {
	return m.tracker.All()
}

// FindZoneByBackendPlayerID maps a vendor-side player id to a zone id.
func (m *Manager) FindZoneByBackendPlayerID(playerID string) (int, bool) {
	if playerID == "" {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, e := range m.zones {
		e.mu.Lock()
		match := e.cfg.PlayerID == playerID
		e.mu.Unlock()
		if match {
			return id, true
		}
	}
	return 0, false
}

// BackendPlayerID reports the vendor player id configured for a zone.
func (m *Manager) BackendPlayerID(zoneID int) (string, bool) {
	e, ok := m.Zone(zoneID)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.PlayerID == "" {
		return "", false
	}
	return e.cfg.PlayerID, true
}

// Dispatch sends a per-zone command to the backend, falling through to the
// zone's content adapter when the driver reports it unhandled. Commands
// nobody claims are logged and acknowledged as no-ops.
func (m *Manager) Dispatch(ctx context.Context, zoneID int, cmd backend.Command) error {
	entry, ok := m.Zone(zoneID)
	if !ok {
		return apperrors.NewLookupMiss("zone", fmt.Sprintf("%d", zoneID))
	}

	entry.mu.Lock()
	driver := entry.driver
	adapter := entry.adapter
	entry.mu.Unlock()

	err := driver.SendCommand(ctx, cmd)
	if err == nil {
		return nil
	}
	if !errors.Is(err, backend.ErrUnhandled) {
		return err
	}

	if adapter != nil && adapter.Handles(cmd.Verb) {
		handled, aerr := adapter.Execute(ctx, zoneID, cmd)
		if aerr != nil {
			return aerr
		}
		if handled {
			return nil
		}
	}

	m.logger.Info().Int("zone", zoneID).Str("verb", cmd.Verb).Msg("unknown command")
	return nil
}

// Reconcile drives the registry toward the given config set: new zones are
// created, vanished zones removed, and zones whose config changed get a
// fresh backend while the entry and its status survive.
func (m *Manager) Reconcile(ctx context.Context, cfgs []config.ZoneConfig, build BuildFunc) error {
	desired := make(map[int]config.ZoneConfig, len(cfgs))
	for _, cfg := range cfgs {
		desired[cfg.ID] = cfg
	}

	for _, id := range m.IDs() {
		if _, keep := desired[id]; !keep {
			m.RemoveZone(id)
		}
	}

	var errs []error
	for _, cfg := range cfgs {
		entry, exists := m.Zone(cfg.ID)
		if !exists {
			driver, caps, adapter, err := build(ctx, cfg)
			if err != nil {
				errs = append(errs, fmt.Errorf("zone %d: %w", cfg.ID, err))
				continue
			}
			if err := m.CreateZone(ctx, cfg, driver, caps, adapter); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if entry.Config() == cfg {
			continue
		}
		if err := m.replaceBackend(ctx, entry, cfg, build); err != nil {
			errs = append(errs, fmt.Errorf("zone %d: %w", cfg.ID, err))
		}
	}
	return errors.Join(errs...)
}

// replaceBackend tears down the old driver first, then installs the new
// stack. The status snapshot survives so the miniserver keeps its view.
func (m *Manager) replaceBackend(ctx context.Context, entry *Entry, cfg config.ZoneConfig, build BuildFunc) error {
	entry.mu.Lock()
	old := entry.driver
	entry.mu.Unlock()

	if old != nil {
		if err := old.Cleanup(); err != nil {
			m.logger.Warn().Err(err).Int("zone", entry.id).Msg("backend cleanup failed")
		}
	}

	driver, caps, adapter, err := build(ctx, cfg)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	entry.cfg = cfg
	entry.driver = driver
	entry.caps = caps
	entry.adapter = adapter
	changed := applyVolumePolicy(entry.status, cfg)
	if cfg.Source != entry.status.SourceName {
		entry.status.SourceName = cfg.Source
		changed = true
	}
	if changed {
		m.pub.Publish(broadcast.EventAudio, []*player.Status{entry.status.Clone()})
	}
	entry.mu.Unlock()

	m.logger.Info().Int("zone", entry.id).Str("backend", cfg.Backend).Msg("zone backend replaced")
	go m.initializeDriver(ctx, entry.id, driver)
	return nil
}

// Shutdown runs every driver's Cleanup concurrently and waits for all of
// them or the context deadline, whichever comes first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.zones))
	for _, e := range m.zones {
		entries = append(entries, e)
	}
	m.zones = make(map[int]*Entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		e.mu.Lock()
		e.removed = true
		driver := e.driver
		e.mu.Unlock()
		if driver == nil {
			continue
		}
		wg.Add(1)
		go func(id int, d backend.Driver) {
			defer wg.Done()
			if err := d.Cleanup(); err != nil {
				m.logger.Warn().Err(err).Int("zone", id).Msg("backend cleanup failed")
			}
		}(e.id, driver)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// groupEvent is the wire shape of one audio_group_changed_event record.
type groupEvent struct {
	Group   string `json:"group"`
	Leader  int    `json:"leader"`
	Players []int  `json:"players"`
	Backend string `json:"backend"`
	Source  string `json:"source"`
}

// publishGroups pushes the full current topology. Dissolved groups simply
// stop appearing, which is how the miniserver learns about them.
func (m *Manager) publishGroups() {
	records := m.tracker.All()
	events := make([]groupEvent, 0, len(records))
	for _, r := range records {
		group := r.ExternalID
		if group == "" {
			group = fmt.Sprintf("%d", r.Leader)
		}
		events = append(events, groupEvent{
			Group:   group,
			Leader:  r.Leader,
			Players: r.Members,
			Backend: r.Backend,
			Source:  string(r.Source),
		})
	}
	m.pub.Publish(broadcast.EventGroupChanged, events)
}

// reconcileMembership rewrites players/syncedzones on every zone from the
// tracker's view. Zones outside any group get their membership cleared.
func (m *Manager) reconcileMembership() {
	for _, id := range m.IDs() {
		rec := m.tracker.ByZone(id)

		var refs []player.PlayerRef
		var synced []int
		if rec != nil {
			refs = make([]player.PlayerRef, 0, len(rec.Members))
			synced = make([]int, 0, len(rec.Members)-1)
			for _, member := range rec.Members {
				refs = append(refs, player.PlayerRef{PlayerID: member})
				if member != id {
					synced = append(synced, member)
				}
			}
		} else {
			refs = []player.PlayerRef{}
			synced = []int{}
		}

		m.MergeStatus(id, &player.Update{
			Players:     player.Players(refs),
			SyncedZones: player.Zones(synced),
		})
	}
}

func applyVolumePolicy(st *player.Status, cfg config.ZoneConfig) bool {
	changed := false
	if st.DefaultVolume != cfg.Volumes.Default {
		st.DefaultVolume = cfg.Volumes.Default
		changed = true
	}
	if st.MaxVolume != cfg.Volumes.Max {
		st.MaxVolume = cfg.Volumes.Max
		changed = true
	}
	if st.TTSVolume != cfg.Volumes.TTS {
		st.TTSVolume = cfg.Volumes.TTS
		changed = true
	}
	if st.AlarmVolume != cfg.Volumes.Alarm {
		st.AlarmVolume = cfg.Volumes.Alarm
		changed = true
	}
	if st.EventVolume != cfg.Volumes.Event {
		st.EventVolume = cfg.Volumes.Event
		changed = true
	}
	return changed
}

