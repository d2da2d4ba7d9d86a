package zone

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/apperrors"
	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/content"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/player"
)

type publishedEvent struct {
	eventType string
	payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType, payload})
}

func (p *fakePublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeDriver struct {
	mu       sync.Mutex
	inits    int
	cleanups int
	commands []backend.Command
	initErr  error
	sendErr  error
}

func (d *fakeDriver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	return d.initErr
}

func (d *fakeDriver) SendCommand(ctx context.Context, cmd backend.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return d.sendErr
}

func (d *fakeDriver) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanups++
	return nil
}

func (d *fakeDriver) cleanupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleanups
}

type fakeRecorder struct {
	mu    sync.Mutex
	zones []int
	paths []string
}

func (r *fakeRecorder) Record(zoneID int, snap player.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = append(r.zones, zoneID)
	r.paths = append(r.paths, snap.AudioPath)
}

func (r *fakeRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func testZoneConfig(id int) config.ZoneConfig {
	return config.ZoneConfig{
		ID:      id,
		Name:    "Test Zone",
		Backend: "null",
		Volumes: config.VolumeConfig{}.Normalize(),
	}
}

func newTestManager(t *testing.T) (*Manager, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return NewManager(pub, groups.NewTracker()), pub
}

func addZone(t *testing.T, m *Manager, id int) *fakeDriver {
	t.Helper()
	driver := &fakeDriver{}
	err := m.CreateZone(context.Background(), testZoneConfig(id), driver, UnconfiguredCapabilities(), nil)
	require.NoError(t, err)
	return driver
}

func TestManager_CreateZone_InitialStatus(t *testing.T) {
	m, _ := newTestManager(t)
	addZone(t, m, 7)

	entry, ok := m.Zone(7)
	require.True(t, ok)

	st := entry.Status()
	require.Equal(t, 7, st.PlayerID)
	require.Equal(t, player.ModeStop, st.Mode)
	require.Equal(t, player.PowerOn, st.Power)
	require.Equal(t, 25, st.Volume)
	require.Equal(t, 100, st.MaxVolume)
	require.Equal(t, 30, st.TTSVolume)
}

func TestManager_CreateZone_DuplicateID(t *testing.T) {
	m, _ := newTestManager(t)
	addZone(t, m, 1)

	err := m.CreateZone(context.Background(), testZoneConfig(1), &fakeDriver{}, UnconfiguredCapabilities(), nil)
	require.Error(t, err)
	require.Equal(t, apperrors.KindInvariant, apperrors.KindOf(err))
}

func TestManager_MergeStatus_PublishesOnChange(t *testing.T) {
	m, pub := newTestManager(t)
	addZone(t, m, 1)

	m.MergeStatus(1, &player.Update{Title: player.String("Song A")})

	events := pub.byType(broadcast.EventAudio)
	require.Len(t, events, 1)
	statuses, ok := events[0].payload.([]*player.Status)
	require.True(t, ok)
	require.Len(t, statuses, 1)
	require.Equal(t, "Song A", statuses[0].Title)
	require.Equal(t, 1, statuses[0].PlayerID)

	// An identical merge must not produce another frame.
	m.MergeStatus(1, &player.Update{Title: player.String("Song A")})
	require.Len(t, pub.byType(broadcast.EventAudio), 1)
}

func TestManager_MergeStatus_UnknownZone(t *testing.T) {
	m, pub := newTestManager(t)
	m.MergeStatus(99, &player.Update{Title: player.String("x")})
	require.Empty(t, pub.byType(broadcast.EventAudio))
}

func TestManager_MergeStatus_RecordsPlayTransitions(t *testing.T) {
	m, _ := newTestManager(t)
	rec := &fakeRecorder{}
	m.SetHistoryRecorder(rec)
	addZone(t, m, 1)

	m.MergeStatus(1, &player.Update{
		Mode:      player.Mode(player.ModePlay),
		AudioPath: player.String("library:local:track:1"),
	})
	// Progress tick while playing the same track: no new history row.
	m.MergeStatus(1, &player.Update{Time: player.Int(10)})
	// Track change while still playing records again.
	m.MergeStatus(1, &player.Update{AudioPath: player.String("library:local:track:2")})
	// Pause and resume of the same track does record a fresh transition.
	m.MergeStatus(1, &player.Update{Mode: player.Mode(player.ModePause)})
	m.MergeStatus(1, &player.Update{Mode: player.Mode(player.ModePlay)})

	require.Equal(t, []string{
		"library:local:track:1",
		"library:local:track:2",
		"library:local:track:2",
	}, rec.recorded())
}

func TestManager_ReplaceQueue_PublishesQueueEvent(t *testing.T) {
	m, pub := newTestManager(t)
	addZone(t, m, 3)

	q := &player.Queue{
		ZoneID:     3,
		Items:      []player.QueueItem{{QIndex: 0, Title: "One"}, {QIndex: 1, Title: "Two"}},
		Start:      0,
		TotalItems: 2,
	}
	m.ReplaceQueue(3, q)

	events := pub.byType(broadcast.EventQueue)
	require.Len(t, events, 1)
	payload, ok := events[0].payload.([]map[string]any)
	require.True(t, ok)
	require.Len(t, payload, 1)
	require.Equal(t, 3, payload[0]["playerid"])
	require.Equal(t, 2, payload[0]["count"])

	entry, _ := m.Zone(3)
	got := entry.Queue()
	require.NotNil(t, got)
	require.Len(t, got.Items, 2)

	// The returned queue is a copy; mutating it must not leak back.
	got.Items[0].Title = "mutated"
	require.Equal(t, "One", entry.Queue().Items[0].Title)
}

func TestManager_UpsertGroup_UpdatesMembershipAndPublishes(t *testing.T) {
	m, pub := newTestManager(t)
	addZone(t, m, 1)
	addZone(t, m, 2)
	addZone(t, m, 3)

	m.UpsertGroup(groups.Upsert{
		Leader:  1,
		Members: []int{1, 2},
		Backend: "test",
		Source:  groups.SourceBackend,
	})

	require.Len(t, pub.byType(broadcast.EventGroupChanged), 1)

	entry1, _ := m.Zone(1)
	st1 := entry1.Status()
	require.Equal(t, []player.PlayerRef{{PlayerID: 1}, {PlayerID: 2}}, st1.Players)
	require.Equal(t, []int{2}, st1.SyncedZones)

	entry2, _ := m.Zone(2)
	st2 := entry2.Status()
	require.Equal(t, []int{1}, st2.SyncedZones)

	entry3, _ := m.Zone(3)
	st3 := entry3.Status()
	require.Empty(t, st3.Players)

	// Re-reporting the same topology is a no-op.
	m.UpsertGroup(groups.Upsert{
		Leader:  1,
		Members: []int{1, 2},
		Backend: "test",
		Source:  groups.SourceBackend,
	})
	require.Len(t, pub.byType(broadcast.EventGroupChanged), 1)

	// Detaching the member dissolves the pair and clears both zones.
	m.RemoveZoneFromGroup(2)
	require.Len(t, pub.byType(broadcast.EventGroupChanged), 2)
	require.Empty(t, entry1.Status().SyncedZones)
	require.Empty(t, entry2.Status().SyncedZones)
}

func TestManager_FindZoneByBackendPlayerID(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := testZoneConfig(4)
	cfg.PlayerID = "ma-player-9"
	require.NoError(t, m.CreateZone(context.Background(), cfg, &fakeDriver{}, UnconfiguredCapabilities(), nil))

	id, ok := m.FindZoneByBackendPlayerID("ma-player-9")
	require.True(t, ok)
	require.Equal(t, 4, id)

	_, ok = m.FindZoneByBackendPlayerID("nope")
	require.False(t, ok)
	_, ok = m.FindZoneByBackendPlayerID("")
	require.False(t, ok)
}

type fakeAdapter struct {
	mu      sync.Mutex
	handled []string
}

func (a *fakeAdapter) Handles(verb string) bool { return verb == "serviceplay" }

func (a *fakeAdapter) Execute(ctx context.Context, zoneID int, cmd backend.Command) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handled = append(a.handled, cmd.Verb)
	return true, nil
}

var _ content.Adapter = (*fakeAdapter)(nil)

func TestManager_Dispatch_AdapterFallback(t *testing.T) {
	m, _ := newTestManager(t)
	driver := &fakeDriver{sendErr: backend.ErrUnhandled}
	adapter := &fakeAdapter{}
	cfg := testZoneConfig(1)
	require.NoError(t, m.CreateZone(context.Background(), cfg, driver, UnconfiguredCapabilities(), adapter))

	// Adapter claims serviceplay.
	err := m.Dispatch(context.Background(), 1, backend.Command{Verb: "serviceplay"})
	require.NoError(t, err)
	require.Equal(t, []string{"serviceplay"}, adapter.handled)

	// Verbs the adapter rejects fall through to the no-op ack.
	err = m.Dispatch(context.Background(), 1, backend.Command{Verb: "play"})
	require.NoError(t, err)
	require.Equal(t, []string{"serviceplay"}, adapter.handled)
}

func TestManager_Dispatch_UnknownZone(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Dispatch(context.Background(), 42, backend.Command{Verb: "play"})
	require.Error(t, err)
	require.True(t, apperrors.IsLookupMiss(err))
}

func TestManager_Dispatch_DriverErrorPropagates(t *testing.T) {
	m, _ := newTestManager(t)
	boom := errors.New("socket closed")
	driver := &fakeDriver{sendErr: boom}
	require.NoError(t, m.CreateZone(context.Background(), testZoneConfig(1), driver, UnconfiguredCapabilities(), nil))

	err := m.Dispatch(context.Background(), 1, backend.Command{Verb: "play"})
	require.ErrorIs(t, err, boom)
}

func TestManager_Reconcile_AddRemoveReplace(t *testing.T) {
	m, _ := newTestManager(t)

	var built []*fakeDriver
	var mu sync.Mutex
	build := func(ctx context.Context, cfg config.ZoneConfig) (backend.Driver, Capabilities, content.Adapter, error) {
		mu.Lock()
		defer mu.Unlock()
		d := &fakeDriver{}
		built = append(built, d)
		return d, UnconfiguredCapabilities(), nil, nil
	}

	cfgs := []config.ZoneConfig{testZoneConfig(1), testZoneConfig(2)}
	require.NoError(t, m.Reconcile(context.Background(), cfgs, build))
	require.ElementsMatch(t, []int{1, 2}, m.IDs())

	// Zone 2 vanishes, zone 3 appears, zone 1 changes its backend address.
	changed := testZoneConfig(1)
	changed.IP = "10.0.0.9"
	require.NoError(t, m.Reconcile(context.Background(), []config.ZoneConfig{changed, testZoneConfig(3)}, build))
	require.ElementsMatch(t, []int{1, 3}, m.IDs())

	mu.Lock()
	total := len(built)
	mu.Unlock()
	require.Equal(t, 4, total) // 1, 2, replacement for 1, 3

	// The first driver for zone 1 and the driver for zone 2 were cleaned up.
	require.Equal(t, 1, built[0].cleanupCount())
	require.Equal(t, 1, built[1].cleanupCount())

	entry, ok := m.Zone(1)
	require.True(t, ok)
	require.Equal(t, "10.0.0.9", entry.Config().IP)
}

func TestManager_Reconcile_UnchangedZoneKeepsDriver(t *testing.T) {
	m, _ := newTestManager(t)

	var built int
	build := func(ctx context.Context, cfg config.ZoneConfig) (backend.Driver, Capabilities, content.Adapter, error) {
		built++
		return &fakeDriver{}, UnconfiguredCapabilities(), nil, nil
	}

	cfgs := []config.ZoneConfig{testZoneConfig(1)}
	require.NoError(t, m.Reconcile(context.Background(), cfgs, build))
	require.NoError(t, m.Reconcile(context.Background(), cfgs, build))
	require.Equal(t, 1, built)
}

func TestManager_Shutdown_CleansAllDrivers(t *testing.T) {
	m, _ := newTestManager(t)
	d1 := addZone(t, m, 1)
	d2 := addZone(t, m, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.Equal(t, 1, d1.cleanupCount())
	require.Equal(t, 1, d2.cleanupCount())
	require.Equal(t, 0, m.Count())
}

func TestManager_RemoveZone_DetachesFromGroup(t *testing.T) {
	m, pub := newTestManager(t)
	d1 := addZone(t, m, 1)
	addZone(t, m, 2)

	m.UpsertGroup(groups.Upsert{Leader: 1, Members: []int{1, 2}, Backend: "test", Source: groups.SourceManual})
	require.NotNil(t, m.tracker.ByZone(2))

	m.RemoveZone(1)
	require.Equal(t, 1, d1.cleanupCount())
	require.Nil(t, m.tracker.ByZone(2))
	require.GreaterOrEqual(t, len(pub.byType(broadcast.EventGroupChanged)), 2)
}
