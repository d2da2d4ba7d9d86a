package beolink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/player"
)

type recordedCommand struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

// fakeDevice serves the notification stream and records every command the
// driver fires at the REST surface.
type fakeDevice struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	commands     []recordedCommand
	streams      []chan string
	deviceJSON   string
	deviceStatus int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	f := &fakeDevice{
		t:          t,
		deviceJSON: `{"beoDevice":{"productId":{"productType":"BeoSound Core"}}}`,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDevice) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case notificationsPath:
		f.serveStream(w, r)
	case pathDevice:
		f.mu.Lock()
		status, payload := f.deviceStatus, f.deviceJSON
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, payload)
	default:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.commands = append(f.commands, recordedCommand{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Auth:   r.Header.Get("Authorization"),
		})
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeDevice) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	ch := make(chan string, 16)
	f.mu.Lock()
	f.streams = append(f.streams, ch)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case line, open := <-ch:
			if !open {
				return
			}
			io.WriteString(w, line+"\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// push delivers one notification line to every connected stream, waiting for
// a connection to exist first.
func (f *fakeDevice) push(t *testing.T, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.streams) == 0 {
			return false
		}
		for _, ch := range f.streams {
			ch <- line
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "no notification stream connected")
}

// dropStreams ends every open stream response so the driver sees EOF.
func (f *fakeDevice) dropStreams() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.streams {
		close(ch)
	}
	f.streams = nil
}

func (f *fakeDevice) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeDevice) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func (f *fakeDevice) lastCommand(t *testing.T) recordedCommand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.commands, "no command recorded")
	return f.commands[len(f.commands)-1]
}

type fakeRuntime struct {
	mu      sync.Mutex
	updates []*player.Update
}

func (r *fakeRuntime) MergeStatus(_ int, u *player.Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *fakeRuntime) ReplaceQueue(int, *player.Queue) {}
func (r *fakeRuntime) UpsertGroup(groups.Upsert)       {}
func (r *fakeRuntime) RemoveZoneFromGroup(int)         {}

func (r *fakeRuntime) FindZoneByBackendPlayerID(string) (int, bool) {
	return 0, false
}

func (r *fakeRuntime) BackendPlayerID(int) (string, bool) {
	return "", false
}

// status folds every merge into one snapshot, the way the zone manager
// would. Power starts empty so connect and offline transitions are visible.
func (r *fakeRuntime) status() *player.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &player.Status{PlayerID: 1}
	for _, u := range r.updates {
		s.Apply(u)
	}
	return s
}

func (r *fakeRuntime) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func testDriver(t *testing.T, f *fakeDevice) (*Driver, *fakeRuntime) {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)

	rt := &fakeRuntime{}
	drv, err := NewDriver(backend.Options{
		ZoneID:  1,
		Config:  config.ZoneConfig{Backend: "beolink", IP: u.Host, Username: "admin", Password: "secret"},
		Runtime: rt,
	})
	require.NoError(t, err)

	d := drv.(*Driver)
	d.reconnectEvery = 30 * time.Millisecond
	t.Cleanup(func() { _ = d.Cleanup() })
	return d, rt
}

func startDriver(t *testing.T, f *fakeDevice) (*Driver, *fakeRuntime) {
	t.Helper()
	d, rt := testDriver(t, f)
	require.NoError(t, d.Initialize(context.Background()))
	waitStatus(t, rt, func(s *player.Status) bool { return s.Power == player.PowerOn })
	return d, rt
}

func waitStatus(t *testing.T, rt *fakeRuntime, cond func(*player.Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(rt.status()) }, 3*time.Second, 10*time.Millisecond)
}

func notifLine(t *testing.T, typ string, data map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"notification": map[string]any{
			"timestamp": "2026-01-10T09:00:00.000000",
			"type":      typ,
			"kind":      "source",
			"data":      data,
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestNewDriver_RequiresIP(t *testing.T) {
	_, err := NewDriver(backend.Options{ZoneID: 3, Config: config.ZoneConfig{Backend: "beolink"}, Runtime: &fakeRuntime{}})
	require.ErrorContains(t, err, "device ip")
}

func TestDriver_InitializeConnectsOnce(t *testing.T) {
	f := newFakeDevice(t)
	d, rt := startDriver(t, f)

	require.NoError(t, d.Initialize(context.Background()))
	require.Equal(t, 1, f.streamCount())
	require.Equal(t, player.PowerOn, rt.status().Power)
}

func TestDriver_InitializeSurfacesConnectError(t *testing.T) {
	f := newFakeDevice(t)
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	f.srv.Close()

	rt := &fakeRuntime{}
	drv, err := NewDriver(backend.Options{
		ZoneID:  4,
		Config:  config.ZoneConfig{Backend: "beolink", IP: u.Host},
		Runtime: rt,
	})
	require.NoError(t, err)
	d := drv.(*Driver)
	d.reconnectEvery = time.Hour
	t.Cleanup(func() { _ = d.Cleanup() })

	require.Error(t, d.Initialize(context.Background()))
	require.Equal(t, player.PowerOffline, rt.status().Power)
}

func TestDriver_ProgressMergesModeAndPosition(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifProgress, map[string]any{
		"state":         "play",
		"position":      12.7,
		"totalDuration": 180,
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Mode == player.ModePlay })
	s := rt.status()
	require.Equal(t, 12, s.Time)
	require.Equal(t, int64(12700), s.PositionMS)
	require.Equal(t, 180, s.Duration)
	require.Equal(t, int64(180000), s.DurationMS)
}

func TestDriver_AuxSourcePinsDurationToZero(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifSource, map[string]any{
		"primaryExperience": map[string]any{
			"source": map[string]any{
				"id":           "linein:1234.1",
				"friendlyName": "Line-In",
				"sourceType":   map[string]any{"type": "LINE IN"},
			},
		},
	}))
	f.push(t, notifLine(t, notifProgress, map[string]any{
		"state":         "play",
		"position":      3.2,
		"totalDuration": 240,
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Mode == player.ModePlay })
	s := rt.status()
	require.Equal(t, player.AudioTypeLineIn, s.AudioType)
	require.Equal(t, "Line-In", s.SourceName)
	require.Equal(t, 3, s.Time)
	require.Zero(t, s.Duration)
	require.Zero(t, s.DurationMS)
}

func TestDriver_VolumeRescalesDeviceRange(t *testing.T) {
	f := newFakeDevice(t)
	d, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifVolume, map[string]any{
		"speaker": map[string]any{
			"level": 45,
			"muted": false,
			"range": map[string]any{"minimum": 0, "maximum": 90},
		},
	}))
	waitStatus(t, rt, func(s *player.Status) bool { return s.Volume == 50 })

	// The stored range must also apply on the way out.
	require.NoError(t, d.SendCommand(context.Background(), backend.Command{Verb: "volume", Args: []string{"50"}}))
	cmd := f.lastCommand(t)
	require.Equal(t, http.MethodPut, cmd.Method)
	require.Equal(t, pathSpeakerLevel, cmd.Path)
	require.JSONEq(t, `{"level":45}`, cmd.Body)
}

func TestDriver_MuteStateFollowsSpeaker(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifVolume, map[string]any{
		"speaker": map[string]any{"level": 30, "muted": true},
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Muted && s.Volume == 30 })
}

func TestDriver_NetRadioNowPlaying(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifNetRadio, map[string]any{
		"name":            "Radio Paradise",
		"liveDescription": "Morcheeba - The Sea",
		"image": []map[string]any{
			{"url": "http://device/cover/rp.jpg", "size": "medium"},
		},
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Station == "Radio Paradise" })
	s := rt.status()
	require.Equal(t, "Morcheeba - The Sea", s.Title)
	require.Equal(t, player.AudioTypeRadio, s.AudioType)
	require.Equal(t, "http://device/cover/rp.jpg", s.CoverURL)
}

func TestDriver_StoredMusicClearsStation(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifNetRadio, map[string]any{"name": "Radio Paradise"}))
	f.push(t, notifLine(t, notifStoredMusic, map[string]any{
		"name":       "Breathe",
		"artist":     "Pink Floyd",
		"album":      "The Dark Side of the Moon",
		"duration":   169,
		"trackImage": []map[string]any{{"url": "http://device/cover/dsotm.jpg"}},
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Title == "Breathe" })
	s := rt.status()
	require.Equal(t, "Pink Floyd", s.Artist)
	require.Equal(t, "The Dark Side of the Moon", s.Album)
	require.Equal(t, 169, s.Duration)
	require.Equal(t, player.AudioTypeFile, s.AudioType)
	require.Equal(t, "http://device/cover/dsotm.jpg", s.CoverURL)
	require.Empty(t, s.Station)
}

func TestDriver_ShutdownPowersOff(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, notifProgress, map[string]any{"state": "play"}))
	waitStatus(t, rt, func(s *player.Status) bool { return s.Mode == player.ModePlay })

	f.push(t, notifLine(t, notifShutdown, map[string]any{}))
	waitStatus(t, rt, func(s *player.Status) bool {
		return s.Power == player.PowerOff && s.Mode == player.ModeStop
	})
}

func TestDriver_SkipsUnknownAndMalformedLines(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.push(t, notifLine(t, "KEYBOARD", map[string]any{"key": "volume_up"}))
	f.push(t, "this is not json")
	f.push(t, notifLine(t, notifVolume, map[string]any{
		"speaker": map[string]any{"level": 25, "muted": false},
	}))

	waitStatus(t, rt, func(s *player.Status) bool { return s.Volume == 25 })
}

func TestDriver_ReconnectsAfterStreamLoss(t *testing.T) {
	f := newFakeDevice(t)
	_, rt := startDriver(t, f)

	f.dropStreams()
	waitStatus(t, rt, func(s *player.Status) bool { return s.Power == player.PowerOffline })
	waitStatus(t, rt, func(s *player.Status) bool { return s.Power == player.PowerOn })

	f.push(t, notifLine(t, notifVolume, map[string]any{
		"speaker": map[string]any{"level": 66, "muted": false},
	}))
	waitStatus(t, rt, func(s *player.Status) bool { return s.Volume == 66 })
}

func TestDriver_TransportVerbsHitRestEndpoints(t *testing.T) {
	cases := []struct {
		verb   string
		method string
		path   string
	}{
		{"play", http.MethodPost, pathStreamPlay},
		{"resume", http.MethodPost, pathStreamPlay},
		{"pause", http.MethodPost, pathStreamPause},
		{"stop", http.MethodPost, pathStreamStop},
		{"queueplus", http.MethodPost, pathStreamForward},
		{"queueminus", http.MethodPost, pathStreamBackward},
	}
	for _, tc := range cases {
		t.Run(tc.verb, func(t *testing.T) {
			f := newFakeDevice(t)
			d, _ := testDriver(t, f)

			require.NoError(t, d.SendCommand(context.Background(), backend.Command{Verb: tc.verb}))
			cmd := f.lastCommand(t)
			require.Equal(t, tc.method, cmd.Method)
			require.Equal(t, tc.path, cmd.Path)
			require.Contains(t, cmd.Auth, "Basic ")
		})
	}
}

func TestDriver_VolumeCommandRejectsBadLevel(t *testing.T) {
	f := newFakeDevice(t)
	d, _ := testDriver(t, f)

	err := d.SendCommand(context.Background(), backend.Command{Verb: "volume", Args: []string{"loud"}})
	require.ErrorContains(t, err, "bad level")
	require.Zero(t, f.commandCount())
}

func TestDriver_UnhandledVerbFallsThrough(t *testing.T) {
	f := newFakeDevice(t)
	d, _ := testDriver(t, f)

	err := d.SendCommand(context.Background(), backend.Command{Verb: "shuffle", Args: []string{"enable"}})
	require.ErrorIs(t, err, backend.ErrUnhandled)
	require.Zero(t, f.commandCount())
}

func TestDriver_CleanupStopsStream(t *testing.T) {
	f := newFakeDevice(t)
	d, rt := startDriver(t, f)

	require.NoError(t, d.Cleanup())
	require.NoError(t, d.Cleanup())

	before := rt.updateCount()
	f.push(t, notifLine(t, notifVolume, map[string]any{
		"speaker": map[string]any{"level": 80, "muted": false},
	}))
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, before, rt.updateCount())
}

func TestProbe_AcceptsDevicePayload(t *testing.T) {
	f := newFakeDevice(t)
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)

	require.NoError(t, Probe(context.Background(), config.ZoneConfig{IP: u.Host, Username: "admin", Password: "secret"}))
}

func TestProbe_RejectsBadStatusAndPayload(t *testing.T) {
	f := newFakeDevice(t)
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)

	f.mu.Lock()
	f.deviceStatus = http.StatusServiceUnavailable
	f.mu.Unlock()
	require.ErrorContains(t, Probe(context.Background(), config.ZoneConfig{IP: u.Host}), "answered 503")

	f.mu.Lock()
	f.deviceStatus = http.StatusOK
	f.deviceJSON = `{"product":{}}`
	f.mu.Unlock()
	require.ErrorContains(t, Probe(context.Background(), config.ZoneConfig{IP: u.Host}), "unexpected device payload")
}

func TestProbe_ReportsUnreachableDevice(t *testing.T) {
	f := newFakeDevice(t)
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	f.srv.Close()

	require.ErrorContains(t, Probe(context.Background(), config.ZoneConfig{IP: u.Host}), "unreachable")
	require.ErrorContains(t, Probe(context.Background(), config.ZoneConfig{}), "device ip")
}
