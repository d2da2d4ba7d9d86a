// Package beolink drives network-link audio devices over their REST and
// notification-stream surface. Status arrives as one JSON notification per
// line on a long-lived HTTP response; commands are plain REST calls.
package beolink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
	"github.com/msaudio/audioserver-go/internal/netutil"
	"github.com/msaudio/audioserver-go/internal/player"
)

// reconnectDelay is the fixed gap between stream attempts after a drop.
const reconnectDelay = 5 * time.Second

// Zone command endpoints.
const (
	pathStreamPlay     = "/BeoZone/Zone/Stream/Play"
	pathStreamPause    = "/BeoZone/Zone/Stream/Pause"
	pathStreamStop     = "/BeoZone/Zone/Stream/Stop"
	pathStreamForward  = "/BeoZone/Zone/Stream/Forward"
	pathStreamBackward = "/BeoZone/Zone/Stream/Backward"
	pathSpeakerLevel   = "/BeoZone/Zone/Sound/Volume/Speaker/Level"
	pathDevice         = "/BeoDevice"
)

var errDriverClosed = errors.New("driver closed")

// Driver bridges one zone to one device. The notification stream is the
// only status source; a dropped stream marks the zone offline until the
// reconnect loop gets it back.
type Driver struct {
	zoneID int
	client *restClient
	rt     backend.Runtime
	logger zerolog.Logger

	closed atomic.Bool
	done   chan struct{}

	// reconnectEvery is fixed at construction; tests shorten it.
	reconnectEvery time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	started   bool
	volMin    int
	volMax    int
	sourceAux bool
}

// NewDriver is the backend factory.
func NewDriver(opts backend.Options) (backend.Driver, error) {
	if opts.Config.IP == "" {
		return nil, fmt.Errorf("zone %d: beolink backend needs a device ip", opts.ZoneID)
	}
	return &Driver{
		zoneID:         opts.ZoneID,
		client:         newRestClient(opts.Config.IP, opts.Config.Username, opts.Config.Password),
		rt:             opts.Runtime,
		logger:         log.WithComponent("beolink").With().Int("zone", opts.ZoneID).Logger(),
		done:           make(chan struct{}),
		reconnectEvery: reconnectDelay,
		volMax:         100,
	}, nil
}

// Initialize opens the notification stream and hands it to the reader. A
// failed first attempt still starts the retry loop, so the zone heals once
// the device shows up.
func (d *Driver) Initialize(_ context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	body, err := d.connect()
	if err != nil {
		d.publishOffline()
		go d.streamLoop(nil)
		return fmt.Errorf("notification stream for zone %d: %w", d.zoneID, err)
	}
	go d.streamLoop(body)
	return nil
}

// Cleanup stops the stream and the reconnect loop. Idempotent.
func (d *Driver) Cleanup() error {
	if d.closed.Swap(true) {
		return nil
	}
	close(d.done)
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// SendCommand maps transport and volume verbs onto the REST surface.
// Everything else is unhandled; the device has no queue or group concept
// this server can drive.
func (d *Driver) SendCommand(ctx context.Context, cmd backend.Command) error {
	switch cmd.Verb {
	case "play", "resume":
		return d.client.do(ctx, http.MethodPost, pathStreamPlay, nil)
	case "pause":
		return d.client.do(ctx, http.MethodPost, pathStreamPause, nil)
	case "stop":
		return d.client.do(ctx, http.MethodPost, pathStreamStop, nil)
	case "queueplus":
		return d.client.do(ctx, http.MethodPost, pathStreamForward, nil)
	case "queueminus":
		return d.client.do(ctx, http.MethodPost, pathStreamBackward, nil)

	case "volume":
		vol, err := strconv.Atoi(cmd.Arg(0))
		if err != nil {
			return fmt.Errorf("volume: bad level %q", cmd.Arg(0))
		}
		d.mu.Lock()
		min, max := d.volMin, d.volMax
		d.mu.Unlock()
		return d.client.do(ctx, http.MethodPut, pathSpeakerLevel, map[string]int{
			"level": scaleFromPercent(vol, min, max),
		})

	default:
		return backend.ErrUnhandled
	}
}

// connect opens a fresh stream under a cancellable context owned by the
// driver, so Cleanup can cut a blocked read.
func (d *Driver) connect() (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	if d.closed.Load() {
		cancel()
		return nil, errDriverClosed
	}
	return d.client.stream(ctx)
}

// streamLoop reads the stream until it dies and redials every 5 s until it
// is back or the driver is closed.
func (d *Driver) streamLoop(body io.ReadCloser) {
	for {
		if body != nil {
			d.rt.MergeStatus(d.zoneID, &player.Update{Power: player.Power(player.PowerOn)})
			d.readStream(body)
			body.Close()
			body = nil
			if d.closed.Load() {
				return
			}
			d.publishOffline()
			d.logger.Warn().Msg("notification stream lost")
		}

		select {
		case <-time.After(d.reconnectEvery):
		case <-d.done:
			return
		}

		metrics.BackendReconnectsTotal.WithLabelValues("beolink").Inc()
		next, err := d.connect()
		if err != nil {
			if errors.Is(err, errDriverClosed) {
				return
			}
			d.logger.Warn().Err(err).Msg("stream reconnect failed")
			continue
		}
		body = next
	}
}

func (d *Driver) readStream(body io.ReadCloser) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame notificationFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			d.logger.Debug().Err(err).Int("bytes", len(line)).Msg("unparseable notification line")
			continue
		}
		d.dispatch(frame.Notification)
	}
	if err := scanner.Err(); err != nil && !d.closed.Load() {
		d.logger.Debug().Err(err).Msg("notification stream read ended")
	}
}

func (d *Driver) publishOffline() {
	d.rt.MergeStatus(d.zoneID, &player.Update{
		Power: player.Power(player.PowerOffline),
		Mode:  player.Mode(player.ModeStop),
	})
}

func (d *Driver) dispatch(n notification) {
	if d.closed.Load() {
		return
	}
	switch n.Type {
	case notifProgress:
		d.applyProgress(&n.Data)
	case notifVolume:
		d.applyVolume(n.Data.Speaker)
	case notifSource:
		d.applySource(&n.Data)
	case notifNetRadio:
		d.applyNetRadio(&n.Data)
	case notifStoredMusic:
		d.applyStoredMusic(&n.Data)
	case notifShutdown:
		d.rt.MergeStatus(d.zoneID, &player.Update{
			Power: player.Power(player.PowerOff),
			Mode:  player.Mode(player.ModeStop),
		})
	default:
		metrics.UnknownNotificationsTotal.WithLabelValues("beolink").Inc()
		d.logger.Debug().Str("type", n.Type).Msg("unhandled notification type")
	}
}

// applyProgress merges transport state and position. While an auxiliary
// input is active the device repeats a meaningless duration, so it is
// pinned to zero.
func (d *Driver) applyProgress(data *notifData) {
	u := &player.Update{
		Time:       player.Int(int(data.Position)),
		PositionMS: player.Int64(int64(data.Position * 1000)),
	}
	if mode, ok := modeForState(data.State); ok {
		u.Mode = player.Mode(mode)
	}
	if data.TotalDuration > 0 {
		u.Duration = player.Int(int(data.TotalDuration))
		u.DurationMS = player.Int64(int64(data.TotalDuration * 1000))
	}

	d.mu.Lock()
	aux := d.sourceAux
	d.mu.Unlock()
	if aux {
		u.AudioType = player.Audio(player.AudioTypeLineIn)
		u.Duration = player.Int(0)
		u.DurationMS = player.Int64(0)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

// applyVolume remembers the device range and reports the level on the
// 0..100 scale everything else speaks.
func (d *Driver) applyVolume(sp *speakerVolume) {
	if sp == nil {
		return
	}
	d.mu.Lock()
	if sp.Range != nil && sp.Range.Maximum > sp.Range.Minimum {
		d.volMin, d.volMax = sp.Range.Minimum, sp.Range.Maximum
	}
	min, max := d.volMin, d.volMax
	d.mu.Unlock()

	d.rt.MergeStatus(d.zoneID, &player.Update{
		Volume: player.Int(scaleToPercent(sp.Level, min, max)),
		Muted:  player.Bool(sp.Muted),
	})
}

func (d *Driver) applySource(data *notifData) {
	src := data.Source
	if src == nil && data.PrimaryExperience != nil {
		src = data.PrimaryExperience.Source
	}
	if src == nil {
		return
	}

	audioType, aux := audioTypeForSource(src.SourceType.Type)
	d.mu.Lock()
	d.sourceAux = aux
	d.mu.Unlock()

	u := &player.Update{AudioType: player.Audio(audioType)}
	if src.FriendlyName != "" {
		u.SourceName = player.String(src.FriendlyName)
	}
	if aux {
		u.Duration = player.Int(0)
		u.DurationMS = player.Int64(0)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

// applyNetRadio maps a radio now-playing: the station carries the name and
// the title carries the live programme description.
func (d *Driver) applyNetRadio(data *notifData) {
	u := &player.Update{
		Station:   player.String(data.Name),
		Title:     player.String(data.LiveDescription),
		AudioType: player.Audio(player.AudioTypeRadio),
	}
	if cover := firstImageURL(data.Image); cover != "" {
		u.CoverURL = player.String(cover)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

func (d *Driver) applyStoredMusic(data *notifData) {
	u := &player.Update{
		Title:     player.String(data.Name),
		Artist:    player.String(data.Artist),
		Album:     player.String(data.Album),
		Station:   player.String(""),
		AudioType: player.Audio(player.AudioTypeFile),
	}
	if data.Duration > 0 {
		u.Duration = player.Int(int(data.Duration))
		u.DurationMS = player.Int64(int64(data.Duration * 1000))
	}
	if cover := firstImageURL(data.TrackImage); cover != "" {
		u.CoverURL = player.String(cover)
	}
	d.rt.MergeStatus(d.zoneID, u)
}

// Probe checks device reachability before a config is persisted.
func Probe(ctx context.Context, cfg config.ZoneConfig) error {
	if cfg.IP == "" {
		return fmt.Errorf("beolink backend needs a device ip")
	}
	c := newRestClient(cfg.IP, cfg.Username, cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+pathDevice, nil)
	if err != nil {
		return err
	}
	netutil.ApplyBasicAuth(req, cfg.Username, cfg.Password)

	resp, err := netutil.ProbeClient.Do(req)
	if err != nil {
		return fmt.Errorf("beolink device unreachable at %s: %w", cfg.IP, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("beolink device at %s answered %d", cfg.IP, resp.StatusCode)
	}

	var payload struct {
		BeoDevice *struct {
			ProductID struct {
				ProductType string `json:"productType"`
			} `json:"productId"`
		} `json:"beoDevice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.BeoDevice == nil {
		return fmt.Errorf("beolink device at %s: unexpected device payload", cfg.IP)
	}
	return nil
}
