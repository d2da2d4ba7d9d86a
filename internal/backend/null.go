package backend

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/player"
)

// keepAliveInterval is how often an unconfigured zone re-announces itself so
// the miniserver keeps showing it.
const keepAliveInterval = time.Minute

// NullDriver serves zones without a configured backend. It publishes a
// steady "Unconfigured" status and drops every command.
type NullDriver struct {
	zoneID  int
	runtime Runtime
	logger  zerolog.Logger

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// NewNullDriver is the factory for unconfigured zones.
func NewNullDriver(opts Options) (Driver, error) {
	return &NullDriver{
		zoneID:  opts.ZoneID,
		runtime: opts.Runtime,
		logger:  log.WithComponent("backend.null").With().Int("zone", opts.ZoneID).Logger(),
	}, nil
}

func (d *NullDriver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker != nil {
		return nil
	}

	d.runtime.MergeStatus(d.zoneID, &player.Update{
		Title:     player.String("Unconfigured"),
		Mode:      player.Mode(player.ModePause),
		Power:     player.Power(player.PowerOn),
		AudioType: player.Audio(player.AudioTypeFile),
		Time:      player.Int(0),
	})

	d.ticker = time.NewTicker(keepAliveInterval)
	d.done = make(chan struct{})
	go d.keepAlive(d.ticker, d.done)
	return nil
}

func (d *NullDriver) keepAlive(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.runtime.MergeStatus(d.zoneID, &player.Update{
				Time: player.Int(0),
				Mode: player.Mode(player.ModePause),
			})
		}
	}
}

// SendCommand logs and drops; an unconfigured zone has nothing to talk to.
func (d *NullDriver) SendCommand(_ context.Context, cmd Command) error {
	d.logger.Info().Str("verb", cmd.Verb).Msg("dropping command for unconfigured zone")
	return nil
}

func (d *NullDriver) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker == nil {
		return nil
	}
	d.ticker.Stop()
	close(d.done)
	d.ticker = nil
	d.done = nil
	return nil
}
