package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
)

// ZonesWatcher reloads the zone list whenever the admin config file changes
// and hands the new list to the registered callback. A reload that fails to
// parse keeps the previous zone set.
type ZonesWatcher struct {
	path     string
	onChange func([]ZoneConfig)
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewZonesWatcher prepares a watcher for path. Start must be called to begin
// watching.
func NewZonesWatcher(path string, onChange func([]ZoneConfig)) *ZonesWatcher {
	return &ZonesWatcher{
		path:     path,
		onChange: onChange,
		logger:   log.WithComponent("config"),
	}
}

// Start begins watching until ctx is cancelled. Watching the parent
// directory instead of the file itself survives editors that replace the
// file on save. Failure to establish the watch degrades to "no hot reload".
func (w *ZonesWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	w.watcher = watcher

	w.logger.Info().Str("path", w.path).Msg("watching config file for zone changes")
	go w.watchLoop(ctx)
	return nil
}

func (w *ZonesWatcher) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("config watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *ZonesWatcher) reload() {
	zones, err := LoadZones(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("config reload failed, keeping previous zones")
		return
	}
	w.logger.Info().Int("zones", len(zones)).Msg("config reloaded")
	w.onChange(zones)
}
