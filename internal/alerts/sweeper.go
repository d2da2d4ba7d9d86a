package alerts

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
)

// ttsTTL is how long generated TTS clips stay cached after their last use.
const ttsTTL = 7 * 24 * time.Hour

// sweepSpec bounds how often the cache sweep runs.
const sweepSpec = "@every 6h"

// Sweeper drops expired TTS clips from the cache directory.
type Sweeper struct {
	dir    string
	ttl    time.Duration
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewSweeper(dir string) *Sweeper {
	return &Sweeper{
		dir:    dir,
		ttl:    ttsTTL,
		cron:   cron.New(),
		logger: log.WithComponent("alerts"),
	}
}

// Start sweeps once right away, then every six hours.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(sweepSpec, s.sweep); err != nil {
		return err
	}
	s.sweep()
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.dir).Msg("tts cache sweep failed")
		}
		return
	}

	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "tts-") || !strings.HasSuffix(name, ".mp3") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("tts cache remove failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("tts cache swept")
	}
}
