package recents

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
	"github.com/msaudio/audioserver-go/internal/player"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// recorderQueue bounds the backlog between the zone manager's merge path
// and the sqlite writer.
const recorderQueue = 64

type historyEntry struct {
	zoneID int
	item   provider.RecentItem
}

// Recorder implements zone.HistoryRecorder: it takes play transitions off
// the merge path and persists them from a single worker goroutine. Record
// never blocks; a full queue drops the entry.
type Recorder struct {
	repo    *Repository
	entries chan historyEntry
	done    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	logger  zerolog.Logger
}

func NewRecorder(repo *Repository) *Recorder {
	r := &Recorder{
		repo:    repo,
		entries: make(chan historyEntry, recorderQueue),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  log.WithComponent("recents"),
	}
	go r.run()
	return r
}

// Record enqueues one play transition. Entries without an audiopath carry
// nothing worth listing and are skipped.
func (r *Recorder) Record(zoneID int, snap player.Status) {
	if r.closed.Load() || snap.AudioPath == "" {
		return
	}
	select {
	case r.entries <- historyEntry{zoneID: zoneID, item: itemFromStatus(snap)}:
	default:
		metrics.HistoryDropsTotal.Inc()
		r.logger.Debug().Int("zone", zoneID).Msg("history queue full, entry dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.stopped)
	for {
		select {
		case e := <-r.entries:
			r.insert(e)
		case <-r.done:
			for {
				select {
				case e := <-r.entries:
					r.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) insert(e historyEntry) {
	if err := r.repo.Insert(e.zoneID, e.item); err != nil {
		r.logger.Warn().Err(err).Int("zone", e.zoneID).Msg("history insert failed")
	}
}

// Close drains the queue and stops the worker. Idempotent.
func (r *Recorder) Close() {
	if r.closed.Swap(true) {
		return
	}
	close(r.done)
	<-r.stopped
}

func itemFromStatus(snap player.Status) provider.RecentItem {
	return provider.RecentItem{
		Title:     snap.Title,
		Artist:    snap.Artist,
		Album:     snap.Album,
		Station:   snap.Station,
		CoverURL:  snap.CoverURL,
		AudioPath: snap.AudioPath,
		AudioType: snap.AudioType,
	}
}
