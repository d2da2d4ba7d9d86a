package audit

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
)

// writerQueue bounds the backlog between the command router and the
// sqlite writer.
const writerQueue = 256

// Writer records command outcomes off the dispatch path from a single
// worker goroutine. Record never blocks; a full queue drops the entry.
type Writer struct {
	repo    *Repository
	entries chan Entry
	done    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	logger  zerolog.Logger
}

func NewWriter(repo *Repository) *Writer {
	w := &Writer{
		repo:    repo,
		entries: make(chan Entry, writerQueue),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  log.WithComponent("audit"),
	}
	go w.run()
	return w
}

// Record enqueues one command for the trail.
func (w *Writer) Record(e Entry) {
	if w.closed.Load() || e.Command == "" {
		return
	}
	select {
	case w.entries <- e:
	default:
		metrics.AuditDropsTotal.Inc()
		w.logger.Debug().Str("command", e.Command).Msg("audit queue full, entry dropped")
	}
}

func (w *Writer) run() {
	defer close(w.stopped)
	for {
		select {
		case e := <-w.entries:
			w.insert(e)
		case <-w.done:
			for {
				select {
				case e := <-w.entries:
					w.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) insert(e Entry) {
	if err := w.repo.Insert(e); err != nil {
		w.logger.Warn().Err(err).Str("command", e.Command).Msg("audit insert failed")
	}
}

// Close drains the queue and stops the worker. Idempotent.
func (w *Writer) Close() {
	if w.closed.Swap(true) {
		return
	}
	close(w.done)
	<-w.stopped
}
