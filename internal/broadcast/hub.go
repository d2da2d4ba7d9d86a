// Package broadcast is the push-event plane. Producers publish typed frames;
// every connected websocket subscriber receives them through a bounded queue
// so one slow client never back-pressures the rest.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/metrics"
)

// Event types pushed to subscribers. Each frame is a JSON object with the
// event type as its single top-level key.
const (
	EventAudio        = "audio_event"
	EventQueue        = "audio_queue_event"
	EventGroupChanged = "audio_group_changed_event"
	EventRoomFav      = "roomfavchanged_event"
	EventSearchResult = "globalsearch_result"
	EventLog          = "log"
)

const (
	// subscriberQueueSize bounds the per-subscriber backlog before the
	// oldest frame is dropped.
	subscriberQueueSize = 64
	// dropWarnInterval throttles per-subscriber drop warnings.
	dropWarnInterval = time.Minute
)

// Subscriber receives encoded frames on C until Close.
type Subscriber struct {
	ID string
	C  chan []byte

	lastDropWarn atomic.Int64 // unix nanos of the last drop warning
}

// Hub fans frames out to all subscribers. Frames are encoded once and the
// bytes shared across queues.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger zerolog.Logger
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]*Subscriber),
		logger: log.WithComponent("broadcast"),
	}
}

// Subscribe registers a new subscriber. The returned cancel func is
// idempotent and closes the subscriber's channel.
func (h *Hub) Subscribe() (*Subscriber, func()) {
	sub := &Subscriber{
		ID: uuid.NewString(),
		C:  make(chan []byte, subscriberQueueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.C)
		return sub, func() {}
	}
	h.subs[sub.ID] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(count))
	h.logger.Debug().Str("subscriber", sub.ID).Int("total", count).Msg("subscriber added")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub.ID]; ok {
				delete(h.subs, sub.ID)
				close(sub.C)
			}
			count := len(h.subs)
			h.mu.Unlock()
			metrics.Subscribers.Set(float64(count))
		})
	}
	return sub, cancel
}

// Publish encodes {eventType: payload} and enqueues it for every subscriber.
// Queues that are full lose their oldest frame first.
func (h *Hub) Publish(eventType string, payload any) {
	frame, err := json.Marshal(map[string]any{eventType: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("encoding push event")
		return
	}
	h.PublishRaw(eventType, frame)
}

// PublishRaw enqueues an already-encoded frame.
func (h *Hub) PublishRaw(eventType string, frame []byte) {
	metrics.EventsTotal.WithLabelValues(eventType).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		h.enqueue(sub, eventType, frame)
	}
}

// enqueue delivers without blocking. Log-event drops stay silent so the
// logging tap can never feed back into itself.
func (h *Hub) enqueue(sub *Subscriber, eventType string, frame []byte) {
	select {
	case sub.C <- frame:
		return
	default:
	}

	// Queue full: evict the oldest frame and retry once.
	select {
	case <-sub.C:
		metrics.IncEventDrop("queue_full")
	default:
	}
	select {
	case sub.C <- frame:
	default:
		metrics.IncEventDrop("queue_full")
	}

	if eventType == EventLog {
		return
	}
	now := time.Now().UnixNano()
	last := sub.lastDropWarn.Load()
	if now-last > int64(dropWarnInterval) && sub.lastDropWarn.CompareAndSwap(last, now) {
		h.logger.Warn().Str("subscriber", sub.ID).Str("type", eventType).Msg("slow subscriber, dropping oldest frames")
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close tears the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.C)
		delete(h.subs, id)
	}
	metrics.Subscribers.Set(0)
}
