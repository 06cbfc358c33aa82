// Package hub fans notification log changes out to live page connections.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"headlines/internal/notify"
)

const subscriberBuffer = 16

type subscriber struct {
	ch      chan notify.Event
	session string
}

// Hub broadcasts notify.Events to the subscribers of the event's session.
type Hub struct {
	subscribers map[*subscriber]struct{}
	mu          sync.Mutex
	dropped     atomic.Int64
	closed      bool
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe returns a buffered channel receiving every event published for
// session, and a cancel func that unsubscribes and closes the channel.
func (h *Hub) Subscribe(session string) (<-chan notify.Event, func()) {
	sub := &subscriber{ch: make(chan notify.Event, subscriberBuffer), session: session}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)

		return sub.ch, func() {}
	}

	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.ch)
			}
		})
	}

	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of ev.Session. A subscriber whose
// buffer is full loses its oldest queued event so the newest snapshot is
// always delivered.
func (h *Hub) Publish(ev notify.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		if sub.session != ev.Session {
			continue
		}

		select {
		case sub.ch <- ev:
			continue
		default:
		}

		select {
		case <-sub.ch:
		default:
		}

		total := h.dropped.Add(1)
		slog.Warn("hub dropped stale event for slow consumer", "session", ev.Session, "dropped_total", total)

		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Dropped returns the total number of stale events discarded for slow consumers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		close(sub.ch)
	}

	h.subscribers = make(map[*subscriber]struct{})
	h.closed = true
}
