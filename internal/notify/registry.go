package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Event describes the state of one session's log after a change.
type Event struct {
	Session string
	Entries []Entry
}

// Observer is called after every Append or Clear made through a Registry.
// It runs on the caller's goroutine while the session's log is held for
// publishing, so events of one session arrive in the order the changes were
// made. It must not block.
type Observer func(Event)

// sessionLog pairs a Log with its bookkeeping. publishMu is held across a
// change and the publication of the resulting snapshot.
type sessionLog struct {
	log       *Log
	lastUsed  time.Time
	publishMu sync.Mutex
}

// Registry owns one Log per browser session.
type Registry struct {
	now      func() time.Time
	observer Observer
	sessions map[string]*sessionLog
	mu       sync.Mutex
}

// NewRegistry returns an empty Registry. observer may be nil.
func NewRegistry(observer Observer) *Registry {
	return &Registry{
		now:      time.Now,
		observer: observer,
		sessions: make(map[string]*sessionLog),
	}
}

// Log returns the log for session, creating it on first use.
func (r *Registry) Log(session string) *Log {
	return r.session(session).log
}

func (r *Registry) session(session string) *sessionLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[session]
	if !ok {
		entry = &sessionLog{log: NewLog()}
		entry.log.now = r.now
		r.sessions[session] = entry
	}

	entry.lastUsed = r.now()

	return entry
}

// Append adds message to the session's log and notifies the observer.
func (r *Registry) Append(session, message string, level Level) {
	entry := r.session(session)

	entry.publishMu.Lock()
	defer entry.publishMu.Unlock()

	entry.log.Append(message, level)
	r.publish(session, entry.log)
}

// Clear empties the session's log and notifies the observer.
func (r *Registry) Clear(session string) {
	entry := r.session(session)

	entry.publishMu.Lock()
	defer entry.publishMu.Unlock()

	entry.log.Clear()
	r.publish(session, entry.log)
}

// Snapshot returns the entries of the session's log.
func (r *Registry) Snapshot(session string) []Entry {
	return r.Log(session).Snapshot()
}

// Len reports how many sessions currently own a log.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Prune drops logs that have not been touched for longer than ttl and
// returns how many were removed.
func (r *Registry) Prune(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	removed := 0

	for session, entry := range r.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(r.sessions, session)

			removed++
		}
	}

	if removed > 0 {
		slog.Info("notification logs pruned", "removed", removed, "remaining", len(r.sessions))
	}

	return removed
}

func (r *Registry) publish(session string, l *Log) {
	if r.observer == nil {
		return
	}

	r.observer(Event{Session: session, Entries: l.Snapshot()})
}
