// Package notify keeps the short list of status and error messages shown to
// a reader at the bottom of the page.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Capacity is the number of entries a Log retains.
const Capacity = 5

// ErrUnknownLevel is returned by ParseLevel for names outside the Level set.
var ErrUnknownLevel = errors.New("unknown notification level")

// Level is the severity of an Entry.
type Level int

// Severity levels, ordered from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}

	return levelNames[l]
}

// ParseLevel maps a level name to a Level, ignoring case and surrounding space.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if name == "WARNING" {
		name = "WARN"
	}

	for idx, candidate := range levelNames {
		if candidate == name {
			return Level(idx), nil
		}
	}

	return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, raw)
}

// Entry is one notification. It is a value: copies handed out by a Log never
// alias the Log's storage.
type Entry struct {
	Timestamp time.Time
	Message   string
	Level     Level
}

// Log is a bounded, insertion-ordered list of entries. Once the list holds
// Capacity entries every Append evicts the oldest one.
type Log struct {
	now     func() time.Time
	entries []Entry
	mu      sync.Mutex
}

// NewLog returns an empty Log that stamps entries with time.Now.
func NewLog() *Log {
	return &Log{now: time.Now, entries: make([]Entry, 0, Capacity+1)}
}

// Append records message as the newest entry and evicts from the front until
// the log is back within Capacity.
func (l *Log) Append(message string, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Timestamp: l.now(),
		Message:   message,
		Level:     level,
	})

	if overflow := len(l.entries) - Capacity; overflow > 0 {
		// Shift down in place so the backing array does not grow without bound.
		n := copy(l.entries, l.entries[overflow:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
	}
}

// Clear removes every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.entries)
	l.entries = l.entries[:0]
}

// Snapshot returns a copy of the entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)

	return out
}

// Len reports the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
