package notify

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(start time.Time) *Log {
	l := NewLog()
	tick := start
	l.now = func() time.Time {
		tick = tick.Add(time.Second)

		return tick
	}

	return l
}

func messages(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Message)
	}

	return out
}

func TestAppendPreservesOrder(t *testing.T) {
	l := NewLog()

	l.Append("A", LevelInfo)
	l.Append("B", LevelError)
	l.Append("C", LevelInfo)

	assert.Equal(t, []string{"A", "B", "C"}, messages(l.Snapshot()))
}

func TestAppendEvictsOldestWhenFull(t *testing.T) {
	l := NewLog()

	steps := []struct {
		message string
		level   Level
	}{
		{"a", LevelInfo},
		{"b", LevelError},
		{"c", LevelInfo},
		{"d", LevelError},
		{"e", LevelInfo},
		{"f", LevelError},
	}
	for _, step := range steps {
		l.Append(step.message, step.level)
	}

	entries := l.Snapshot()
	require.Len(t, entries, Capacity)
	assert.Equal(t, []string{"b", "c", "d", "e", "f"}, messages(entries))
	assert.Equal(t, LevelError, entries[0].Level)
	assert.Equal(t, LevelError, entries[4].Level)
}

func TestAppendNeverExceedsCapacity(t *testing.T) {
	l := NewLog()

	for i := range 50 {
		l.Append(fmt.Sprintf("message %d", i), Level(i%4))
		require.LessOrEqual(t, l.Len(), Capacity, "after append %d", i)

		if i >= Capacity-1 {
			require.Equal(t, Capacity, l.Len(), "after append %d", i)
		}
	}

	assert.Equal(t,
		[]string{"message 45", "message 46", "message 47", "message 48", "message 49"},
		messages(l.Snapshot()),
	)
}

func TestEvictionIgnoresSeverity(t *testing.T) {
	l := NewLog()

	l.Append("important", LevelError)
	for i := range Capacity {
		l.Append(fmt.Sprintf("info %d", i), LevelInfo)
	}

	assert.NotContains(t, messages(l.Snapshot()), "important")
}

func TestClear(t *testing.T) {
	l := NewLog()

	l.Clear()
	assert.Equal(t, 0, l.Len())

	l.Append("x", LevelInfo)
	l.Append("y", LevelWarn)
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())

	l.Append("z", LevelInfo)
	assert.Equal(t, []string{"z"}, messages(l.Snapshot()))
}

func TestEntriesAreImmutable(t *testing.T) {
	start := time.Date(2025, 10, 11, 12, 0, 0, 0, time.UTC)
	l := newTestLog(start)

	l.Append("first", LevelWarn)
	before := l.Snapshot()[0]

	before.Message = "changed by caller"

	for i := range Capacity - 1 {
		l.Append(fmt.Sprintf("later %d", i), LevelInfo)
	}

	first := l.Snapshot()[0]
	assert.Equal(t, "first", first.Message)
	assert.Equal(t, LevelWarn, first.Level)
	assert.Equal(t, start.Add(time.Second), first.Timestamp)

	kept := l.Snapshot()
	l.Clear()
	assert.Equal(t, "first", kept[0].Message)
}

func TestEmptyMessageIsKept(t *testing.T) {
	l := NewLog()

	l.Append("", LevelError)

	entries := l.Snapshot()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Message)
}

func TestConcurrentAppendsStayWithinCapacity(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				l.Append(fmt.Sprintf("w%d-%d", worker, i), LevelInfo)

				if n := l.Len(); n > Capacity {
					t.Errorf("log grew to %d entries", n)
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, Capacity, l.Len())
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"Warning", LevelWarn},
		{"error", LevelError},
	}

	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLevel("3")
	require.ErrorIs(t, err, ErrUnknownLevel)

	_, err = ParseLevel("")
	require.ErrorIs(t, err, ErrUnknownLevel)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "LEVEL(9)", Level(9).String())
}
