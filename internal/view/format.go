package view

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatTime renders an absolute timestamp in local time.
func FormatTime(t time.Time) string {
	return t.Local().Format("Jan 2, 2006 - 3:04 PM")
}

// FormatRelativeShort renders the age of t as a single compact unit.
func FormatRelativeShort(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "na"
	}

	age := max(now.Sub(t), 0)

	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	case age < 365*24*time.Hour:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	default:
		return fmt.Sprintf("%dy", int(age.Hours()/(24*365)))
	}
}

// FormatDuration renders d as "1d 2h 3m 4s", leaving out leading zero units.
// Durations under a second are shown in milliseconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		if d == math.MinInt64 {
			d++
		}

		return "-" + FormatDuration(-d)
	}

	if d == 0 {
		return "0s"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	units := []struct {
		suffix string
		size   time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}

	parts := make([]string, 0, len(units))
	remaining := d.Truncate(time.Second)

	for _, unit := range units {
		count := remaining / unit.size
		remaining -= count * unit.size

		if count == 0 && len(parts) == 0 {
			continue
		}

		parts = append(parts, fmt.Sprintf("%d%s", count, unit.suffix))
	}

	return strings.Join(parts, " ")
}

// FormatBytes renders a byte count with IEC units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		// Two's complement magnitude, valid for math.MinInt64 too.
		return "-" + humanize.IBytes(uint64(^n)+1)
	}

	return humanize.IBytes(uint64(n))
}

// FormatInterval renders a refresh interval in seconds as hh:mm:ss.
func FormatInterval(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
