package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	errBadInterval = errors.New("interval must be seconds, a duration like 1h30m or hh:mm:ss, and positive")
	errBadBool     = errors.New("expected a boolean value")
	errBadUpload   = errors.New("invalid upload")
)

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	err := r.ParseForm()
	if err != nil {
		return fmt.Errorf("read form: %w", err)
	}

	return nil
}

func requiredValue(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingField, key)
	}

	return value, nil
}

func optionalInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s %q", errBadPathID, key, raw)
	}

	return value, nil
}

func optionalBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return false, nil
	}

	if raw == "on" {
		return true, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s %q", errBadBool, key, raw)
	}

	return value, nil
}

// parseInterval accepts plain seconds, a Go duration or hh:mm:ss.
func parseInterval(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)

	var interval time.Duration

	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		interval = time.Duration(seconds) * time.Second
	} else if parsed, err := time.ParseDuration(raw); err == nil {
		interval = parsed
	} else if clock, ok := parseClock(raw); ok {
		interval = clock
	} else {
		return 0, fmt.Errorf("%w: %q", errBadInterval, raw)
	}

	if interval < time.Second {
		return 0, fmt.Errorf("%w: %q", errBadInterval, raw)
	}

	return interval, nil
}

func parseClock(raw string) (time.Duration, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, false
	}

	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var total time.Duration

	for idx, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 || (idx > 0 && value > 59) {
			return 0, false
		}

		total += time.Duration(value) * units[idx]
	}

	return total, true
}
