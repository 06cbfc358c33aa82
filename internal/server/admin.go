package server

import (
	"fmt"
	"net/http"
	"time"

	"headlines/internal/blacklist"
	"headlines/internal/store"
	"headlines/internal/view"
)

func (a *App) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := store.ListPatterns(r.Context(), a.db)
	if err != nil {
		a.fail(w, r, "list blacklist", err)

		return
	}

	a.ok(w, "", map[string]any{"patterns": patterns})
}

// handleCheckPattern compiles a candidate pattern and counts the stored items
// it would have kept out.
func (a *App) handleCheckPattern(w http.ResponseWriter, r *http.Request) {
	pattern, err := a.formPattern(w, r)
	if err != nil {
		a.fail(w, r, "check pattern", err)

		return
	}

	matcher, err := blacklist.NewMatcher([]string{pattern})
	if err != nil {
		a.fail(w, r, "check pattern", err)

		return
	}

	matches, err := store.CountMatchingItems(r.Context(), a.db, func(title, summary string) bool {
		_, ok := matcher.Match(title, summary)

		return ok
	})
	if err != nil {
		a.fail(w, r, "check pattern", err)

		return
	}

	a.ok(w, "", map[string]any{"pattern": pattern, "valid": true, "matches": matches})
}

func (a *App) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	pattern, err := a.formPattern(w, r)

	var added view.PatternView
	if err == nil {
		added, err = store.AddPattern(r.Context(), a.db, pattern)
	}

	if err != nil {
		a.fail(w, r, "add pattern", err)

		return
	}

	a.ok(w, "", map[string]any{"pattern": added})
}

func (a *App) handleUpdatePattern(w http.ResponseWriter, r *http.Request) {
	patternID, err := parsePathInt64(r, "patternID")

	var pattern string
	if err == nil {
		pattern, err = a.formPattern(w, r)
	}

	if err == nil {
		err = store.UpdatePattern(r.Context(), a.db, patternID, pattern)
	}

	if err != nil {
		a.fail(w, r, "update pattern", err)

		return
	}

	a.ok(w, "", map[string]any{"id": patternID, "pattern": pattern})
}

func (a *App) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	patternID, err := parsePathInt64(r, "patternID")
	if err == nil {
		err = store.DeletePattern(r.Context(), a.db, patternID)
	}

	if err != nil {
		a.fail(w, r, "delete pattern", err)

		return
	}

	a.ok(w, "", map[string]any{"id": patternID})
}

// formPattern reads and validates the pattern field.
func (*App) formPattern(w http.ResponseWriter, r *http.Request) (string, error) {
	err := parseForm(w, r)
	if err != nil {
		return "", err
	}

	raw := r.FormValue("pattern")

	_, err = blacklist.Compile(raw)
	if err != nil {
		return "", err
	}

	return raw, nil
}

func (a *App) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	err := parseForm(w, r)

	var opts store.MaintenanceOptions

	var purgeDays int64
	if err == nil {
		purgeDays, err = optionalInt64(r, "purge_days")
	}

	if err == nil {
		opts.Vacuum, err = optionalBool(r, "vacuum")
	}

	if err == nil {
		opts.Analyze, err = optionalBool(r, "analyze")
	}

	if err != nil {
		a.fail(w, r, "maintenance", err)

		return
	}

	if purgeDays > 0 {
		opts.PurgeReadBefore = time.Now().UTC().Add(-time.Duration(purgeDays) * 24 * time.Hour)
	}

	report, err := store.Maintain(r.Context(), a.db, opts)
	if err != nil {
		a.fail(w, r, "maintenance", err)

		return
	}

	message := fmt.Sprintf("Maintenance finished in %s: %d items purged, database %s (was %s)",
		view.FormatDuration(report.Elapsed),
		report.PurgedItems,
		view.FormatBytes(report.SizeAfter),
		view.FormatBytes(report.SizeBefore),
	)
	a.notice(r, message)
	a.ok(w, message, map[string]any{
		"purged":      report.PurgedItems,
		"size_before": view.FormatBytes(report.SizeBefore),
		"size_after":  view.FormatBytes(report.SizeAfter),
		"elapsed":     view.FormatDuration(report.Elapsed),
	})
}

func (a *App) handleBeacon(w http.ResponseWriter, r *http.Request) {
	settings, err := store.GetSettings(r.Context(), a.db)
	if err != nil {
		a.fail(w, r, "beacon", err)

		return
	}

	a.ok(w, "", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"hostname":  a.hostname,
		"active":    settings.Beacon,
		"interval":  int(a.opts.BeaconInterval / time.Second),
	})
}

func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := store.GetSettings(r.Context(), a.db)
	if err != nil {
		a.fail(w, r, "load settings", err)

		return
	}

	a.ok(w, "", map[string]any{"settings": settings})
}

func (a *App) handleToggleSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := store.ToggleSetting(r.Context(), a.db, key)
	if err != nil {
		a.fail(w, r, "toggle setting", err)

		return
	}

	a.ok(w, "", map[string]any{"key": key, "value": value})
}
