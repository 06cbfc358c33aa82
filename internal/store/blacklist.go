package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"headlines/internal/view"
)

// ListPatterns returns the blacklist, oldest first.
func ListPatterns(ctx context.Context, db *sql.DB) ([]view.PatternView, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, "SELECT id, pattern, created_at FROM blacklist ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query blacklist: %w", err)
	}

	defer closeRows(rows)

	patterns := make([]view.PatternView, 0)

	for rows.Next() {
		var (
			pattern view.PatternView
			created time.Time
		)

		scanErr := rows.Scan(&pattern.ID, &pattern.Pattern, &created)
		if scanErr != nil {
			return nil, fmt.Errorf("scan blacklist row: %w", scanErr)
		}

		pattern.CreatedDisplay = view.FormatTime(created)
		patterns = append(patterns, pattern)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate blacklist rows: %w", rowsErr)
	}

	return patterns, nil
}

// PatternSources returns just the pattern texts.
func PatternSources(ctx context.Context, db *sql.DB) ([]string, error) {
	patterns, err := ListPatterns(ctx, db)
	if err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		sources = append(sources, pattern.Pattern)
	}

	return sources, nil
}

// AddPattern stores a new pattern. Callers validate the pattern first.
func AddPattern(ctx context.Context, db *sql.DB, pattern string) (view.PatternView, error) {
	ctx = contextOrBackground(ctx)

	pattern = strings.TrimSpace(pattern)
	now := time.Now().UTC()

	var id int64

	err := db.QueryRowContext(ctx,
		"INSERT INTO blacklist (pattern, created_at) VALUES (?, ?) RETURNING id",
		pattern, now,
	).Scan(&id)
	if isUniqueViolation(err) {
		return view.PatternView{}, fmt.Errorf("pattern %q: %w", pattern, ErrDuplicate)
	}

	if err != nil {
		return view.PatternView{}, fmt.Errorf("insert blacklist pattern: %w", err)
	}

	return view.PatternView{ID: id, Pattern: pattern, CreatedDisplay: view.FormatTime(now)}, nil
}

// UpdatePattern replaces the text of a pattern.
func UpdatePattern(ctx context.Context, db *sql.DB, id int64, pattern string) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "UPDATE blacklist SET pattern = ? WHERE id = ?", strings.TrimSpace(pattern), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("pattern %q: %w", pattern, ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("update blacklist pattern: %w", err)
	}

	return expectAffected(res, "blacklist pattern", id)
}

// DeletePattern removes a pattern.
func DeletePattern(ctx context.Context, db *sql.DB, id int64) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "DELETE FROM blacklist WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete blacklist pattern: %w", err)
	}

	return expectAffected(res, "blacklist pattern", id)
}
