package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// MaintenanceOptions selects the maintenance steps to run. A zero
// PurgeReadBefore skips the purge.
type MaintenanceOptions struct {
	PurgeReadBefore time.Time
	Vacuum          bool
	Analyze         bool
}

// MaintenanceReport summarizes a maintenance run.
type MaintenanceReport struct {
	PurgedItems int64
	SizeBefore  int64
	SizeAfter   int64
	Elapsed     time.Duration
}

// Maintain purges old read items and optionally vacuums and analyzes the
// database.
func Maintain(ctx context.Context, db *sql.DB, opts MaintenanceOptions) (MaintenanceReport, error) {
	ctx = contextOrBackground(ctx)
	start := time.Now()

	var report MaintenanceReport

	sizeBefore, err := DatabaseSize(ctx, db)
	if err != nil {
		return report, err
	}

	report.SizeBefore = sizeBefore

	if !opts.PurgeReadBefore.IsZero() {
		purged, purgeErr := PurgeReadItems(ctx, db, opts.PurgeReadBefore.UTC())
		if purgeErr != nil {
			return report, purgeErr
		}

		report.PurgedItems = purged
	}

	if opts.Vacuum {
		_, err = db.ExecContext(ctx, "VACUUM")
		if err != nil {
			return report, fmt.Errorf("vacuum database: %w", err)
		}
	}

	if opts.Analyze {
		_, err = db.ExecContext(ctx, "ANALYZE")
		if err != nil {
			return report, fmt.Errorf("analyze database: %w", err)
		}
	}

	report.SizeAfter, err = DatabaseSize(ctx, db)
	if err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)

	slog.Info("database maintenance finished",
		"purged", report.PurgedItems,
		"size_before", report.SizeBefore,
		"size_after", report.SizeAfter,
		"elapsed", report.Elapsed,
	)

	return report, nil
}

// DatabaseSize returns the size of the main database file in bytes.
func DatabaseSize(ctx context.Context, db *sql.DB) (int64, error) {
	ctx = contextOrBackground(ctx)

	var pageCount, pageSize int64

	err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}

	err = db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return 0, fmt.Errorf("read page size: %w", err)
	}

	return pageCount * pageSize, nil
}
