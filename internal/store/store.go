// Package store provides SQLite-backed persistence for feeds, items, tags,
// blacklist patterns and settings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Register the sqlite database/sql driver.
)

const (
	maxItemsPerFeed = 200
	readRetention   = 30 * time.Minute

	// DefaultIntervalSeconds is used for feeds subscribed without an interval.
	DefaultIntervalSeconds = 1800
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique value already exists.
	ErrDuplicate = errors.New("already exists")
)

// Open opens the SQLite database at path with foreign keys and WAL enabled.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite behaves best with a single connection for this workload.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;")
	if err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	homepage TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	custom_title TEXT,
	description TEXT NOT NULL DEFAULT '',
	interval_seconds INTEGER NOT NULL DEFAULT 1800 CHECK (interval_seconds > 0),
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	etag TEXT,
	last_modified TEXT,
	last_refreshed_at DATETIME,
	last_error TEXT,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	next_refresh_at DATETIME
);

CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_id INTEGER NOT NULL,
	guid TEXT NOT NULL,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	summary TEXT,
	content TEXT,
	published_at DATETIME,
	read_at DATETIME,
	rating INTEGER CHECK (rating IN (-1, 1)),
	predicted_boring INTEGER,
	created_at DATETIME NOT NULL,
	UNIQUE(feed_id, guid),
	FOREIGN KEY(feed_id) REFERENCES feeds(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS items_feed_idx ON items (feed_id);
CREATE INDEX IF NOT EXISTS items_published_idx ON items (published_at);

CREATE TABLE IF NOT EXISTS tombstones (
	feed_id INTEGER NOT NULL,
	guid TEXT NOT NULL,
	deleted_at DATETIME NOT NULL,
	PRIMARY KEY (feed_id, guid),
	FOREIGN KEY(feed_id) REFERENCES feeds(id) ON DELETE CASCADE
);

CREATE TRIGGER IF NOT EXISTS tombstones_prune
AFTER INSERT ON tombstones
BEGIN
	DELETE FROM tombstones
	WHERE datetime(deleted_at) <= datetime('now', '-30 days');
END;

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent INTEGER,
	name TEXT NOT NULL UNIQUE,
	slug TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(parent) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS tags_parent_idx ON tags (parent);

CREATE TABLE IF NOT EXISTS tag_links (
	tag_id INTEGER NOT NULL,
	item_id INTEGER NOT NULL,
	PRIMARY KEY (tag_id, item_id),
	FOREIGN KEY(tag_id) REFERENCES tags(id) ON DELETE CASCADE,
	FOREIGN KEY(item_id) REFERENCES items(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS tag_links_item_idx ON tag_links (item_id);

CREATE TABLE IF NOT EXISTS blacklist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Init creates the schema if it does not exist yet.
func Init(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schema)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	return ensurePredictionColumn(db)
}

func ensurePredictionColumn(db *sql.DB) error {
	var hasColumn int

	err := db.QueryRowContext(context.Background(), `
SELECT COUNT(*)
FROM pragma_table_info('items')
WHERE name = 'predicted_boring'
	`).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("check items.predicted_boring column: %w", err)
	}

	if hasColumn > 0 {
		return nil
	}

	_, err = db.ExecContext(context.Background(), "ALTER TABLE items ADD COLUMN predicted_boring INTEGER")
	if err != nil {
		return fmt.Errorf("add items.predicted_boring column: %w", err)
	}

	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func nullTimeToValue(value sql.NullTime) any {
	if value.Valid {
		return value.Time
	}

	return nil
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	return value
}

func nullInt64(value int64) any {
	if value <= 0 {
		return nil
	}

	return value
}

func rollbackTx(tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("tx rollback failed", "err", err)
	}
}

func closeRows(rows *sql.Rows) {
	closeErr := rows.Close()
	if closeErr != nil {
		slog.Warn("rows close failed", "err", closeErr)
	}
}

// expectAffected turns a zero-row update or delete into ErrNotFound.
func expectAffected(res sql.Result, what string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("count affected %s rows: %w", what, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
