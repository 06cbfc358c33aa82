package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"headlines/internal/view"
)

// ErrInvalidInterval is returned for a non-positive refresh interval.
var ErrInvalidInterval = errors.New("refresh interval must be positive")

// FeedInput describes a feed to insert or update.
type FeedInput struct {
	URL         string
	Title       string
	Homepage    string
	Description string
	// Interval is only applied when the feed is first inserted. Zero means
	// DefaultIntervalSeconds.
	Interval time.Duration
}

// CacheMeta is the conditional-request state of a feed.
type CacheMeta struct {
	ETag            string
	LastModified    string
	UnchangedCount  int
	IntervalSeconds int64
}

// RefreshMeta is what a refresh attempt records on the feed row.
type RefreshMeta struct {
	LastCheckedAt  time.Time
	NextRefreshAt  time.Time
	ETag           string
	LastModified   string
	LastError      string
	UnchangedCount int
}

const feedColumns = `
SELECT f.id, COALESCE(f.custom_title, f.title) AS display_title, f.title, f.url,
       f.homepage, f.description, f.interval_seconds, f.active,
       (SELECT COUNT(*) FROM items i WHERE i.feed_id = f.id) AS item_count,
       (SELECT COUNT(*) FROM items i WHERE i.feed_id = f.id AND i.read_at IS NULL) AS unread_count,
       f.last_refreshed_at,
       f.last_error
FROM feeds f
`

// UpsertFeed inserts a feed or refreshes the source title, homepage and
// description of an existing one. It returns the feed ID.
func UpsertFeed(ctx context.Context, db *sql.DB, in FeedInput) (int64, error) {
	ctx = contextOrBackground(ctx)

	intervalSeconds := int64(in.Interval / time.Second)
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultIntervalSeconds
	}

	now := time.Now().UTC()

	_, err := db.ExecContext(ctx, `
INSERT INTO feeds (url, title, homepage, description, interval_seconds, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title = excluded.title,
	homepage = CASE WHEN excluded.homepage = '' THEN feeds.homepage ELSE excluded.homepage END,
	description = CASE WHEN excluded.description = '' THEN feeds.description ELSE excluded.description END
`, in.URL, fallbackString(in.Title, in.URL), strings.TrimSpace(in.Homepage), strings.TrimSpace(in.Description), intervalSeconds, now)
	if err != nil {
		return 0, fmt.Errorf("upsert feed row: %w", err)
	}

	var id int64

	err = db.QueryRowContext(ctx, "SELECT id FROM feeds WHERE url = ?", in.URL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup feed id by URL: %w", err)
	}

	return id, nil
}

// UpdateFeedTitle sets a custom title; an empty title restores the source title.
func UpdateFeedTitle(ctx context.Context, db *sql.DB, feedID int64, title string) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "UPDATE feeds SET custom_title = ? WHERE id = ?", nullString(title), feedID)
	if err != nil {
		return fmt.Errorf("update feed title: %w", err)
	}

	return expectAffected(res, "feed", feedID)
}

// DeleteFeed removes a feed together with its items.
func DeleteFeed(ctx context.Context, db *sql.DB, feedID int64) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}

	return expectAffected(res, "feed", feedID)
}

// SetFeedInterval changes how often a feed is refreshed. The next refresh is
// rescheduled relative to the last check.
func SetFeedInterval(ctx context.Context, db *sql.DB, feedID int64, interval time.Duration) error {
	ctx = contextOrBackground(ctx)

	seconds := int64(interval / time.Second)
	if seconds <= 0 {
		return ErrInvalidInterval
	}

	res, err := db.ExecContext(ctx, `
UPDATE feeds
SET interval_seconds = ?,
    next_refresh_at = NULL,
    unchanged_count = 0
WHERE id = ?
`, seconds, feedID)
	if err != nil {
		return fmt.Errorf("update feed interval: %w", err)
	}

	return expectAffected(res, "feed", feedID)
}

// ToggleFeedActive flips whether a feed is refreshed and returns the new state.
func ToggleFeedActive(ctx context.Context, db *sql.DB, feedID int64) (bool, error) {
	ctx = contextOrBackground(ctx)

	var active bool

	err := db.QueryRowContext(ctx, `
UPDATE feeds
SET active = CASE active WHEN 0 THEN 1 ELSE 0 END
WHERE id = ?
RETURNING active
`, feedID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}

	if err != nil {
		return false, fmt.Errorf("toggle feed active: %w", err)
	}

	return active, nil
}

// ListFeeds returns every feed ordered by display title.
func ListFeeds(ctx context.Context, db *sql.DB) ([]view.FeedView, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, feedColumns+`
ORDER BY display_title COLLATE NOCASE, f.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}

	defer closeRows(rows)

	var feeds []view.FeedView

	for rows.Next() {
		nextFeed, scanErr := scanFeedView(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		feeds = append(feeds, nextFeed)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate feed rows: %w", rowsErr)
	}

	slog.Debug("db list feeds", "count", len(feeds))

	return feeds, nil
}

// GetFeed loads one feed.
func GetFeed(ctx context.Context, db *sql.DB, feedID int64) (view.FeedView, error) {
	ctx = contextOrBackground(ctx)

	row := db.QueryRowContext(ctx, feedColumns+"WHERE f.id = ?", feedID)

	feed, err := scanFeedView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return view.FeedView{}, fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}

	if err != nil {
		return view.FeedView{}, err
	}

	return feed, nil
}

// GetFeedURL returns the URL of a feed.
func GetFeedURL(ctx context.Context, db *sql.DB, feedID int64) (string, error) {
	ctx = contextOrBackground(ctx)

	var u string

	err := db.QueryRowContext(ctx, "SELECT url FROM feeds WHERE id = ?", feedID).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}

	if err != nil {
		return "", fmt.Errorf("lookup feed URL for %d: %w", feedID, err)
	}

	return u, nil
}

// ListDueFeeds returns up to limit active feeds whose next refresh is due.
func ListDueFeeds(ctx context.Context, db *sql.DB, now time.Time, limit int) ([]int64, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, `
	SELECT id
	FROM feeds
	WHERE active = 1
	  AND (next_refresh_at IS NULL OR next_refresh_at <= ?)
	ORDER BY COALESCE(next_refresh_at, created_at)
	LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due feeds: %w", err)
	}

	defer closeRows(rows)

	var ids []int64

	for rows.Next() {
		var id int64

		scanErr := rows.Scan(&id)
		if scanErr != nil {
			return nil, fmt.Errorf("scan due feed ID: %w", scanErr)
		}

		ids = append(ids, id)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate due feed rows: %w", rowsErr)
	}

	return ids, nil
}

// GetCacheMeta loads the conditional-request state of a feed.
func GetCacheMeta(ctx context.Context, db *sql.DB, feedID int64) (CacheMeta, error) {
	ctx = contextOrBackground(ctx)

	var (
		etag           sql.NullString
		lastModified   sql.NullString
		unchangedCount sql.NullInt64
		interval       int64
	)

	err := db.QueryRowContext(ctx, `
SELECT etag, last_modified, unchanged_count, interval_seconds
FROM feeds
WHERE id = ?
`, feedID).Scan(&etag, &lastModified, &unchangedCount, &interval)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheMeta{}, fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
	}

	if err != nil {
		return CacheMeta{}, fmt.Errorf("load feed cache meta: %w", err)
	}

	return CacheMeta{
		ETag:            strings.TrimSpace(etag.String),
		LastModified:    strings.TrimSpace(lastModified.String),
		UnchangedCount:  int(unchangedCount.Int64),
		IntervalSeconds: interval,
	}, nil
}

// SaveRefreshMeta records the outcome of a refresh attempt.
func SaveRefreshMeta(ctx context.Context, db *sql.DB, feedID int64, meta RefreshMeta) error {
	ctx = contextOrBackground(ctx)

	if meta.LastCheckedAt.IsZero() {
		meta.LastCheckedAt = time.Now().UTC()
	}

	meta.UnchangedCount = max(meta.UnchangedCount, 0)

	_, err := db.ExecContext(ctx, `
UPDATE feeds
SET etag = COALESCE(?, etag),
    last_modified = COALESCE(?, last_modified),
    last_refreshed_at = ?,
    last_error = ?,
    unchanged_count = ?,
    next_refresh_at = ?
WHERE id = ?
`,
		nullString(meta.ETag),
		nullString(meta.LastModified),
		meta.LastCheckedAt,
		nullString(meta.LastError),
		meta.UnchangedCount,
		nullTimeToValue(sql.NullTime{Time: meta.NextRefreshAt, Valid: !meta.NextRefreshAt.IsZero()}),
		feedID,
	)
	if err != nil {
		return fmt.Errorf("update feed refresh meta: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedView(row rowScanner) (view.FeedView, error) {
	var fr view.FeedRow

	err := row.Scan(
		&fr.ID,
		&fr.Title,
		&fr.OriginalTitle,
		&fr.URL,
		&fr.Homepage,
		&fr.Description,
		&fr.IntervalSeconds,
		&fr.Active,
		&fr.ItemCount,
		&fr.UnreadCount,
		&fr.LastChecked,
		&fr.LastError,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return view.FeedView{}, err
		}

		return view.FeedView{}, fmt.Errorf("scan feed row: %w", err)
	}

	return view.BuildFeedView(fr), nil
}
