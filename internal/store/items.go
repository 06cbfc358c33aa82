package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"headlines/internal/classify"
	"headlines/internal/content"
	"headlines/internal/view"
)

// ErrInvalidRating is returned for a rating other than -1 or 1.
var ErrInvalidRating = errors.New("rating must be -1 or 1")

// SkipFunc decides whether an incoming item is dropped before it is stored.
// It receives the item title and the plain text of its summary.
type SkipFunc func(title, summary string) bool

// JudgeFunc predicts whether an unrated item is boring from its title and
// raw summary. ok is false when no prediction can be made.
type JudgeFunc func(title, summary string) (boring, ok bool)

// ItemQuery selects items for listing. A zero FeedID lists across feeds.
type ItemQuery struct {
	FeedID          int64
	Limit           int
	BoringThreshold int
	HideBoring      bool
}

const itemColumns = `
SELECT i.id, i.feed_id, i.title, i.link, COALESCE(f.custom_title, f.title),
       i.summary, i.content, i.published_at, i.read_at, i.rating, i.predicted_boring
FROM items i
JOIN feeds f ON f.id = i.feed_id
`

// UpsertItems stores items that are not yet known for the feed.
func UpsertItems(ctx context.Context, db *sql.DB, feedID int64, items []*gofeed.Item) (int, error) {
	inserted, _, err := UpsertFilteredItems(ctx, db, feedID, items, nil)

	return inserted, err
}

// UpsertFilteredItems stores items that are not yet known for the feed and
// not rejected by skip. It returns the number inserted and skipped.
func UpsertFilteredItems(
	ctx context.Context,
	db *sql.DB,
	feedID int64,
	items []*gofeed.Item,
	skip SkipFunc,
) (int, int, error) {
	ctx = contextOrBackground(ctx)

	now := time.Now().UTC()

	stmt, err := db.PrepareContext(ctx, `
INSERT OR IGNORE INTO items
(feed_id, guid, title, link, summary, content, published_at, created_at)
SELECT ?, ?, ?, ?, ?, ?, ?, ?
WHERE NOT EXISTS (
	SELECT 1 FROM tombstones WHERE feed_id = ? AND guid = ?
)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare item upsert statement: %w", err)
	}

	defer func() {
		closeErr := stmt.Close()
		if closeErr != nil {
			slog.Warn("stmt close failed", "err", closeErr)
		}
	}()

	inserted := 0
	skipped := 0

	for idx, item := range items {
		if skip != nil && skip(item.Title, content.PlainText(item.Description)) {
			skipped++

			continue
		}

		added, execErr := upsertItemWithStmt(ctx, stmt, feedID, idx, item, now)
		if execErr != nil {
			return inserted, skipped, execErr
		}

		inserted += added
	}

	return inserted, skipped, nil
}

func upsertItemWithStmt(
	ctx context.Context,
	stmt *sql.Stmt,
	feedID int64,
	idx int,
	item *gofeed.Item,
	now time.Time,
) (int, error) {
	guid := deriveItemGUID(feedID, idx, item)
	publishedAt := deriveItemPublishedAt(item)

	res, execErr := stmt.ExecContext(ctx,
		feedID,
		guid,
		fallbackString(strings.TrimSpace(item.Title), "(untitled)"),
		fallbackString(item.Link, "#"),
		content.Sanitize(item.Description),
		content.Sanitize(item.Content),
		nullTimeToValue(publishedAt),
		now,
		feedID,
		guid,
	)
	if execErr != nil {
		return 0, fmt.Errorf("execute item upsert statement: %w", execErr)
	}

	affected, rowsErr := res.RowsAffected()
	if rowsErr != nil {
		return 0, fmt.Errorf("count upserted item rows: %w", rowsErr)
	}

	if affected <= 0 {
		return 0, nil
	}

	return int(affected), nil
}

func deriveItemGUID(feedID int64, idx int, item *gofeed.Item) string {
	candidates := []string{
		strings.TrimSpace(item.GUID),
		strings.TrimSpace(item.Link),
		strings.TrimSpace(item.Title),
	}
	for _, guid := range candidates {
		if guid != "" {
			return guid
		}
	}

	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC3339Nano)
	}

	return fmt.Sprintf("feed-%d-item-%d", feedID, idx)
}

func deriveItemPublishedAt(item *gofeed.Item) sql.NullTime {
	switch {
	case item.PublishedParsed != nil:
		return sql.NullTime{Time: item.PublishedParsed.UTC(), Valid: true}
	case item.UpdatedParsed != nil:
		return sql.NullTime{Time: item.UpdatedParsed.UTC(), Valid: true}
	default:
		return sql.NullTime{}
	}
}

// EnforceItemLimit keeps the newest maxItemsPerFeed items of a feed and
// tombstones the rest so they are not fetched again.
func EnforceItemLimit(ctx context.Context, db *sql.DB, feedID int64) error {
	ctx = contextOrBackground(ctx)

	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enforce item limit transaction: %w", err)
	}

	defer rollbackTx(tx)

	_, err = tx.ExecContext(ctx, `
INSERT OR IGNORE INTO tombstones (feed_id, guid, deleted_at)
SELECT feed_id, guid, ?
FROM items
WHERE feed_id = ?
  AND id NOT IN (
	SELECT id FROM items
	WHERE feed_id = ?
	ORDER BY COALESCE(published_at, created_at) DESC, id DESC
	LIMIT ?
  )
	`, now, feedID, feedID, maxItemsPerFeed)
	if err != nil {
		return fmt.Errorf("insert tombstones for pruned items: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
DELETE FROM items
WHERE feed_id = ?
  AND id NOT IN (
	SELECT id FROM items
	WHERE feed_id = ?
	ORDER BY COALESCE(published_at, created_at) DESC, id DESC
	LIMIT ?
  )
	`, feedID, feedID, maxItemsPerFeed)
	if err != nil {
		return fmt.Errorf("delete items beyond item limit: %w", err)
	}

	commitErr := tx.Commit()
	if commitErr != nil {
		return fmt.Errorf("commit enforce item limit transaction: %w", commitErr)
	}

	return nil
}

// ListItems returns items newest first, each with its tags.
func ListItems(ctx context.Context, db *sql.DB, q ItemQuery) ([]view.ItemView, error) {
	ctx = contextOrBackground(ctx)

	var (
		where []string
		args  []any
	)

	if q.FeedID > 0 {
		where = append(where, "i.feed_id = ?")
		args = append(args, q.FeedID)
	}

	if q.HideBoring {
		where = append(where, "((i.rating IS NULL AND COALESCE(i.predicted_boring, 0) = 0) OR i.rating > ?)")
		args = append(args, q.BoringThreshold)
	}

	query := itemColumns
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}

	query += "ORDER BY COALESCE(i.published_at, i.created_at) DESC, i.id DESC\n"

	if q.Limit > 0 {
		query += "LIMIT ?"

		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	defer closeRows(rows)

	items := make([]view.ItemView, 0)

	for rows.Next() {
		item, scanErr := scanItemView(rows, q.BoringThreshold)
		if scanErr != nil {
			return nil, scanErr
		}

		items = append(items, item)
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate item rows: %w", rowsErr)
	}

	err = attachTags(ctx, db, items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// GetItem loads one item with its tags.
func GetItem(ctx context.Context, db *sql.DB, itemID int64, boringThreshold int) (view.ItemView, error) {
	ctx = contextOrBackground(ctx)

	row := db.QueryRowContext(ctx, itemColumns+"WHERE i.id = ?", itemID)

	item, err := scanItemView(row, boringThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return view.ItemView{}, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	if err != nil {
		return view.ItemView{}, err
	}

	tags, err := TagsForItem(ctx, db, itemID)
	if err != nil {
		return view.ItemView{}, err
	}

	item.Tags = tags

	return item, nil
}

// RateItem sets an item's rating to -1 or 1.
func RateItem(ctx context.Context, db *sql.DB, itemID int64, rating int) error {
	ctx = contextOrBackground(ctx)

	if rating != -1 && rating != 1 {
		return ErrInvalidRating
	}

	res, err := db.ExecContext(ctx, "UPDATE items SET rating = ? WHERE id = ?", rating, itemID)
	if err != nil {
		return fmt.Errorf("rate item: %w", err)
	}

	return expectAffected(res, "item", itemID)
}

// UnrateItem clears an item's rating.
func UnrateItem(ctx context.Context, db *sql.DB, itemID int64) error {
	ctx = contextOrBackground(ctx)

	res, err := db.ExecContext(ctx, "UPDATE items SET rating = NULL WHERE id = ?", itemID)
	if err != nil {
		return fmt.Errorf("unrate item: %w", err)
	}

	return expectAffected(res, "item", itemID)
}

// TrainingSamples returns the text of every rated item, marked boring when
// its rating is at or below boringThreshold.
func TrainingSamples(ctx context.Context, db *sql.DB, boringThreshold int) ([]classify.Sample, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, "SELECT title, COALESCE(summary, ''), rating FROM items WHERE rating IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query rated items: %w", err)
	}

	defer closeRows(rows)

	var samples []classify.Sample

	for rows.Next() {
		var (
			title, summary string
			rating         int
		)

		scanErr := rows.Scan(&title, &summary, &rating)
		if scanErr != nil {
			return nil, fmt.Errorf("scan rated item: %w", scanErr)
		}

		samples = append(samples, classify.Sample{
			Text:   classify.ItemText(title, summary),
			Boring: rating <= boringThreshold,
		})
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return nil, fmt.Errorf("iterate rated items: %w", rowsErr)
	}

	return samples, nil
}

// ClassifyItems stores judge's prediction for unrated items. With onlyNew
// set, items that already carry a prediction are left alone. It returns how
// many items were predicted boring.
func ClassifyItems(ctx context.Context, db *sql.DB, judge JudgeFunc, onlyNew bool) (int, error) {
	ctx = contextOrBackground(ctx)

	query := "SELECT id, title, COALESCE(summary, '') FROM items WHERE rating IS NULL"
	if onlyNew {
		query += " AND predicted_boring IS NULL"
	}

	type prediction struct {
		value any
		id    int64
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query unrated items: %w", err)
	}

	var predictions []prediction

	boring := 0

	for rows.Next() {
		var (
			id             int64
			title, summary string
		)

		scanErr := rows.Scan(&id, &title, &summary)
		if scanErr != nil {
			closeRows(rows)

			return 0, fmt.Errorf("scan unrated item: %w", scanErr)
		}

		var value any

		isBoring, ok := judge(title, summary)
		if ok {
			value = 0

			if isBoring {
				value = 1
				boring++
			}
		}

		predictions = append(predictions, prediction{value: value, id: id})
	}

	rowsErr := rows.Err()
	closeRows(rows)

	if rowsErr != nil {
		return 0, fmt.Errorf("iterate unrated items: %w", rowsErr)
	}

	if len(predictions) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin classify items transaction: %w", err)
	}

	defer rollbackTx(tx)

	for _, p := range predictions {
		_, err = tx.ExecContext(ctx, "UPDATE items SET predicted_boring = ? WHERE id = ?", p.value, p.id)
		if err != nil {
			return 0, fmt.Errorf("store item prediction: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit classify items transaction: %w", err)
	}

	return boring, nil
}

// ToggleRead flips the read state of an item.
func ToggleRead(ctx context.Context, db *sql.DB, itemID int64) error {
	ctx = contextOrBackground(ctx)

	now := time.Now().UTC()

	res, err := db.ExecContext(ctx, `
UPDATE items
SET read_at = CASE WHEN read_at IS NULL THEN ? ELSE NULL END
WHERE id = ?
`, now, itemID)
	if err != nil {
		return fmt.Errorf("toggle item read state: %w", err)
	}

	return expectAffected(res, "item", itemID)
}

// MarkAllRead marks every unread item of a feed as read.
func MarkAllRead(ctx context.Context, db *sql.DB, feedID int64) error {
	ctx = contextOrBackground(ctx)

	_, err := db.ExecContext(ctx, "UPDATE items SET read_at = ? WHERE feed_id = ? AND read_at IS NULL", time.Now().UTC(), feedID)
	if err != nil {
		return fmt.Errorf("mark all feed items read: %w", err)
	}

	return nil
}

// CleanupReadItems deletes unrated items that were read longer ago than the
// read retention period.
func CleanupReadItems(ctx context.Context, db *sql.DB) (int64, error) {
	return PurgeReadItems(ctx, db, time.Now().UTC().Add(-readRetention))
}

// PurgeReadItems deletes unrated, untagged items read before cutoff and
// tombstones them so a refresh does not bring them back.
func PurgeReadItems(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	ctx = contextOrBackground(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge read items transaction: %w", err)
	}

	defer rollbackTx(tx)

	const purgeable = `
FROM items
WHERE read_at IS NOT NULL
  AND read_at <= ?
  AND rating IS NULL
  AND NOT EXISTS (SELECT 1 FROM tag_links l WHERE l.item_id = items.id)
`

	_, err = tx.ExecContext(ctx, `
INSERT OR IGNORE INTO tombstones (feed_id, guid, deleted_at)
SELECT feed_id, guid, ?
`+purgeable, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("tombstone read items: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE "+purgeable, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete read items: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted read items: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit purge read items transaction: %w", err)
	}

	if deleted > 0 {
		slog.Info("read items purged", "deleted", deleted)
	}

	return deleted, nil
}

// CountMatchingItems counts stored items for which match returns true. It
// receives the same title and plain-text summary a SkipFunc would.
func CountMatchingItems(ctx context.Context, db *sql.DB, match SkipFunc) (int, error) {
	ctx = contextOrBackground(ctx)

	rows, err := db.QueryContext(ctx, "SELECT title, COALESCE(summary, '') FROM items")
	if err != nil {
		return 0, fmt.Errorf("query item texts: %w", err)
	}

	defer closeRows(rows)

	count := 0

	for rows.Next() {
		var title, summary string

		scanErr := rows.Scan(&title, &summary)
		if scanErr != nil {
			return 0, fmt.Errorf("scan item text: %w", scanErr)
		}

		if match(title, content.PlainText(summary)) {
			count++
		}
	}

	rowsErr := rows.Err()
	if rowsErr != nil {
		return 0, fmt.Errorf("iterate item texts: %w", rowsErr)
	}

	return count, nil
}

func scanItemView(row rowScanner, boringThreshold int) (view.ItemView, error) {
	var ir view.ItemRow

	err := row.Scan(
		&ir.ID,
		&ir.FeedID,
		&ir.Title,
		&ir.Link,
		&ir.FeedTitle,
		&ir.Summary,
		&ir.Content,
		&ir.Published,
		&ir.ReadAt,
		&ir.Rating,
		&ir.PredictedBoring,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return view.ItemView{}, err
		}

		return view.ItemView{}, fmt.Errorf("scan item row: %w", err)
	}

	return view.BuildItemView(ir, boringThreshold), nil
}
