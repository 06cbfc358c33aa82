// Package feed fetches feeds over HTTP and refreshes stored feeds.
package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"headlines/internal/blacklist"
	"headlines/internal/store"
)

const (
	// DefaultInterval is the refresh interval of a feed subscribed without one.
	DefaultInterval = store.DefaultIntervalSeconds * time.Second

	refreshBackoffMax = 12 * time.Hour
	refreshJitterMin  = 0.10
	refreshJitterMax  = 0.20
	feedFetchTimeout  = 15 * time.Second
	maxErrorLength    = 300
	userAgent         = "headlines/1.0"
)

var (
	// ErrNoContent is returned when a feed answers without a parsable body.
	ErrNoContent = errors.New("feed returned no content")
	// ErrEmptyURL is returned for a blank feed URL.
	ErrEmptyURL = errors.New("feed URL is required")
	// ErrInvalidURL is returned for a feed URL without scheme or host.
	ErrInvalidURL = errors.New("feed URL looks invalid")
)

// FetchResult is the outcome of one conditional GET.
type FetchResult struct {
	Feed         *gofeed.Feed
	ETag         string
	LastModified string
	StatusCode   int
	NotModified  bool
}

// Outcome summarizes a refresh.
type Outcome struct {
	FeedID      int64
	Inserted    int
	Skipped     int
	NotModified bool
}

// NormalizeURL trims raw and defaults it to https when no scheme is given.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyURL
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.ParseRequestURI(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	return u.String(), nil
}

// Fetch downloads and parses feedURL, sending the cached validators.
func Fetch(ctx context.Context, feedURL, etag, lastModified string) (*FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if strings.TrimSpace(etag) != "" {
		req.Header.Set("If-None-Match", etag)
	}

	if strings.TrimSpace(lastModified) != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	client := &http.Client{Timeout: feedFetchTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Warn("feed body close failed", "feed_url", feedURL, "err", closeErr)
		}
	}()

	result := &FetchResult{
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
		StatusCode:   resp.StatusCode,
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true

		return result, nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d from feed", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result.Feed = parsed

	return result, nil
}

// LoadFilter builds a store.SkipFunc from the stored blacklist. Patterns that
// no longer compile are logged and ignored.
func LoadFilter(ctx context.Context, db *sql.DB) (store.SkipFunc, error) {
	sources, err := store.PatternSources(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	matcher, err := blacklist.NewMatcher(sources)
	if err != nil {
		slog.Warn("blacklist patterns ignored", "err", err)
	}

	if matcher.Len() == 0 {
		return nil, nil
	}

	return func(title, summary string) bool {
		pattern, ok := matcher.Match(title, summary)
		if ok {
			slog.Debug("item blacklisted", "title", title, "pattern", pattern)
		}

		return ok
	}, nil
}

// Store saves a fetched feed and its items, skipping blacklisted items and
// trimming the feed to its item limit.
func Store(ctx context.Context, db *sql.DB, in store.FeedInput, parsed *gofeed.Feed) (Outcome, error) {
	if parsed == nil {
		return Outcome{}, ErrNoContent
	}

	in.Title = strings.TrimSpace(parsed.Title)
	if in.Homepage == "" {
		in.Homepage = strings.TrimSpace(parsed.Link)
	}

	if in.Description == "" {
		in.Description = strings.TrimSpace(parsed.Description)
	}

	feedID, err := store.UpsertFeed(ctx, db, in)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert feed: %w", err)
	}

	skip, err := LoadFilter(ctx, db)
	if err != nil {
		return Outcome{FeedID: feedID}, err
	}

	inserted, skipped, err := store.UpsertFilteredItems(ctx, db, feedID, parsed.Items, skip)
	if err != nil {
		return Outcome{FeedID: feedID}, fmt.Errorf("upsert feed items: %w", err)
	}

	err = store.EnforceItemLimit(ctx, db, feedID)
	if err != nil {
		return Outcome{FeedID: feedID}, fmt.Errorf("enforce item limit: %w", err)
	}

	return Outcome{FeedID: feedID, Inserted: inserted, Skipped: skipped}, nil
}

// Refresh fetches one stored feed and records the outcome on its row, errors
// included.
func Refresh(ctx context.Context, db *sql.DB, feedID int64) (Outcome, error) {
	feedURL, err := store.GetFeedURL(ctx, db, feedID)
	if err != nil {
		slog.Error("refresh feed lookup failed", "feed_id", feedID, "err", err)

		return Outcome{}, err
	}

	cache, err := store.GetCacheMeta(ctx, db, feedID)
	if err != nil {
		slog.Error("refresh feed cache lookup failed", "feed_id", feedID, "feed_url", feedURL, "err", err)

		return Outcome{}, err
	}

	interval := time.Duration(cache.IntervalSeconds) * time.Second

	start := time.Now()
	result, err := Fetch(ctx, feedURL, cache.ETag, cache.LastModified)
	duration := time.Since(start).Milliseconds()
	checkedAt := time.Now().UTC()

	meta := store.RefreshMeta{LastCheckedAt: checkedAt}

	if err == nil && !result.NotModified && result.Feed == nil {
		err = ErrNoContent
	}

	if err != nil {
		recordFailure(ctx, db, feedID, meta, interval, err)
		slog.Error("refresh feed fetch failed",
			"feed_id", feedID,
			"feed_url", feedURL,
			"duration_ms", duration,
			"err", err,
		)

		return Outcome{FeedID: feedID}, err
	}

	meta.ETag = chooseHeader(result.ETag, cache.ETag)
	meta.LastModified = chooseHeader(result.LastModified, cache.LastModified)

	if result.NotModified {
		meta.UnchangedCount = cache.UnchangedCount + 1
		meta.NextRefreshAt = NextRefreshAt(checkedAt, interval, meta.UnchangedCount)

		err = store.SaveRefreshMeta(ctx, db, feedID, meta)
		if err != nil {
			return Outcome{FeedID: feedID}, err
		}

		slog.Info("refresh feed cache hit",
			"feed_id", feedID,
			"feed_url", feedURL,
			"status", result.StatusCode,
			"duration_ms", duration,
		)

		return Outcome{FeedID: feedID, NotModified: true}, nil
	}

	outcome, err := Store(ctx, db, store.FeedInput{URL: feedURL}, result.Feed)
	if err != nil {
		recordFailure(ctx, db, feedID, meta, interval, err)
		slog.Error("refresh store feed failed", "feed_id", feedID, "feed_url", feedURL, "err", err)

		return Outcome{FeedID: feedID}, err
	}

	if outcome.Inserted == 0 {
		meta.UnchangedCount = cache.UnchangedCount + 1
	}

	meta.NextRefreshAt = NextRefreshAt(checkedAt, interval, meta.UnchangedCount)

	err = store.SaveRefreshMeta(ctx, db, feedID, meta)
	if err != nil {
		return outcome, err
	}

	slog.Info("refresh feed updated",
		"feed_id", feedID,
		"feed_url", feedURL,
		"status", result.StatusCode,
		"items_in_feed", len(result.Feed.Items),
		"items_new", outcome.Inserted,
		"items_blacklisted", outcome.Skipped,
		"duration_ms", duration,
	)

	return outcome, nil
}

func recordFailure(
	ctx context.Context,
	db *sql.DB,
	feedID int64,
	meta store.RefreshMeta,
	interval time.Duration,
	cause error,
) {
	meta.LastError = truncateString(cause.Error(), maxErrorLength)
	meta.UnchangedCount = 0
	meta.NextRefreshAt = NextRefreshAt(meta.LastCheckedAt, interval, 0)

	err := store.SaveRefreshMeta(ctx, db, feedID, meta)
	if err != nil {
		slog.Warn("refresh meta update failed", "feed_id", feedID, "err", err)
	}
}

// NextRefreshAt schedules the next check of a feed. The wait starts at the
// feed's interval, doubles for every unchanged check and is jittered, but
// never drops below the interval.
func NextRefreshAt(checkedAt time.Time, interval time.Duration, unchangedCount int) time.Time {
	if interval <= 0 {
		interval = DefaultInterval
	}

	wait := ApplyJitter(ComputeBackoffInterval(interval, unchangedCount))

	return checkedAt.Add(max(wait, interval))
}

// ComputeBackoffInterval doubles base once per unchanged check, capped at
// twelve hours or base, whichever is larger.
func ComputeBackoffInterval(base time.Duration, unchangedCount int) time.Duration {
	if base <= 0 {
		base = DefaultInterval
	}

	ceiling := max(refreshBackoffMax, base)
	interval := base

	for range max(unchangedCount, 0) {
		interval *= 2
		if interval >= ceiling {
			return ceiling
		}
	}

	return interval
}

// ApplyJitter moves base up or down by 10 to 20 percent.
func ApplyJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}

	//nolint:gosec // Scheduling jitter does not need a secure source.
	magnitude := refreshJitterMin + rand.Float64()*(refreshJitterMax-refreshJitterMin)
	//nolint:gosec // Scheduling jitter does not need a secure source.
	if rand.IntN(2) == 0 {
		magnitude = -magnitude
	}

	return time.Duration(float64(base) * (1 + magnitude))
}

func chooseHeader(preferred, fallback string) string {
	if strings.TrimSpace(preferred) != "" {
		return preferred
	}

	return fallback
}

func truncateString(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}

	return value[:limit]
}
