package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"headlines/internal/feed"
	"headlines/internal/opml"
	"headlines/internal/store"
	"headlines/internal/view"
)

func (a *App) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := store.ListFeeds(r.Context(), a.db)
	if err != nil {
		a.fail(w, r, "list feeds", err)

		return
	}

	if feeds == nil {
		feeds = []view.FeedView{}
	}

	a.ok(w, "", map[string]any{"feeds": feeds})
}

func (a *App) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	err := parseForm(w, r)
	if err != nil {
		a.fail(w, r, "subscribe", err)

		return
	}

	interval := a.opts.DefaultInterval

	if raw := strings.TrimSpace(r.FormValue("interval")); raw != "" {
		interval, err = parseInterval(raw)
		if err != nil {
			a.fail(w, r, "subscribe", err)

			return
		}
	}

	subscribed, outcome, err := a.subscribe(r.Context(), r.FormValue("url"), interval)
	if err != nil {
		a.fail(w, r, "subscribe", err)

		return
	}

	message := fmt.Sprintf("Subscribed to %s (%d new items)", subscribed.Title, outcome.Inserted)
	a.notice(r, message)
	a.ok(w, message, map[string]any{
		"feed":    subscribed,
		"items":   outcome.Inserted,
		"skipped": outcome.Skipped,
	})
}

func (a *App) subscribe(ctx context.Context, rawURL string, interval time.Duration) (view.FeedView, feed.Outcome, error) {
	feedURL, err := feed.NormalizeURL(rawURL)
	if err != nil {
		return view.FeedView{}, feed.Outcome{}, err
	}

	start := time.Now()

	slog.Info("subscribe feed", "feed_url", feedURL)

	result, err := feed.Fetch(ctx, feedURL, "", "")
	if err != nil {
		return view.FeedView{}, feed.Outcome{}, err
	}

	if result.NotModified || result.Feed == nil {
		slog.Warn("subscribe feed returned no content", "feed_url", feedURL)

		return view.FeedView{}, feed.Outcome{}, feed.ErrNoContent
	}

	outcome, err := feed.Store(ctx, a.db, store.FeedInput{URL: feedURL, Interval: interval}, result.Feed)
	if err != nil {
		return view.FeedView{}, outcome, err
	}

	checkedAt := time.Now().UTC()

	err = store.SaveRefreshMeta(ctx, a.db, outcome.FeedID, store.RefreshMeta{
		LastCheckedAt: checkedAt,
		NextRefreshAt: feed.NextRefreshAt(checkedAt, interval, 0),
		ETag:          result.ETag,
		LastModified:  result.LastModified,
	})
	if err != nil {
		slog.Warn("refresh meta update failed", "feed_id", outcome.FeedID, "err", err)
	}

	if outcome.Inserted > 0 {
		a.classifyNewItems(ctx)
	}

	stored, err := store.GetFeed(ctx, a.db, outcome.FeedID)
	if err != nil {
		return view.FeedView{}, outcome, err
	}

	slog.Info("subscribe feed stored",
		"feed_id", outcome.FeedID,
		"items_new", outcome.Inserted,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return stored, outcome, nil
}

func (a *App) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err != nil {
		a.fail(w, r, "unsubscribe", err)

		return
	}

	existing, err := store.GetFeed(r.Context(), a.db, feedID)
	if err != nil {
		a.fail(w, r, "unsubscribe", err)

		return
	}

	err = store.DeleteFeed(r.Context(), a.db, feedID)
	if err != nil {
		a.fail(w, r, "unsubscribe", err)

		return
	}

	slog.Info("feed deleted", "feed_id", feedID)

	message := "Unsubscribed from " + existing.Title
	a.notice(r, message)
	a.ok(w, message, map[string]any{"feed_id": feedID})
}

func (a *App) handleFeedInterval(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err == nil {
		err = parseForm(w, r)
	}

	var raw string
	if err == nil {
		raw, err = requiredValue(r, "interval")
	}

	var interval time.Duration
	if err == nil {
		interval, err = parseInterval(raw)
	}

	if err == nil {
		err = store.SetFeedInterval(r.Context(), a.db, feedID, interval)
	}

	if err != nil {
		a.fail(w, r, "set feed interval", err)

		return
	}

	seconds := int64(interval / time.Second)
	a.ok(w, "", map[string]any{
		"feed_id":          feedID,
		"interval":         seconds,
		"interval_display": view.FormatInterval(seconds),
	})
}

func (a *App) handleFeedActive(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err != nil {
		a.fail(w, r, "toggle feed", err)

		return
	}

	active, err := store.ToggleFeedActive(r.Context(), a.db, feedID)
	if err != nil {
		a.fail(w, r, "toggle feed", err)

		return
	}

	a.ok(w, "", map[string]any{"feed_id": feedID, "active": active})
}

func (a *App) handleFeedTitle(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err == nil {
		err = parseForm(w, r)
	}

	if err == nil {
		err = store.UpdateFeedTitle(r.Context(), a.db, feedID, strings.TrimSpace(r.FormValue("title")))
	}

	if err != nil {
		a.fail(w, r, "rename feed", err)

		return
	}

	updated, err := store.GetFeed(r.Context(), a.db, feedID)
	if err != nil {
		a.fail(w, r, "rename feed", err)

		return
	}

	a.ok(w, "", map[string]any{"feed": updated})
}

func (a *App) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err != nil {
		a.fail(w, r, "refresh feed", err)

		return
	}

	a.refreshMu.Lock()
	outcome, err := feed.Refresh(r.Context(), a.db, feedID)
	a.refreshMu.Unlock()

	if err != nil {
		a.fail(w, r, "refresh feed", err)

		return
	}

	if outcome.Inserted > 0 {
		a.classifyNewItems(r.Context())
	}

	a.ok(w, "", map[string]any{
		"feed_id":      feedID,
		"items":        outcome.Inserted,
		"skipped":      outcome.Skipped,
		"not_modified": outcome.NotModified,
	})
}

func (a *App) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	feedID, err := parsePathInt64(r, "feedID")
	if err != nil {
		a.fail(w, r, "mark feed read", err)

		return
	}

	_, err = store.GetFeed(r.Context(), a.db, feedID)
	if err == nil {
		err = store.MarkAllRead(r.Context(), a.db, feedID)
	}

	if err != nil {
		a.fail(w, r, "mark feed read", err)

		return
	}

	a.ok(w, "", map[string]any{"feed_id": feedID})
}

func (a *App) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	feeds, err := store.ListFeeds(r.Context(), a.db)
	if err != nil {
		slog.Error("opml export list feeds failed", "err", err)
		http.Error(w, "failed to load feeds", http.StatusInternalServerError)

		return
	}

	subscriptions := make([]opml.Subscription, 0, len(feeds))
	for _, listedFeed := range feeds {
		subscriptions = append(subscriptions, opml.Subscription{
			Title:       listedFeed.Title,
			URL:         listedFeed.URL,
			Homepage:    listedFeed.Homepage,
			Description: listedFeed.Description,
		})
	}

	filename := "headlines-subscriptions-" + time.Now().UTC().Format("20060102") + ".opml"

	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	err = opml.Write(w, "Headlines Subscriptions", subscriptions)
	if err != nil {
		slog.Error("opml export failed", "err", err)
	}
}

func (a *App) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOPMLUploadBytes)

	err := r.ParseMultipartForm(maxOPMLUploadBytes)
	if err != nil {
		a.fail(w, r, "import OPML", fmt.Errorf("%w: %w", errBadUpload, err))

		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, "import OPML", fmt.Errorf("%w: file", errMissingField))

		return
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Warn("opml upload close failed", "err", closeErr)
		}
	}()

	subscriptions, err := opml.Parse(file)
	if err != nil {
		a.fail(w, r, "import OPML", fmt.Errorf("%w: %w", errBadUpload, err))

		return
	}

	imported, skipped := a.importSubscriptions(r.Context(), subscriptions)

	message := opmlImportMessage(imported, skipped)
	a.notice(r, message)
	a.ok(w, message, map[string]any{"imported": imported, "skipped": skipped})
}

func (a *App) importSubscriptions(ctx context.Context, subscriptions []opml.Subscription) (int, int) {
	imported, skipped := 0, 0

	for _, subscription := range subscriptions {
		feedURL, err := feed.NormalizeURL(subscription.URL)
		if err != nil {
			skipped++

			continue
		}

		_, err = store.UpsertFeed(ctx, a.db, store.FeedInput{
			URL:         feedURL,
			Title:       subscription.Title,
			Homepage:    subscription.Homepage,
			Description: subscription.Description,
			Interval:    a.opts.DefaultInterval,
		})
		if err != nil {
			slog.Warn("opml import upsert failed", "feed_url", feedURL, "err", err)

			skipped++

			continue
		}

		imported++
	}

	return imported, skipped
}

func opmlImportMessage(imported, skipped int) string {
	message := "Imported " + strconv.Itoa(imported) + " feed"
	if imported != 1 {
		message += "s"
	}

	if skipped > 0 {
		message += " (" + strconv.Itoa(skipped) + " skipped)"
	}

	return message
}
