// Package server wires the HTTP handlers, the per-session notification logs
// and the background loops of the reader.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"headlines/internal/classify"
	"headlines/internal/feed"
	"headlines/internal/hub"
	"headlines/internal/notify"
	"headlines/internal/store"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	defaultItemLimit       = 100
	maxOPMLUploadBytes     = 2 << 20
	maxFormBytes           = 1 << 20
)

// Options tunes an App. Zero values fall back to DefaultOptions.
type Options struct {
	DefaultInterval  time.Duration
	RefreshInterval  time.Duration
	CleanupInterval  time.Duration
	SessionTTL       time.Duration
	BeaconInterval   time.Duration
	RefreshBatchSize int
	BoringThreshold  int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultInterval:  feed.DefaultInterval,
		RefreshInterval:  30 * time.Second,
		CleanupInterval:  defaultCleanupInterval,
		SessionTTL:       24 * time.Hour,
		BeaconInterval:   time.Minute,
		RefreshBatchSize: 5,
		BoringThreshold:  -1,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.DefaultInterval <= 0 {
		o.DefaultInterval = def.DefaultInterval
	}

	if o.RefreshInterval <= 0 {
		o.RefreshInterval = def.RefreshInterval
	}

	if o.CleanupInterval <= 0 {
		o.CleanupInterval = def.CleanupInterval
	}

	if o.SessionTTL <= 0 {
		o.SessionTTL = def.SessionTTL
	}

	if o.BeaconInterval <= 0 {
		o.BeaconInterval = def.BeaconInterval
	}

	if o.RefreshBatchSize <= 0 {
		o.RefreshBatchSize = def.RefreshBatchSize
	}

	return o
}

// App wires handlers, dependencies, and background loops for the HTTP server.
type App struct {
	staticHandler http.Handler
	db            *sql.DB
	tmpl          *template.Template
	notes         *notify.Registry
	hub           *hub.Hub
	classifier    *classify.Classifier
	upgrader      websocket.Upgrader
	hostname      string
	opts          Options
	refreshMu     sync.Mutex
	classifyMu    sync.Mutex
}

// New constructs an App. The notification registry publishes every change
// to the App's hub so open pages can follow along.
func New(db *sql.DB, tmpl *template.Template, opts Options) *App {
	app := new(App)
	app.db = db
	app.tmpl = tmpl
	app.opts = opts.withDefaults()
	app.hub = hub.New()
	app.notes = notify.NewRegistry(app.hub.Publish)
	app.classifier = classify.New()
	app.staticHandler = http.NotFoundHandler()
	app.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	hostname, err := os.Hostname()
	if err != nil {
		slog.Warn("hostname lookup failed", "err", err)

		hostname = "unknown"
	}

	app.hostname = hostname

	return app
}

// SetStaticFS replaces the static file system used for `/static/*` routes.
func (a *App) SetStaticFS(fsys fs.FS) {
	a.staticHandler = http.FileServer(http.FS(fsys))
}

// Notes returns the per-session notification logs.
func (a *App) Notes() *notify.Registry {
	return a.notes
}

// Close stops live message streams.
func (a *App) Close() {
	a.hub.Close()
}

// Routes returns the fully configured application HTTP handler.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	a.registerCoreRoutes(mux)
	a.registerFeedRoutes(mux)
	a.registerItemRoutes(mux)
	a.registerAdminRoutes(mux)
	a.registerMessageRoutes(mux)

	return a.wrapRoutes(mux)
}

func (a *App) registerCoreRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.Handle("GET /static/", http.StripPrefix("/static/", a.staticHandler))
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /opml/export", a.handleExportOPML)
	mux.HandleFunc("POST /opml/import", a.handleImportOPML)
}

func (a *App) registerFeedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ajax/feeds", a.handleListFeeds)
	mux.HandleFunc("POST /ajax/feeds", a.handleSubscribe)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/delete", a.handleDeleteFeed)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/interval", a.handleFeedInterval)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/active", a.handleFeedActive)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/title", a.handleFeedTitle)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/refresh", a.handleRefreshFeed)
	mux.HandleFunc("POST /ajax/feeds/{feedID}/read", a.handleMarkAllRead)
}

func (a *App) registerItemRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ajax/items", a.handleListItems)
	mux.HandleFunc("GET /ajax/items/{itemID}", a.handleGetItem)
	mux.HandleFunc("POST /ajax/items/{itemID}/rate", a.handleRateItem)
	mux.HandleFunc("POST /ajax/items/{itemID}/unrate", a.handleUnrateItem)
	mux.HandleFunc("POST /ajax/items/{itemID}/read", a.handleToggleRead)
	mux.HandleFunc("POST /ajax/items/{itemID}/tags", a.handleLinkTag)
	mux.HandleFunc("POST /ajax/items/{itemID}/tags/{tagID}/delete", a.handleUnlinkTag)
	mux.HandleFunc("GET /ajax/tags", a.handleListTags)
	mux.HandleFunc("POST /ajax/tags", a.handleAddTag)
	mux.HandleFunc("POST /ajax/tags/{tagID}/delete", a.handleDeleteTag)
}

func (a *App) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ajax/blacklist", a.handleListPatterns)
	mux.HandleFunc("POST /ajax/blacklist", a.handleAddPattern)
	mux.HandleFunc("POST /ajax/blacklist/check", a.handleCheckPattern)
	mux.HandleFunc("POST /ajax/blacklist/{patternID}", a.handleUpdatePattern)
	mux.HandleFunc("POST /ajax/blacklist/{patternID}/delete", a.handleDeletePattern)
	mux.HandleFunc("POST /ajax/maintenance", a.handleMaintenance)
	mux.HandleFunc("GET /ajax/beacon", a.handleBeacon)
	mux.HandleFunc("GET /ajax/settings", a.handleSettings)
	mux.HandleFunc("POST /ajax/settings/{key}/toggle", a.handleToggleSetting)
}

func (a *App) registerMessageRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /messages", a.handleMessagesFragment)
	mux.HandleFunc("GET /ajax/messages", a.handleListMessages)
	mux.HandleFunc("POST /ajax/messages", a.handleAppendMessage)
	mux.HandleFunc("POST /ajax/messages/clear", a.handleClearMessages)
	mux.HandleFunc("GET /ws/messages", a.handleMessagesSocket)
}

func (a *App) wrapRoutes(handler http.Handler) http.Handler {
	handler = a.withSession(handler)
	handler = a.withRequestID(handler)
	handler = a.withSecurityHeaders(handler)

	return handler
}

func (*App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	_, err := w.Write([]byte("ok"))
	if err != nil {
		slog.Warn("write healthz response failed")
	}
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := a.loadPageData(ctx, sessionFrom(ctx))
	if err != nil {
		slog.Error("load index data failed", "request_id", requestIDFrom(ctx), "err", err)
		http.Error(w, "failed to load page", http.StatusInternalServerError)

		return
	}

	a.renderTemplate(w, "index", data)
}

func (a *App) loadPageData(ctx context.Context, session string) (pageData, error) {
	settings, err := store.GetSettings(ctx, a.db)
	if err != nil {
		return pageData{}, fmt.Errorf("load settings: %w", err)
	}

	feeds, err := store.ListFeeds(ctx, a.db)
	if err != nil {
		return pageData{}, fmt.Errorf("list feeds: %w", err)
	}

	items, err := store.ListItems(ctx, a.db, store.ItemQuery{
		Limit:           defaultItemLimit,
		BoringThreshold: a.opts.BoringThreshold,
		HideBoring:      settings.HideBoring,
	})
	if err != nil {
		return pageData{}, fmt.Errorf("list items: %w", err)
	}

	tags, err := store.ListTags(ctx, a.db)
	if err != nil {
		return pageData{}, fmt.Errorf("list tags: %w", err)
	}

	patterns, err := store.ListPatterns(ctx, a.db)
	if err != nil {
		return pageData{}, fmt.Errorf("list blacklist: %w", err)
	}

	return pageData{
		Feeds:         feeds,
		Items:         items,
		Tags:          tags,
		Patterns:      patterns,
		Settings:      settings,
		Messages:      notify.Rows(a.notes.Snapshot(session)),
		BeaconSeconds: int(a.opts.BeaconInterval / time.Second),
	}, nil
}

func (a *App) renderTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err := a.tmpl.ExecuteTemplate(w, name, data)
	if err != nil {
		slog.Error("template execute failed", "template", name, "err", err)
		http.Error(w, "template error", http.StatusInternalServerError)

		return
	}
}

var errBadPathID = errors.New("invalid id in path")

func parsePathInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(key))

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: %s %q", errBadPathID, key, raw)
	}

	return parsed, nil
}

// StartBackgroundLoops trains the classifier and starts the cleanup and feed
// refresh goroutines. They stop when ctx is done.
func (a *App) StartBackgroundLoops(ctx context.Context) {
	a.retrainClassifier(ctx)

	go a.cleanupLoop(ctx)
	go a.refreshLoop(ctx)
}

func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		a.runCleanupIteration(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) runCleanupIteration(ctx context.Context) {
	_, err := store.CleanupReadItems(ctx, a.db)
	if err != nil {
		slog.Error("cleanup error", "err", err)
	}

	a.notes.Prune(a.opts.SessionTTL)
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		err := a.refreshDueFeeds(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("refresh loop error", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) refreshDueFeeds(ctx context.Context) error {
	ids, err := store.ListDueFeeds(ctx, a.db, time.Now().UTC(), a.opts.RefreshBatchSize)
	if err != nil {
		return fmt.Errorf("list due feeds: %w", err)
	}

	if len(ids) > 0 {
		slog.Info("refresh due feeds", "count", len(ids))
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.refreshMu.Lock()
		_, refreshErr := feed.Refresh(ctx, a.db, id)
		a.refreshMu.Unlock()

		if refreshErr != nil {
			slog.Error("refresh feed error", "feed_id", id, "err", refreshErr)
		}
	}

	if len(ids) > 0 {
		a.classifyNewItems(ctx)
	}

	return nil
}
