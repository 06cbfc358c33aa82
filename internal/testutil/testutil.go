// Package testutil holds helpers shared by package tests: a temporary
// database, a fake feed transport and an RSS document builder.
package testutil

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"headlines/internal/store"
)

// FeedServer answers requests for one feed URL with a replaceable body.
type FeedServer struct {
	feedXML  string
	requests int
	status   int
	mu       sync.RWMutex
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// NewFeedServer swaps http.DefaultTransport for the duration of the test and
// returns the server together with the only URL it answers. Tests using it
// must not run in parallel.
func NewFeedServer(t *testing.T, feedXML string) (*FeedServer, string) {
	t.Helper()

	fs := &FeedServer{feedXML: feedXML, status: http.StatusOK}
	feedURL := "https://feed.test/" + url.PathEscape(t.Name())
	prevTransport := http.DefaultTransport
	http.DefaultTransport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != feedURL {
			return nil, fmt.Errorf("unexpected feed url: %s", req.URL.String())
		}

		fs.mu.Lock()
		defer fs.mu.Unlock()

		fs.requests++

		return &http.Response{
			StatusCode: fs.status,
			Status:     fmt.Sprintf("%d %s", fs.status, http.StatusText(fs.status)),
			Header:     http.Header{"Content-Type": []string{"application/rss+xml"}},
			Body:       io.NopCloser(strings.NewReader(fs.feedXML)),
			Request:    req,
		}, nil
	})
	t.Cleanup(func() { http.DefaultTransport = prevTransport })

	return fs, feedURL
}

// SetFeedXML replaces the body served from now on.
func (f *FeedServer) SetFeedXML(xml string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedXML = xml
}

// SetStatus replaces the status code served from now on.
func (f *FeedServer) SetStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Requests returns how many requests the server answered.
func (f *FeedServer) Requests() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.requests
}

// RSSItem is one <item> of an RSSXML document.
type RSSItem struct {
	Title       string
	Link        string
	GUID        string
	PubDate     string
	Description string
}

// RSSXML renders a minimal RSS 2.0 document.
func RSSXML(title string, items []RSSItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<rss version=\"2.0\"><channel>")
	fmt.Fprintf(&b, "<title>%s</title>", title)
	b.WriteString("<link>http://example.com</link>")
	b.WriteString("<description>Test feed</description>")
	for _, item := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", item.Title)
		fmt.Fprintf(&b, "<link>%s</link>", item.Link)
		fmt.Fprintf(&b, "<guid>%s</guid>", item.GUID)
		fmt.Fprintf(&b, "<pubDate>%s</pubDate>", item.PubDate)
		fmt.Fprintf(&b, "<description><![CDATA[%s]]></description>", item.Description)
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

// OpenTestDB opens an initialized database in a temporary directory.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := store.Init(db); err != nil {
		_ = db.Close()
		t.Fatalf("store.Init: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TimePtr returns a pointer to tw.
func TimePtr(tw time.Time) *time.Time {
	return &tw
}
