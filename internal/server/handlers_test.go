package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"headlines/internal/notify"
	"headlines/internal/store"
	"headlines/internal/testutil"
	"headlines/web"
)

type testEnvelope struct {
	Payload map[string]any `json:"payload"`
	Message string         `json:"message"`
	Status  bool           `json:"status"`
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	tmpl, err := web.Templates()
	require.NoError(t, err)

	app := New(testutil.OpenTestDB(t), tmpl, DefaultOptions())
	app.SetStaticFS(web.Static())
	t.Cleanup(app.Close)

	return app
}

// newSession asks the app for a session cookie.
func newSession(t *testing.T, handler http.Handler) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie {
			return cookie
		}
	}

	t.Fatalf("no %s cookie issued", sessionCookie)

	return nil
}

func doRequest(
	t *testing.T,
	handler http.Handler,
	cookie *http.Cookie,
	method, target string,
	form url.Values,
) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())

	return env
}

func messageRows(t *testing.T, handler http.Handler, cookie *http.Cookie) []notify.Row {
	t.Helper()

	rec := doRequest(t, handler, cookie, http.MethodGet, "/ajax/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Payload rowsMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body.Payload.Rows
}

func seedFeedItems(t *testing.T, app *App, titles ...string) (int64, []int64) {
	t.Helper()

	ctx := context.Background()

	feedID, err := store.UpsertFeed(ctx, app.db, store.FeedInput{URL: "https://example.com/rss", Title: "Seed Feed"})
	require.NoError(t, err)

	items := make([]*gofeed.Item, 0, len(titles))
	for idx, title := range titles {
		items = append(items, &gofeed.Item{
			Title:           title,
			Link:            "https://example.com/" + strconv.Itoa(idx),
			GUID:            "seed-" + strconv.Itoa(idx),
			Description:     "<p>" + title + " summary</p>",
			PublishedParsed: testutil.TimePtr(time.Now().Add(-time.Duration(idx) * time.Hour)),
		})
	}

	_, err = store.UpsertItems(ctx, app.db, feedID, items)
	require.NoError(t, err)

	listed, err := store.ListItems(ctx, app.db, store.ItemQuery{FeedID: feedID, Limit: len(titles)})
	require.NoError(t, err)

	ids := make([]int64, 0, len(listed))
	for _, item := range listed {
		ids = append(ids, item.ID)
	}

	return feedID, ids
}

func TestHealthzAndHeaders(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(t, app.Routes(), nil, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "img-src *")
}

func TestSessionCookieIsReused(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodGet, "/healthz", nil)

	assert.Empty(t, rec.Result().Cookies(), "existing session should not be reissued")

	bogus := &http.Cookie{Name: sessionCookie, Value: "not-a-uuid"}
	rec = doRequest(t, handler, bogus, http.MethodGet, "/healthz", nil)

	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-uuid", rec.Result().Cookies()[0].Value)
}

func TestFailAppendsErrorEntry(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/feeds/abc/interval", url.Values{"interval": {"60"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Status)
	assert.True(t, strings.HasPrefix(env.Message, "set feed interval: "), env.Message)

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, 1)
	assert.Equal(t, "ERROR", rows[0].Level)
	assert.Equal(t, "msg-error", rows[0].LevelClass)
	assert.Equal(t, env.Message, rows[0].Message)
}

func TestFailureStatusCodes(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()

	cases := []struct {
		name   string
		method string
		target string
		form   url.Values
		status int
	}{
		{"missing feed", http.MethodPost, "/ajax/feeds/42/delete", url.Values{}, http.StatusNotFound},
		{"missing item", http.MethodGet, "/ajax/items/42", nil, http.StatusNotFound},
		{"blank url", http.MethodPost, "/ajax/feeds", url.Values{"url": {"  "}}, http.StatusBadRequest},
		{"bad rating", http.MethodPost, "/ajax/items/1/rate", url.Values{"rating": {"x"}}, http.StatusBadRequest},
		{"unknown setting", http.MethodPost, "/ajax/settings/colour/toggle", url.Values{}, http.StatusBadRequest},
		{"empty tag", http.MethodPost, "/ajax/tags", url.Values{"name": {""}}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, nil, tc.method, tc.target, tc.form)

			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, decodeEnvelope(t, rec).Status)
		})
	}
}

func TestNotificationLogKeepsFiveNewest(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	for idx := range 7 {
		rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages", url.Values{
			"message": {"note " + strconv.Itoa(idx)},
			"level":   {"info"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, notify.Capacity)
	assert.Equal(t, "note 2", rows[0].Message)
	assert.Equal(t, "note 6", rows[4].Message)
	assert.Equal(t, "INFO", rows[0].Level)

	rec := doRequest(t, handler, cookie, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The fragment is a bare <tbody>, so it needs a table to parse into.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table>" + rec.Body.String() + "</table>"))
	require.NoError(t, err)

	trs := doc.Find("#msg_tbody tr")
	require.Equal(t, notify.Capacity, trs.Length())
	assert.Equal(t, "note 2", strings.TrimSpace(trs.First().Find("td.msg-text").Text()))
	assert.True(t, trs.First().HasClass("msg-info"))
}

func TestFailuresRespectCapacity(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	for idx := range 6 {
		target := "/ajax/items/" + strconv.Itoa(100+idx)
		rec := doRequest(t, handler, cookie, http.MethodGet, target, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, notify.Capacity)
	assert.Contains(t, rows[0].Message, "item 101")
	assert.Contains(t, rows[4].Message, "item 105")
}

func TestClearMessages(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages", url.Values{"message": {"boom"}})
	require.Len(t, messageRows(t, handler, cookie), 1)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages/clear", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, messageRows(t, handler, cookie))

	rec = doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages/clear", url.Values{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAppendMessageDefaultsAndRejectsLevel(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages", url.Values{"message": {"script failed"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, cookie, http.MethodPost, "/ajax/messages", url.Values{
		"message": {"nope"},
		"level":   {"LOUD"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, 2)
	assert.Equal(t, "ERROR", rows[0].Level)
	assert.Equal(t, "script failed", rows[0].Message)
	assert.Contains(t, rows[1].Message, "add message")
}

func TestSessionsHaveSeparateLogs(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	alice := newSession(t, handler)
	bob := newSession(t, handler)

	require.NotEqual(t, alice.Value, bob.Value)

	doRequest(t, handler, alice, http.MethodPost, "/ajax/messages", url.Values{"message": {"only alice"}})

	assert.Len(t, messageRows(t, handler, alice), 1)
	assert.Empty(t, messageRows(t, handler, bob))
}

func TestSubscribeAndIndex(t *testing.T) {
	items := []testutil.RSSItem{
		{
			Title:       "Alpha",
			Link:        "http://example.com/alpha",
			GUID:        "alpha",
			PubDate:     time.Now().UTC().Format(time.RFC1123Z),
			Description: "<p>Alpha summary</p>",
		},
		{
			Title:       "Beta",
			Link:        "http://example.com/beta",
			GUID:        "beta",
			PubDate:     time.Now().Add(-time.Hour).UTC().Format(time.RFC1123Z),
			Description: "<p>Beta summary</p>",
		},
	}
	_, feedURL := testutil.NewFeedServer(t, testutil.RSSXML("Test Feed", items))

	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/feeds", url.Values{
		"url":      {feedURL},
		"interval": {"00:10:00"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Status)
	assert.Equal(t, "Subscribed to Test Feed (2 new items)", env.Message)
	assert.InDelta(t, 2, env.Payload["items"], 0)

	feeds, err := store.ListFeeds(context.Background(), app.db)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, int64(600), feeds[0].IntervalSeconds)

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, 1)
	assert.Equal(t, "INFO", rows[0].Level)

	rec = doRequest(t, handler, cookie, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 1, doc.Find("#feed-list li").Length())
	assert.Equal(t, 2, doc.Find("#items article.item").Length())
	assert.Equal(t, 1, doc.Find("#msg_tbody tr").Length())
	assert.Equal(t, "Alpha", doc.Find("#items article.item .item-title").First().Text())
}

func TestSubscribeFetchFailureIsLogged(t *testing.T) {
	server, feedURL := testutil.NewFeedServer(t, "")
	server.SetStatus(http.StatusInternalServerError)

	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/feeds", url.Values{"url": {feedURL}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Message, "unexpected status 500")

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, 1)
	assert.Equal(t, "ERROR", rows[0].Level)
}

func TestFeedIntervalActiveAndTitle(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	feedID, _ := seedFeedItems(t, app, "One")
	base := "/ajax/feeds/" + strconv.FormatInt(feedID, 10)

	rec := doRequest(t, handler, nil, http.MethodPost, base+"/interval", url.Values{"interval": {"01:00:00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.InDelta(t, 3600, env.Payload["interval"], 0)
	assert.Equal(t, "01:00:00", env.Payload["interval_display"])

	rec = doRequest(t, handler, nil, http.MethodPost, base+"/interval", url.Values{"interval": {"soon"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodPost, base+"/active", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeEnvelope(t, rec).Payload["active"])

	rec = doRequest(t, handler, nil, http.MethodPost, base+"/title", url.Values{"title": {"Renamed"}})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.GetFeed(context.Background(), app.db, feedID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
	assert.False(t, stored.Active)
}

func TestRateReadAndTagItem(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	_, ids := seedFeedItems(t, app, "Tagged")
	itemPath := "/ajax/items/" + strconv.FormatInt(ids[0], 10)

	rec := doRequest(t, handler, nil, http.MethodPost, itemPath+"/rate", url.Values{"rating": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodPost, itemPath+"/rate", url.Values{"rating": {"5"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodPost, itemPath+"/read", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeEnvelope(t, rec).Payload["is_read"])

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/tags", url.Values{"name": {"Go News"}})
	require.Equal(t, http.StatusOK, rec.Code)

	tag, ok := decodeEnvelope(t, rec).Payload["tag"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "go-news", tag["slug"])

	tagID := strconv.FormatFloat(tag["id"].(float64), 'f', 0, 64)

	rec = doRequest(t, handler, nil, http.MethodPost, itemPath+"/tags", url.Values{"tag_id": {tagID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeEnvelope(t, rec).Payload["tags"], 1)

	rec = doRequest(t, handler, nil, http.MethodGet, itemPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	item, ok := decodeEnvelope(t, rec).Payload["item"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1, item["rating"], 0)
	assert.Len(t, item["tags"], 1)

	rec = doRequest(t, handler, nil, http.MethodPost, itemPath+"/tags/"+tagID+"/delete", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeEnvelope(t, rec).Payload["tags"])

	rec = doRequest(t, handler, nil, http.MethodPost, itemPath+"/tags/"+tagID+"/delete", url.Values{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlacklistCheckAndAdd(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	seedFeedItems(t, app, "Sponsored: buy now", "Real news", "Another sponsored post")

	rec := doRequest(t, handler, nil, http.MethodPost, "/ajax/blacklist/check", url.Values{"pattern": {"sponsored"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Payload["valid"])
	assert.InDelta(t, 2, env.Payload["matches"], 0)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/blacklist/check", url.Values{"pattern": {"(unclosed"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/blacklist", url.Values{"pattern": {"sponsored"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/blacklist", url.Values{"pattern": {"sponsored"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodGet, "/ajax/blacklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeEnvelope(t, rec).Payload["patterns"], 1)
}

func TestMaintenanceReportsNotice(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	rec := doRequest(t, handler, cookie, http.MethodPost, "/ajax/maintenance", url.Values{
		"purge_days": {"30"},
		"vacuum":     {"on"},
		"analyze":    {"true"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, strings.HasPrefix(env.Message, "Maintenance finished in "), env.Message)
	assert.InDelta(t, 0, env.Payload["purged"], 0)

	rows := messageRows(t, handler, cookie)
	require.Len(t, rows, 1)
	assert.Equal(t, env.Message, rows[0].Message)

	rec = doRequest(t, handler, cookie, http.MethodPost, "/ajax/maintenance", url.Values{"vacuum": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBeaconAndSettingsToggle(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, nil, http.MethodGet, "/ajax/beacon", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Payload["active"])
	assert.NotEmpty(t, env.Payload["hostname"])

	_, err := time.Parse(time.RFC3339, env.Payload["timestamp"].(string))
	require.NoError(t, err)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/settings/beacon/toggle", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeEnvelope(t, rec).Payload["value"])

	rec = doRequest(t, handler, nil, http.MethodGet, "/ajax/beacon", nil)
	assert.Equal(t, false, decodeEnvelope(t, rec).Payload["active"])
}

func TestHideBoringFiltersItems(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	_, ids := seedFeedItems(t, app, "Dull", "Fine")

	require.NoError(t, store.RateItem(context.Background(), app.db, ids[0], -1))

	rec := doRequest(t, handler, nil, http.MethodGet, "/ajax/items", nil)
	require.Len(t, decodeEnvelope(t, rec).Payload["items"], 2)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/settings/hide_boring/toggle", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodGet, "/ajax/items", nil)
	assert.Len(t, decodeEnvelope(t, rec).Payload["items"], 1)
}

func TestHideBoringUsesLearnedRatings(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	_, ids := seedFeedItems(t, app,
		"Celebrity gossip from the red carpet party",
		"Go compiler release brings faster builds",
		"Royal wedding gossip and celebrity party photos",
		"Go runtime scheduler profiling guide",
		"Celebrity party gossip roundup",
		"Go compiler and runtime release notes",
	)

	ratings := map[int]string{0: "-1", 1: "1", 2: "-1", 3: "1"}
	for idx, rating := range ratings {
		path := "/ajax/items/" + strconv.FormatInt(ids[idx], 10) + "/rate"
		rec := doRequest(t, handler, nil, http.MethodPost, path, url.Values{"rating": {rating}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	require.True(t, app.classifier.Ready())

	rec := doRequest(t, handler, nil, http.MethodPost, "/ajax/settings/hide_boring/toggle", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, nil, http.MethodGet, "/ajax/items", nil)
	listed, ok := decodeEnvelope(t, rec).Payload["items"].([]any)
	require.True(t, ok)

	titles := make([]string, 0, len(listed))
	for _, raw := range listed {
		item, isMap := raw.(map[string]any)
		require.True(t, isMap)

		title, _ := item["title"].(string)
		titles = append(titles, title)
	}

	assert.ElementsMatch(t, []string{
		"Go compiler release brings faster builds",
		"Go runtime scheduler profiling guide",
		"Go compiler and runtime release notes",
	}, titles)

	rec = doRequest(t, handler, nil, http.MethodPost, "/ajax/items/"+strconv.FormatInt(ids[0], 10)+"/unrate", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)

	item, err := store.GetItem(context.Background(), app.db, ids[0], app.opts.BoringThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Rating)
	assert.True(t, item.IsBoring, "unrated gossip item should be predicted boring")
}

func TestOPMLImportAndExport(t *testing.T) {
	app := newTestApp(t)
	handler := app.Routes()
	cookie := newSession(t, handler)

	doc := `<?xml version="1.0"?><opml version="2.0"><body>
<outline text="One" xmlUrl="https://example.com/one.xml" />
<outline text="Two" xmlUrl="example.org/two.xml" />
<outline text="Broken" xmlUrl="http://" />
</body></opml>`

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "subs.opml")
	require.NoError(t, err)
	_, err = part.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/opml/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Imported 2 feeds (1 skipped)", decodeEnvelope(t, rec).Message)

	rec = doRequest(t, handler, cookie, http.MethodGet, "/opml/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "headlines-subscriptions-")
	assert.Contains(t, rec.Body.String(), `xmlUrl="https://example.org/two.xml"`)
}

func TestMessagesSocketStreamsRows(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/messages"
	header := http.Header{"Cookie": {sessionCookie + "=" + cookie.Value}}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)

	defer func() { _ = conn.Close() }()

	readRows := func() []notify.Row {
		t.Helper()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		_, data, readErr := conn.ReadMessage()
		require.NoError(t, readErr)

		var msg rowsMessage
		require.NoError(t, json.Unmarshal(data, &msg))

		return msg.Rows
	}

	assert.Empty(t, readRows())

	form := url.Values{"message": {"from another tab"}, "level": {"WARN"}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ajax/messages", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: cookie.Value})

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows := readRows()
	require.Len(t, rows, 1)
	assert.Equal(t, "WARN", rows[0].Level)
	assert.Equal(t, "from another tab", rows[0].Message)

	app.Notes().Clear(cookie.Value)
	assert.Empty(t, readRows())
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"90", 90 * time.Second, true},
		{"1h30m", 90 * time.Minute, true},
		{"00:30:00", 30 * time.Minute, true},
		{" 25:00:00 ", 25 * time.Hour, true},
		{"0", 0, false},
		{"500ms", 0, false},
		{"00:61:00", 0, false},
		{"-5", 0, false},
		{"later", 0, false},
	}

	for _, tc := range cases {
		got, err := parseInterval(tc.raw)
		if !tc.ok {
			assert.ErrorIs(t, err, errBadInterval, tc.raw)

			continue
		}

		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestStaticAssetsServed(t *testing.T) {
	app := newTestApp(t)

	rec := doRequest(t, app.Routes(), nil, http.MethodGet, "/static/app.js", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/ws/messages")
}
