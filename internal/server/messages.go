package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"headlines/internal/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// rowsMessage is what the message socket sends after every change.
type rowsMessage struct {
	Rows []notify.Row `json:"rows"`
}

func (a *App) sessionRows(r *http.Request) []notify.Row {
	return notify.Rows(a.notes.Snapshot(sessionFrom(r.Context())))
}

func (a *App) handleMessagesFragment(w http.ResponseWriter, r *http.Request) {
	a.renderTemplate(w, "messages", messagesData{Messages: a.sessionRows(r)})
}

func (a *App) handleListMessages(w http.ResponseWriter, r *http.Request) {
	a.ok(w, "", rowsMessage{Rows: a.sessionRows(r)})
}

// handleAppendMessage lets the page report its own errors into the log.
func (a *App) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	err := parseForm(w, r)

	var message string
	if err == nil {
		message = r.FormValue("message")
	}

	level := notify.LevelError
	if err == nil && r.FormValue("level") != "" {
		level, err = notify.ParseLevel(r.FormValue("level"))
	}

	if err != nil {
		a.fail(w, r, "add message", err)

		return
	}

	a.notes.Append(sessionFrom(r.Context()), message, level)
	a.ok(w, "", rowsMessage{Rows: a.sessionRows(r)})
}

func (a *App) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	a.notes.Clear(sessionFrom(r.Context()))
	a.ok(w, "", rowsMessage{Rows: a.sessionRows(r)})
}

// handleMessagesSocket streams the session's rows: once on connect and
// again after every change.
func (a *App) handleMessagesSocket(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "request_id", requestIDFrom(r.Context()), "err", err)

		return
	}

	defer func() {
		closeErr := conn.Close()
		if closeErr != nil {
			slog.Debug("websocket close failed", "err", closeErr)
		}
	}()

	events, cancel := a.hub.Subscribe(session)
	defer cancel()

	done := make(chan struct{})

	go readUntilClosed(conn, done)

	err = writeRows(conn, a.sessionRows(r))
	if err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
					time.Now().Add(wsWriteWait))

				return
			}

			err = writeRows(conn, notify.Rows(ev.Entries))
			if err != nil {
				return
			}
		case <-ticker.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			if err != nil {
				return
			}
		}
	}
}

// readUntilClosed discards client frames so control frames are processed,
// and closes done once the connection fails.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func writeRows(conn *websocket.Conn, rows []notify.Row) error {
	body, err := json.Marshal(rowsMessage{Rows: rows})
	if err != nil {
		slog.Error("encode websocket rows failed", "err", err)

		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	err = conn.WriteMessage(websocket.TextMessage, body)
	if err != nil {
		slog.Debug("websocket write failed", "err", err)
	}

	return err
}
