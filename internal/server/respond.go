package server

import (
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"headlines/internal/blacklist"
	"headlines/internal/feed"
	"headlines/internal/notify"
	"headlines/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errMissingField = errors.New("required field is empty")

// envelope is the body of every /ajax response.
type envelope struct {
	Payload any    `json:"payload"`
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		slog.Error("encode json response failed", "err", err)
		http.Error(w, "failed to write json", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err = w.Write(append(body, '\n'))
	if err != nil {
		slog.Warn("write json response failed", "err", err)
	}
}

func (*App) ok(w http.ResponseWriter, message string, payload any) {
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: message, Payload: payload})
}

// notice records an informational entry in the caller's notification log.
func (a *App) notice(r *http.Request, message string) {
	a.notes.Append(sessionFrom(r.Context()), message, notify.LevelInfo)
}

// fail reports err to the caller: it is logged, appended to the session's
// notification log as an ERROR entry and returned in a failed envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	status := statusFor(err)
	message := action + ": " + err.Error()

	slog.Warn("request failed",
		"request_id", requestIDFrom(ctx),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)

	a.notes.Append(sessionFrom(ctx), message, notify.LevelError)
	writeJSON(w, status, envelope{Status: false, Message: message})
}

var inputErrors = []error{
	errMissingField,
	errBadPathID,
	errBadInterval,
	errBadBool,
	errBadUpload,
	store.ErrInvalidRating,
	store.ErrInvalidInterval,
	store.ErrEmptyTagName,
	store.ErrUnknownSetting,
	blacklist.ErrEmptyPattern,
	blacklist.ErrInvalidPattern,
	feed.ErrEmptyURL,
	feed.ErrInvalidURL,
	notify.ErrUnknownLevel,
}

func statusFor(err error) int {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, feed.ErrNoContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
