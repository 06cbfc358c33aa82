package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookie       = "headlines_session"
	sessionCookieMaxAge = 60 * 60 * 24 * 365
)

type contextKey int

const (
	requestIDContextKey contextKey = iota
	sessionContextKey
)

func (*App) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withSession makes sure every request carries a session ID, issuing a new
// cookie when the browser has none or an unparsable one.
func (*App) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := ""

		cookie, err := r.Cookie(sessionCookie)
		if err == nil {
			parsed, parseErr := uuid.Parse(cookie.Value)
			if parseErr == nil {
				session = parsed.String()
			}
		}

		if session == "" {
			session = uuid.NewString()
			setSessionCookie(w, session)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setSessionCookie(w http.ResponseWriter, session string) {
	cookie := new(http.Cookie)
	cookie.Name = sessionCookie
	cookie.Value = session
	cookie.Path = "/"
	cookie.MaxAge = sessionCookieMaxAge
	cookie.Expires = time.Now().Add(365 * 24 * time.Hour)
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

func (*App) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set(
			"Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self'; font-src 'self'; "+
				"img-src * data:; connect-src 'self'; object-src 'none'; base-uri 'self'; "+
				"frame-ancestors 'none'; form-action 'self'",
		)

		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContextKey).(string)

	return value
}

// sessionFrom returns the session ID of the request. Requests that bypass
// withSession share the empty session.
func sessionFrom(ctx context.Context) string {
	value, _ := ctx.Value(sessionContextKey).(string)

	return value
}
