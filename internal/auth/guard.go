// Package auth guards the admin API with a pre-shared bearer token.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"slacknotes/pkg/logger"
)

// Guard authenticates admin requests against one static token. An empty
// token leaves the admin surface switched off.
type Guard struct {
	token string
	audit *slog.Logger
}

// NewGuard builds the guard. Whitespace around the token is ignored.
func NewGuard(token string) *Guard {
	return &Guard{
		token: strings.TrimSpace(token),
		audit: logger.Audit(),
	}
}

// Enabled reports whether a token is configured.
func (g *Guard) Enabled() bool {
	return g != nil && g.token != ""
}

// Middleware enforces the bearer token and writes one api_request audit
// line per authenticated request. With no token configured every request
// is refused with 503 so a missing deployment secret reads as "disabled",
// not "open".
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			http.Error(w, "admin api disabled", http.StatusServiceUnavailable)
			g.deny(r, http.StatusServiceUnavailable, "no admin token configured")
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			g.deny(r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(g.token)) != 1 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			g.deny(r, http.StatusUnauthorized, "invalid token")
			return
		}

		start := time.Now()
		aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(aw, r)
		g.audit.Info("api_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", aw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (g *Guard) deny(r *http.Request, status int, reason string) {
	g.audit.Warn("access_denied",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", reason))
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):]), true
	}
	return "", false
}

// auditWriter captures the response status for the audit line.
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
