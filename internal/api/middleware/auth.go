package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/auth"
	"github.com/eldtechnologies/simpleremote/internal/models"
)

type contextKey string

const SessionContextKey contextKey = "session"

// APIKeyHeader carries the shared secret of the external endpoint.
const APIKeyHeader = "X-API-Key"

// SessionAuth guards routes with the operator session cookie.
type SessionAuth struct {
	sessions auth.SessionStore
	logger   zerolog.Logger
}

// NewSessionAuth creates a session auth middleware.
func NewSessionAuth(sessions auth.SessionStore, logger zerolog.Logger) *SessionAuth {
	return &SessionAuth{sessions: sessions, logger: logger}
}

// RequireSession rejects requests without a live session with 401 before
// the handler runs.
func (m *SessionAuth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.lookup(r)
		if sess == nil {
			jsonError(w, http.StatusUnauthorized, "")
			return
		}
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireDisplay admits the display client: callers whose address is in
// allowed, or who hold a session.
func (m *SessionAuth) RequireDisplay(allowed *IPList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed.Contains(peerIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			sess := m.lookup(r)
			if sess == nil {
				jsonError(w, http.StatusForbidden, "display endpoints are local only")
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *SessionAuth) lookup(r *http.Request) *models.Session {
	c, err := r.Cookie(auth.CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	sess, ok, err := m.sessions.Get(r.Context(), c.Value)
	if err != nil {
		m.logger.Warn().Err(err).Msg("session lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return &sess
}

// RequireAPIKey checks the X-API-Key header against expected. An empty
// expected key disables the route with 403.
func RequireAPIKey(expected string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				jsonError(w, http.StatusForbidden, "external submission disabled")
				return
			}
			provided := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if !auth.KeyMatches(provided, expected) {
				logger.Warn().
					Str("type", "security").
					Str("event", "bad_api_key").
					Str("ip", RealIP(r)).
					Bool("present", provided != "").
					Msg("external submission rejected")
				jsonError(w, http.StatusUnauthorized, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message})
}

// GetSessionFromContext retrieves the operator session from the request context.
func GetSessionFromContext(ctx context.Context) *models.Session {
	sess, ok := ctx.Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return sess
}
