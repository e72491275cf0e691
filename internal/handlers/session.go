package handlers

import (
	"net/http"
	"time"

	"github.com/eldtechnologies/simpleremote/internal/api/middleware"
	"github.com/eldtechnologies/simpleremote/internal/auth"
	"github.com/eldtechnologies/simpleremote/internal/metrics"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/login. On success it sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !h.verifier.Verify(req.Username, req.Password) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.logger.Warn().
			Str("type", "security").
			Str("event", "login_failed").
			Str("ip", middleware.RealIP(r)).
			Msg("bad credentials")
		h.record(r, "login", req.Username, false, "bad credentials")
		h.JSON(w, r, http.StatusUnauthorized, ErrorResponse{})
		return
	}

	sess, err := h.sessions.Create(r.Context(), req.Username)
	if err != nil {
		h.logger.Error().Err(err).Msg("create session failed")
		h.Error(w, r, http.StatusInternalServerError, "failed to create session")
		return
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.record(r, "login", req.Username, true, "")

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    sess.Token,
		Path:     h.cookiePath,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.ok(w, r)
}

// Logout handles POST /api/logout. It succeeds with or without a session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		if err := h.sessions.Delete(r.Context(), c.Value); err != nil {
			h.logger.Warn().Err(err).Msg("delete session failed")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     h.cookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.ok(w, r)
}
