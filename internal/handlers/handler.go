package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/alerts"
	"github.com/eldtechnologies/simpleremote/internal/api/middleware"
	"github.com/eldtechnologies/simpleremote/internal/auth"
	"github.com/eldtechnologies/simpleremote/internal/bridge"
	"github.com/eldtechnologies/simpleremote/internal/models"
	"github.com/eldtechnologies/simpleremote/internal/store"
)

// AlertQueue is the slice of the alert engine the handlers use.
type AlertQueue interface {
	Enqueue(title, message string) (models.Alert, error)
	Delete(id string) bool
	Clear()
	Dismiss() bool
	Snapshot() alerts.Snapshot
}

// ConfigEditor is the slice of the config patch service the handlers use.
type ConfigEditor interface {
	ListModules() ([]models.ModuleSummary, error)
	GetModule(name string, index *int) (models.ModuleConfigEntry, error)
	Patch(name string, index *int, ops json.RawMessage) (models.ModuleConfigEntry, error)
}

// EventSource hands out subscriptions to bridge events.
type EventSource interface {
	Subscribe(buffer int) (<-chan bridge.Event, func())
}

// Deps are the collaborators of a Handler. Redis and Audit may be nil.
type Deps struct {
	Alerts   AlertQueue
	Config   ConfigEditor
	Events   EventSource
	Sessions auth.SessionStore
	Verifier *auth.Verifier
	Audit    store.AuditLog
	Redis    *store.RedisStore
	Logger   zerolog.Logger

	// Session cookie settings.
	CookiePath   string
	CookieSecure bool
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	alerts   AlertQueue
	config   ConfigEditor
	events   EventSource
	sessions auth.SessionStore
	verifier *auth.Verifier
	audit    store.AuditLog
	redis    *store.RedisStore
	logger   zerolog.Logger

	cookiePath   string
	cookieSecure bool
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	path := d.CookiePath
	if path == "" {
		path = "/"
	}
	return &Handler{
		alerts:       d.Alerts,
		config:       d.Config,
		events:       d.Events,
		sessions:     d.Sessions,
		verifier:     d.Verifier,
		audit:        d.Audit,
		redis:        d.Redis,
		logger:       d.Logger.With().Str("component", "handlers").Logger(),
		cookiePath:   path,
		cookieSecure: d.CookieSecure,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.JSON(w, r, status, ErrorResponse{Error: message})
}

// OKResponse is the body of a success without payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, r, http.StatusOK, OKResponse{OK: true})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// actor names who performed a request for the audit log.
func actor(r *http.Request) string {
	if sess := middleware.GetSessionFromContext(r.Context()); sess != nil {
		return sess.User
	}
	return "ip:" + middleware.RealIP(r)
}

// record writes an audit entry. Failures are logged and never surface to
// the caller.
func (h *Handler) record(r *http.Request, action, target string, ok bool, detail string) {
	if h.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()

	entry := models.AuditEntry{
		At:     time.Now(),
		Actor:  actor(r),
		Action: action,
		Target: target,
		OK:     ok,
		Detail: detail,
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}
