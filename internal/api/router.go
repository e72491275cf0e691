package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/api/middleware"
	"github.com/eldtechnologies/simpleremote/internal/auth"
	"github.com/eldtechnologies/simpleremote/internal/handlers"
)

// Options configures the router.
type Options struct {
	BasePath     string
	ExternalKey  string
	CookieSecure bool

	DisplayWhitelist   []string
	RateLimitWhitelist []string

	Handler  *handlers.Handler
	Sessions auth.SessionStore
	// Counter backs rate limiting; nil keeps counters in memory.
	Counter middleware.Counter
	Logger  zerolog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	logger := opts.Logger
	h := opts.Handler

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics(opts.BasePath))

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders(opts.CookieSecure))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	sessions := middleware.NewSessionAuth(opts.Sessions, logger)
	limiter := middleware.NewRateLimiter(opts.Counter, middleware.ParseIPList(opts.RateLimitWhitelist, logger), logger)
	display := middleware.ParseIPList(opts.DisplayWhitelist, logger)

	// Body checks run after authentication so callers without credentials
	// always see an auth failure.
	body := chi.Chain(middleware.MaxBodySize(middleware.MaxBody), middleware.RequireJSON)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	routes := func(r chi.Router) {
		r.With(limiter.Limit(middleware.LoginLimit)).With(body...).Post("/api/login", h.Login)
		r.Post("/api/logout", h.Logout)

		// External submissions may come from browsers on other origins.
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", middleware.APIKeyHeader},
				ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Options("/api/external/alert", func(w http.ResponseWriter, r *http.Request) {})
			r.With(
				limiter.Limit(middleware.ExternalLimit),
				middleware.RequireAPIKey(opts.ExternalKey, logger),
			).With(body...).Post("/api/external/alert", h.SubmitExternalAlert)
		})

		// Display client on the mirror itself
		r.Group(func(r chi.Router) {
			r.Use(sessions.RequireDisplay(display))
			r.Use(body...)

			r.Get("/api/display/events", h.DisplayEvents)
			r.Post("/api/display/dismiss", h.DismissActive)
		})

		// Operator routes (require session)
		r.Group(func(r chi.Router) {
			r.Use(sessions.RequireSession)
			r.Use(body...)

			r.Get("/api/alerts", h.ListAlerts)
			r.Post("/api/alerts", h.SubmitAlert)
			r.Post("/api/alerts/clear", h.ClearAlerts)
			r.Delete("/api/alerts/{id}", h.DeleteAlert)

			r.Get("/api/config/modules", h.ListModules)
			r.Get("/api/config/module", h.GetModule)
			r.Patch("/api/config/module", h.PatchModule)

			r.Get("/api/audit", h.ListAudit)
		})
	}

	if opts.BasePath == "" {
		routes(r)
	} else {
		r.Route(opts.BasePath, routes)
	}

	return r
}
