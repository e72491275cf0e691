package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simpleremote_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Alert queue
	AlertsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_alerts_enqueued_total",
			Help: "Total alerts accepted into the queue",
		},
		[]string{"source"}, // "dashboard", "external"
	)

	AlertsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simpleremote_alerts_evicted_total",
			Help: "Alerts dropped from the front of a full queue",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simpleremote_alert_queue_depth",
			Help: "Alerts waiting in the queue",
		},
	)

	ActiveAlert = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simpleremote_active_alert",
			Help: "1 while an alert is showing",
		},
	)

	Rotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simpleremote_alert_rotations_total",
			Help: "Alerts promoted into the active slot",
		},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simpleremote_queue_persistence_failures_total",
			Help: "Queue file writes that failed",
		},
	)

	// Config editing
	ConfigPatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_config_patches_total",
			Help: "Module config patch attempts by result",
		},
		[]string{"result"}, // "ok", "not_found", "invalid_patch", "schema", "read_error", "write_error"
	)

	// Security
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpleremote_display_events_dropped_total",
			Help: "Buffered events discarded for a slow subscriber, by type",
		},
		[]string{"type"},
	)
)
