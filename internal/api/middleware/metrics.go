package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/simpleremote/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the event stream needs for flushing.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Metrics returns middleware that records Prometheus metrics. basePath is
// stripped from the path label.
func Metrics(basePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(strings.TrimPrefix(r.URL.Path, basePath))

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, path, strconv.Itoa(wrapped.status),
			).Inc()

			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, path,
			).Observe(duration)
		})
	}
}

// normalizePath folds alert ids out of paths to avoid high cardinality in
// metrics.
func normalizePath(path string) string {
	const alerts = "/api/alerts/"
	if strings.HasPrefix(path, alerts) && len(path) > len(alerts) && path != alerts+"clear" {
		return alerts + ":id"
	}
	switch path {
	case "/health", "/metrics", "/api/alerts", "/api/alerts/clear", "/api/external/alert",
		"/api/login", "/api/logout", "/api/config/modules", "/api/config/module",
		"/api/display/events", "/api/display/dismiss", "/api/audit":
		return path
	}
	return "other"
}
