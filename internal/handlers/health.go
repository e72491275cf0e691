package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string           `json:"status"` // "healthy" or "degraded"
	Version    string           `json:"version"`
	QueueDepth int              `json:"queueDepth"`
	Showing    bool             `json:"showing"`
	Checks     map[string]Check `json:"checks"`
	Timestamp  string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	snap := h.alerts.Snapshot()
	checks := map[string]Check{
		"queue": {Status: "pass", Message: strconv.Itoa(len(snap.Queue)) + " pending"},
	}
	allHealthy := true

	// Redis is optional; without it sessions and limits are in memory.
	if h.redis != nil {
		checks["redis"] = ping(ctx, h.redis)
	} else {
		checks["redis"] = Check{Status: "pass", Message: "not configured"}
	}

	if h.audit != nil {
		checks["audit"] = ping(ctx, h.audit)
	} else {
		checks["audit"] = Check{Status: "fail", Message: "not configured"}
	}

	for _, c := range checks {
		if c.Status != "pass" {
			allHealthy = false
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, r, statusCode, HealthResponse{
		Status:     status,
		Version:    version,
		QueueDepth: len(snap.Queue),
		Showing:    snap.Active != nil,
		Checks:     checks,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func ping(ctx context.Context, p pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}
