package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/simpleremote/internal/alerts"
	"github.com/eldtechnologies/simpleremote/internal/metrics"
	"github.com/eldtechnologies/simpleremote/internal/models"
)

// SubmitAlertRequest is the body of both submission endpoints.
type SubmitAlertRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AlertsResponse describes the queue and the active slot.
type AlertsResponse struct {
	OK          bool           `json:"ok"`
	Queue       []models.Alert `json:"queue"`
	Active      *models.Alert  `json:"active"`
	ActiveUntil int64          `json:"activeUntil"`
}

// SubmitAlertResponse carries the created alert.
type SubmitAlertResponse struct {
	OK   bool         `json:"ok"`
	Item models.Alert `json:"item"`
}

// DeleteAlertResponse reports whether the id matched anything.
type DeleteAlertResponse struct {
	OK      bool `json:"ok"`
	Removed bool `json:"removed"`
}

// ListAlerts handles GET /api/alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	snap := h.alerts.Snapshot()
	resp := AlertsResponse{OK: true, Queue: snap.Queue, Active: snap.Active}
	if resp.Queue == nil {
		resp.Queue = []models.Alert{}
	}
	if snap.Active != nil {
		resp.ActiveUntil = snap.ActiveUntil.UnixMilli()
	}
	h.JSON(w, r, http.StatusOK, resp)
}

// SubmitAlert handles POST /api/alerts from the dashboard.
func (h *Handler) SubmitAlert(w http.ResponseWriter, r *http.Request) {
	item, ok := h.enqueue(w, r, "dashboard")
	if !ok {
		return
	}
	h.JSON(w, r, http.StatusOK, SubmitAlertResponse{OK: true, Item: item})
}

// SubmitExternalAlert handles POST /api/external/alert. The API key has
// already been checked by middleware.
func (h *Handler) SubmitExternalAlert(w http.ResponseWriter, r *http.Request) {
	item, ok := h.enqueue(w, r, "external")
	if !ok {
		return
	}
	h.JSON(w, r, http.StatusOK, SubmitAlertResponse{OK: true, Item: item})
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, source string) (models.Alert, bool) {
	var req SubmitAlertRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return models.Alert{}, false
	}

	item, err := h.alerts.Enqueue(req.Title, req.Message)
	if err != nil {
		var ve *alerts.ValidationError
		if errors.As(err, &ve) {
			h.Error(w, r, http.StatusBadRequest, ve.Reason)
			return models.Alert{}, false
		}
		h.logger.Error().Err(err).Msg("enqueue failed")
		h.Error(w, r, http.StatusInternalServerError, "failed to queue alert")
		return models.Alert{}, false
	}

	metrics.AlertsEnqueued.WithLabelValues(source).Inc()
	h.record(r, "alert.submit", item.ID, true, source)
	return item, true
}

// DeleteAlert handles DELETE /api/alerts/{id}.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed := h.alerts.Delete(id)
	h.record(r, "alert.delete", id, removed, "")
	h.JSON(w, r, http.StatusOK, DeleteAlertResponse{OK: true, Removed: removed})
}

// ClearAlerts handles POST /api/alerts/clear.
func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.alerts.Clear()
	h.record(r, "alert.clear", "", true, "")
	h.ok(w, r)
}
