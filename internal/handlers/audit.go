package handlers

import (
	"net/http"
	"strconv"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

// AuditResponse lists recent audit entries, newest first.
type AuditResponse struct {
	OK      bool                `json:"ok"`
	Entries []models.AuditEntry `json:"entries"`
}

// ListAudit handles GET /api/audit?limit=N.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.Error(w, r, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.Error(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("read audit log failed")
		h.Error(w, r, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	h.JSON(w, r, http.StatusOK, AuditResponse{OK: true, Entries: entries})
}
