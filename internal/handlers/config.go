package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/eldtechnologies/simpleremote/internal/configpatch"
	"github.com/eldtechnologies/simpleremote/internal/models"
)

// ModulesResponse lists the mirror's module entries.
type ModulesResponse struct {
	OK      bool                   `json:"ok"`
	Modules []models.ModuleSummary `json:"modules"`
}

// ModuleResponse carries one entry's config.
type ModuleResponse struct {
	OK     bool           `json:"ok"`
	Module string         `json:"module"`
	Index  int            `json:"index"`
	Config map[string]any `json:"config"`
}

// PatchModuleRequest is the body of PATCH /api/config/module.
type PatchModuleRequest struct {
	Name  string          `json:"name"`
	Index *int            `json:"index"`
	Patch json.RawMessage `json:"patch"`
}

// ListModules handles GET /api/config/modules.
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	list, err := h.config.ListModules()
	if err != nil {
		h.logger.Error().Err(err).Msg("list modules failed")
		h.Error(w, r, http.StatusInternalServerError, "failed to read config")
		return
	}
	h.JSON(w, r, http.StatusOK, ModulesResponse{OK: true, Modules: list})
}

// GetModule handles GET /api/config/module?name=&index=.
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		h.Error(w, r, http.StatusBadRequest, "missing module name")
		return
	}
	index, err := parseIndex(r.URL.Query().Get("index"))
	if err != nil {
		h.Error(w, r, http.StatusBadRequest, "index must be an integer")
		return
	}

	entry, err := h.config.GetModule(name, index)
	if err != nil {
		h.configError(w, r, err)
		return
	}
	h.JSON(w, r, http.StatusOK, ModuleResponse{OK: true, Module: entry.Module, Index: entry.Index, Config: entry.Config})
}

// PatchModule handles PATCH /api/config/module.
func (h *Handler) PatchModule(w http.ResponseWriter, r *http.Request) {
	var req PatchModuleRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, r, http.StatusBadRequest, "missing module name")
		return
	}
	if !isJSONArray(req.Patch) {
		h.Error(w, r, http.StatusBadRequest, "patch must be an array")
		return
	}

	entry, err := h.config.Patch(req.Name, req.Index, req.Patch)
	if err != nil {
		h.record(r, "config.patch", req.Name, false, err.Error())
		h.configError(w, r, err)
		return
	}
	h.record(r, "config.patch", entry.Module+"#"+strconv.Itoa(entry.Index), true, "")
	h.JSON(w, r, http.StatusOK, ModuleResponse{OK: true, Module: entry.Module, Index: entry.Index, Config: entry.Config})
}

// configError maps config service errors onto status codes.
func (h *Handler) configError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		patchErr  *configpatch.PatchError
		schemaErr *configpatch.SchemaError
		readErr   *configpatch.ReadError
	)
	switch {
	case errors.Is(err, configpatch.ErrNotFound):
		h.Error(w, r, http.StatusNotFound, "module not found")
	case errors.As(err, &patchErr):
		h.Error(w, r, http.StatusBadRequest, "invalid patch")
	case errors.As(err, &schemaErr):
		h.JSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "schema validation failed",
			Details: schemaErr.Issues,
		})
	case errors.As(err, &readErr):
		h.logger.Error().Err(err).Msg("config unreadable")
		h.Error(w, r, http.StatusInternalServerError, "failed to read config")
	default:
		h.logger.Error().Err(err).Msg("config update failed")
		h.Error(w, r, http.StatusInternalServerError, "failed to update config")
	}
}

func parseIndex(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func isJSONArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}
