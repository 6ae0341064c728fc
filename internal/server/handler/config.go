package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/py361828925-design/arb-bot/internal/configsvc"
	"github.com/py361828925-design/arb-bot/internal/domain"
)

// ConfigHandler serves the configuration endpoints.
type ConfigHandler struct {
	service *configsvc.Service
	logger  *slog.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(service *configsvc.Service, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{service: service, logger: logHandler(logger, "config")}
}

// GetCurrent returns the active profile.
// GET /config/current
func (h *ConfigHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetCurrent(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no configuration profile yet")
			return
		}
		h.logger.ErrorContext(r.Context(), "get current config failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "load configuration failed")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateCurrent creates the next profile version from a partial update and
// returns the stored profile.
// PUT /config/current
func (h *ConfigHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	var req configsvc.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.service.Update(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "update config failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "update configuration failed")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListAudit returns recent configuration audit entries.
// GET /config/audit
func (h *ConfigHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 1, 500)
	entries, err := h.service.ListAudit(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list config audit failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "list audit failed")
		return
	}
	if entries == nil {
		entries = []domain.ConfigAuditLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}
