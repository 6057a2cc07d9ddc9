package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
)

// KpisHandler handles read access to run-scoped KPI facts.
type KpisHandler struct {
	kpiRepo repositories.KpiRepository
	logger  *zap.Logger
}

// NewKpisHandler creates a new KPIs handler.
func NewKpisHandler(kpiRepo repositories.KpiRepository, logger *zap.Logger) *KpisHandler {
	return &KpisHandler{
		kpiRepo: kpiRepo,
		logger:  logger,
	}
}

// RegisterRoutes registers the KPIs handler's routes on the given mux.
func (h *KpisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/kpis", h.List)
	mux.HandleFunc("GET /api/scans/{run_id}/kpis", h.ListByRun)
}

// List handles GET /api/kpis with an optional scan_run_id filter.
func (h *KpisHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var runID *uuid.UUID
	if raw := r.URL.Query().Get("scan_run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_scan_run_id", "Invalid scan run ID format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		runID = &id
	}

	facts, err := h.kpiRepo.List(r.Context(), runID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list kpi facts", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_kpis_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if facts == nil {
		facts = make([]*models.KpiFact, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    facts,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListByRun handles GET /api/scans/{run_id}/kpis
func (h *KpisHandler) ListByRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := ParseScanRunID(w, r, h.logger)
	if !ok {
		return
	}

	facts, err := h.kpiRepo.ListByRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to list kpi facts", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_kpis_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if facts == nil {
		facts = make([]*models.KpiFact, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    facts,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
