package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/services"
)

// ScansHandler handles scan run HTTP requests.
type ScansHandler struct {
	coordinator services.CoordinatorService
	logger      *zap.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(coordinator services.CoordinatorService, logger *zap.Logger) *ScansHandler {
	return &ScansHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// RegisterRoutes registers the scans handler's routes on the given mux.
func (h *ScansHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scans", h.StartScan)
	mux.HandleFunc("GET /api/scans", h.ListScans)
	mux.HandleFunc("GET /api/scans/{run_id}", h.GetScan)
}

type startScanRequest struct {
	SourceID string `json:"source_id"` // empty = all active sources
}

// StartScan handles POST /api/scans
// The scan executes in the background; the response carries the PENDING run.
func (h *ScansHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	run, err := h.coordinator.StartRun(r.Context(), req.SourceID)
	if err != nil {
		h.logger.Error("Failed to start scan run", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "start_scan_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, ApiResponse{
		Success: true,
		Data:    run,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListScans handles GET /api/scans
func (h *ScansHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	runs, err := h.coordinator.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list scan runs", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_scans_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if runs == nil {
		runs = make([]*models.ScanRun, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    runs,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetScan handles GET /api/scans/{run_id}
func (h *ScansHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	runID, ok := ParseScanRunID(w, r, h.logger)
	if !ok {
		return
	}

	run, err := h.coordinator.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "scan_not_found", "Scan run not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get scan run", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_scan_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    run,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
