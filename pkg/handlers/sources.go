package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/services"
)

// SourcesHandler handles source registry HTTP requests.
type SourcesHandler struct {
	registry services.RegistryService
	logger   *zap.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(registry services.RegistryService, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the sources handler's routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sources", h.RegisterSource)
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("GET /api/sources/{source_id}", h.GetSource)
	mux.HandleFunc("POST /api/sources/{source_id}/test", h.TestSource)
}

type registerSourceRequest struct {
	ID                string         `json:"id"`
	DisplayName       string         `json:"display_name"`
	SourceType        string         `json:"source_type"`
	Connection        map[string]any `json:"connection"`
	SchemaAllowList   []string       `json:"schema_allow_list"`
	TableDenyPatterns []string       `json:"table_deny_patterns"`
	Active            *bool          `json:"active"`
}

// RegisterSource handles POST /api/sources
func (h *SourcesHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// New sources default to active.
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	descriptor := &models.SourceDescriptor{
		ID:                req.ID,
		DisplayName:       req.DisplayName,
		SourceType:        req.SourceType,
		Connection:        req.Connection,
		SchemaAllowList:   req.SchemaAllowList,
		TableDenyPatterns: req.TableDenyPatterns,
		Active:            active,
	}

	if err := h.registry.RegisterSource(r.Context(), descriptor); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_source", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrConflict):
			if err := ErrorResponse(w, http.StatusConflict, "source_exists", "A source with this ID already exists"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to register source", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "register_source_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    descriptor,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListSources handles GET /api/sources
func (h *SourcesHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.registry.ListSources(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sources", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_sources_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if sources == nil {
		sources = make([]*models.SourceDescriptor, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    sources,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSource handles GET /api/sources/{source_id}
func (h *SourcesHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	descriptor, err := h.registry.GetSource(r.Context(), r.PathValue("source_id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "source_not_found", "Source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get source", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_source_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    descriptor,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TestSource handles POST /api/sources/{source_id}/test
func (h *SourcesHandler) TestSource(w http.ResponseWriter, r *http.Request) {
	err := h.registry.TestSource(r.Context(), r.PathValue("source_id"))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if err := ErrorResponse(w, http.StatusNotFound, "source_not_found", "Source not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrSourceUnreachable):
			if err := ErrorResponse(w, http.StatusBadGateway, "source_unreachable", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to test source", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "test_source_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Source connection OK",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
