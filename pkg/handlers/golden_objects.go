package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/apperrors"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/models"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
)

// GoldenObjectsHandler handles read access to the golden object store.
type GoldenObjectsHandler struct {
	goldenRepo repositories.GoldenObjectRepository
	logger     *zap.Logger
}

// NewGoldenObjectsHandler creates a new golden objects handler.
func NewGoldenObjectsHandler(goldenRepo repositories.GoldenObjectRepository, logger *zap.Logger) *GoldenObjectsHandler {
	return &GoldenObjectsHandler{
		goldenRepo: goldenRepo,
		logger:     logger,
	}
}

// RegisterRoutes registers the golden objects handler's routes on the given mux.
func (h *GoldenObjectsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/golden-objects", h.ListObjects)
	mux.HandleFunc("GET /api/golden-objects/{golden_id}", h.GetObject)
}

// ListObjects handles GET /api/golden-objects
// Optional query parameters: object_type, limit, offset.
func (h *GoldenObjectsHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	objectType := r.URL.Query().Get("object_type")

	objects, total, err := h.goldenRepo.ListObjects(r.Context(), objectType, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list golden objects", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_objects_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if objects == nil {
		objects = make([]*models.GoldenObject, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginatedResponse{
			Items:  objects,
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// goldenObjectDetail is a golden object together with its source links.
type goldenObjectDetail struct {
	*models.GoldenObject
	Links []*models.SourceLink `json:"links"`
}

// GetObject handles GET /api/golden-objects/{golden_id}
func (h *GoldenObjectsHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	goldenID := r.PathValue("golden_id")

	object, err := h.goldenRepo.GetObject(r.Context(), goldenID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "object_not_found", "Golden object not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get golden object", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_object_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	links, err := h.goldenRepo.ListLinks(r.Context(), goldenID)
	if err != nil {
		h.logger.Error("Failed to list source links", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_object_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if links == nil {
		links = make([]*models.SourceLink, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    goldenObjectDetail{GoldenObject: object, Links: links},
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
