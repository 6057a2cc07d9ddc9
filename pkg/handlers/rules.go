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

// RulesHandler handles identity rule HTTP requests.
type RulesHandler struct {
	rules  services.RuleService
	logger *zap.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(rules services.RuleService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{
		rules:  rules,
		logger: logger,
	}
}

// RegisterRoutes registers the rules handler's routes on the given mux.
func (h *RulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rules", h.CreateRule)
	mux.HandleFunc("GET /api/rules", h.ListRules)
	mux.HandleFunc("GET /api/rules/{rule_id}", h.GetRule)
	mux.HandleFunc("POST /api/rules/{rule_id}/activate", h.SetActive(true))
	mux.HandleFunc("POST /api/rules/{rule_id}/deactivate", h.SetActive(false))
}

type createRuleRequest struct {
	ID            string                               `json:"id"`
	Name          string                               `json:"name"`
	ObjectType    string                               `json:"object_type"`
	SourceSystem  string                               `json:"source_system"`
	KeyFields     []string                             `json:"key_fields"`
	Normalization map[string]models.NormalizeDirective `json:"normalization"`
	Priority      int                                  `json:"priority"`
}

// CreateRule handles POST /api/rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	rule := &models.IdentityRule{
		ID:            req.ID,
		Name:          req.Name,
		ObjectType:    req.ObjectType,
		SourceSystem:  req.SourceSystem,
		KeyFields:     req.KeyFields,
		Normalization: req.Normalization,
		Priority:      req.Priority,
		Active:        true,
	}

	if err := h.rules.CreateRule(r.Context(), rule); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrEmptyKeyFields):
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_rule", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrConflict):
			if err := ErrorResponse(w, http.StatusConflict, "rule_exists", "A rule with this ID already exists"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to create rule", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "create_rule_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    rule,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRules handles GET /api/rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rules", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_rules_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if rules == nil {
		rules = make([]*models.IdentityRule, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    rules,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetRule handles GET /api/rules/{rule_id}
func (h *RulesHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetRule(r.Context(), r.PathValue("rule_id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "rule_not_found", "Rule not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get rule", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_rule_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    rule,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetActive returns a handler for POST /api/rules/{rule_id}/activate and
// /deactivate.
func (h *RulesHandler) SetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h.rules.SetRuleActive(r.Context(), r.PathValue("rule_id"), active)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				if err := ErrorResponse(w, http.StatusNotFound, "rule_not_found", "Rule not found"); err != nil {
					h.logger.Error("Failed to write error response", zap.Error(err))
				}
				return
			}
			h.logger.Error("Failed to toggle rule", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "toggle_rule_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		if err := WriteJSON(w, http.StatusOK, ApiResponse{
			Success: true,
			Message: "Rule updated",
		}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
	}
}
