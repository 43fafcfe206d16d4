package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/bedrock-failover-router/repositories"
	"github.com/upb/bedrock-failover-router/services"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

const defaultDispatchLimit = 50

// DispatchHandler serves the persisted dispatch log
type DispatchHandler struct {
	repo   repositories.DispatchRepository
	logger *zap.Logger
}

// NewDispatchHandler creates a new DispatchHandler. repo is nil when no
// database is configured; every request then gets 503.
func NewDispatchHandler(repo repositories.DispatchRepository, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/dispatches?limit=N
func (h *DispatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		HandleServiceError(w, services.ErrAuditLogUnavailable, h.logger)
		return
	}

	limit := defaultDispatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	records, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list dispatch records", err), h.logger)
		return
	}

	if err := utils.WriteOK(w, records); err != nil {
		h.logger.Error("failed to write dispatch list", zap.Error(err))
	}
}

// HandleGet handles GET /api/v1/dispatches/{id}
func (h *DispatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		HandleServiceError(w, services.ErrAuditLogUnavailable, h.logger)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "invalid dispatch id", nil)
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = utils.WriteNotFound(w, "dispatch record not found")
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to get dispatch record", err), h.logger)
		return
	}

	if err := utils.WriteOK(w, record); err != nil {
		h.logger.Error("failed to write dispatch record", zap.Error(err))
	}
}
