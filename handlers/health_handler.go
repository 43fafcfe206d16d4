package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/bedrock-failover-router/services/audit"
	"github.com/upb/bedrock-failover-router/services/targets"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Models    int               `json:"models,omitempty"`
	Regions   int               `json:"regions,omitempty"`

	DispatchLog *audit.Stats `json:"dispatch_log,omitempty"`
}

// DatabaseChecker reports whether the dispatch log database is reachable
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// DispatchLogStats exposes the asynchronous dispatch log writer's counters
type DispatchLogStats interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db       DatabaseChecker
	auditLog DispatchLogStats
	registry *targets.Registry
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when the
// dispatch log is disabled.
func NewHealthHandler(db DatabaseChecker, registry *targets.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// WithDispatchLog reports the dispatch log writer on /readyz
func (h *HealthHandler) WithDispatchLog(stats DispatchLogStats) *HealthHandler {
	h.auditLog = stats
	return h
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates targets are loaded and the database answers
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Targets
	if h.registry == nil || h.registry.Len() == 0 {
		checks["targets"] = "empty"
		allHealthy = false
	} else {
		checks["targets"] = "loaded"
	}

	// Database connectivity
	switch err := h.checkDatabase(ctx); {
	case h.db == nil:
		checks["database"] = "disabled"
	case err != nil:
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	default:
		checks["database"] = "healthy"
	}

	// Dispatch log writer
	var logStats *audit.Stats
	if h.auditLog != nil {
		stats := h.auditLog.GetStats()
		logStats = &stats
		if stats.Started {
			checks["dispatch_log"] = "running"
		} else {
			checks["dispatch_log"] = "stopped"
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Checks:      checks,
		DispatchLog: logStats,
	}
	if h.registry != nil {
		response.Models = h.registry.Len()
		response.Regions = len(h.registry.Regions())
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	return h.db.HealthCheck(ctx)
}
