package handlers

import (
	"net/http"

	"github.com/upb/bedrock-failover-router/services/targets"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// TargetView is the public shape of one configured model
type TargetView struct {
	ModelID    string   `json:"model_id"`
	Name       string   `json:"name"`
	Regions    []string `json:"regions"`
	MaxRetries int      `json:"max_retries"`
	RetryDelay float64  `json:"retry_delay"` // seconds
}

// TargetsResponse lists the failover ladder in traversal order
type TargetsResponse struct {
	Models      []TargetView `json:"models"`
	Regions     []string     `json:"regions"`
	MaxAttempts int          `json:"max_attempts"`
}

// TargetsHandler exposes the loaded target registry
type TargetsHandler struct {
	registry *targets.Registry
	logger   *zap.Logger
}

// NewTargetsHandler creates a new TargetsHandler
func NewTargetsHandler(registry *targets.Registry, logger *zap.Logger) *TargetsHandler {
	return &TargetsHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/targets
func (h *TargetsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.registry.Targets()
	views := make([]TargetView, len(list))
	for i, t := range list {
		views[i] = TargetView{
			ModelID:    t.ModelID,
			Name:       t.Name,
			Regions:    t.Regions,
			MaxRetries: t.MaxRetries,
			RetryDelay: t.RetryDelay.Seconds(),
		}
	}

	response := TargetsResponse{
		Models:      views,
		Regions:     h.registry.Regions(),
		MaxAttempts: h.registry.MaxAttempts(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write targets response", zap.Error(err))
	}
}
