// Package inference validates invoke requests, runs them through the
// failover dispatcher and maps the terminal outcome to a domain error.
package inference

import (
	"context"
	"errors"

	"github.com/upb/bedrock-failover-router/internal/shared"
	"github.com/upb/bedrock-failover-router/models"
	"github.com/upb/bedrock-failover-router/services"
	"github.com/upb/bedrock-failover-router/services/failover"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// Dispatcher runs one request through the target ladder.
// *failover.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conv failover.Conversation, params failover.GenerationParams) (*failover.Result, error)
}

// Recorder persists dispatch outcomes. *audit.AuditService satisfies it.
type Recorder interface {
	RecordDispatch(ctx context.Context, rec *models.DispatchRecord) error
}

// InferenceService handles invoke requests
type InferenceService struct {
	dispatcher Dispatcher
	recorder   Recorder
	logger     *zap.Logger
}

// NewInferenceService creates a new InferenceService. recorder may be nil.
func NewInferenceService(dispatcher Dispatcher, recorder Recorder, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
	}
}

// Invoke validates req and dispatches it. Errors are *services.DomainError:
// validation (400), exhausted or external (500).
func (s *InferenceService) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	logger := shared.RequestLogger(ctx, s.logger)

	if req == nil || len(req.Contents) == 0 {
		return nil, services.ErrEmptyPrompt
	}

	if err := utils.ValidateStruct(req); err != nil {
		logger.Debug("request validation failed", zap.Error(err))
		return nil, validationError(err)
	}

	result, err := s.dispatcher.Dispatch(ctx, failover.Conversation(req.Contents), req.Params())
	s.record(ctx, result, err)

	if err != nil {
		var fatal *failover.FatalError
		if errors.As(err, &fatal) {
			return nil, services.NewDomainError(services.ErrorTypeExternal, "inference call failed", fatal).
				WithDetail("model_id", fatal.ModelID).
				WithDetail("region", fatal.Region).
				WithDetail("attempt", fatal.Attempt)
		}
		return nil, services.WrapExternal("inference call failed", err)
	}

	switch result.Status {
	case failover.StatusSucceeded:
		logger.Info("dispatch succeeded",
			zap.String("model_id", result.ModelID),
			zap.String("region", result.Region),
			zap.Int("attempts", len(result.Attempts)),
			zap.Duration("elapsed", result.Elapsed))
		return &InvokeResponse{Message: result.Response.Message}, nil
	default:
		return nil, services.NewDomainError(services.ErrorTypeExhausted, services.ErrAllTargetsExhausted.Message, nil).
			WithDetail("attempts", len(result.Attempts))
	}
}

func validationError(err error) error {
	derr := services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		derr.Details = verr.Details()
	}
	return derr
}

// record hands the outcome to the recorder. Failures are logged only.
func (s *InferenceService) record(ctx context.Context, result *failover.Result, err error) {
	if s.recorder == nil || result == nil {
		return
	}

	rec := models.NewDispatchRecord(shared.RequestID(ctx), models.DispatchStatus(result.Status)).
		WithTarget(result.ModelID, result.Region).
		WithAttempts(trail(result), result.RateLimitedCount()).
		WithLatency(result.Elapsed)

	if result.Response != nil {
		rec.WithUsage(result.Response.Usage.InputTokens, result.Response.Usage.OutputTokens)
	}
	if err != nil {
		rec.WithError(err.Error())
	}

	if rerr := s.recorder.RecordDispatch(ctx, rec); rerr != nil {
		shared.RequestLogger(ctx, s.logger).Warn("failed to record dispatch", zap.Error(rerr))
	}
}

func trail(result *failover.Result) []models.AttemptEntry {
	entries := make([]models.AttemptEntry, len(result.Attempts))
	for i, a := range result.Attempts {
		entries[i] = models.AttemptEntry{
			ModelID: a.ModelID,
			Region:  a.Region,
			Number:  a.Number,
			Outcome: a.Outcome.String(),
		}
	}
	return entries
}
