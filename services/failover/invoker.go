package failover

import (
	"context"
	"errors"

	"github.com/upb/bedrock-failover-router/internal/observability"
	"github.com/upb/bedrock-failover-router/internal/shared"
	"github.com/upb/bedrock-failover-router/services/providers"
	"go.uber.org/zap"
)

// OutcomeKind classifies a single attempt
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFatal
)

// String returns the label used in logs and metrics
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "fatal"
	}
}

// Outcome is the tagged result of one attempt. Response is set only for
// OutcomeSuccess and Err only for OutcomeFatal.
type Outcome struct {
	Kind     OutcomeKind
	Response *providers.ChatResponse
	Err      error
}

var errEmptyResponse = errors.New("inference client returned no response")

// Invoker performs exactly one upstream call and classifies the result
type Invoker struct {
	logger  *zap.Logger
	metrics observability.Metrics
}

// NewInvoker creates a new Invoker
func NewInvoker(logger *zap.Logger, metrics observability.Metrics) *Invoker {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Invoker{logger: logger, metrics: metrics}
}

// Invoke sends conv to modelID through client. Throttling comes back as
// OutcomeRateLimited, never as an error.
func (i *Invoker) Invoke(ctx context.Context, client providers.Client, modelID string, conv Conversation, params GenerationParams) Outcome {
	resp, err := client.Converse(ctx, &providers.ChatRequest{
		ModelID:     modelID,
		Messages:    BuildMessages(conv),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})

	var out Outcome
	switch {
	case err == nil && resp == nil:
		err = errEmptyResponse
		out = Outcome{Kind: OutcomeFatal, Err: err}
	case err == nil:
		out = Outcome{Kind: OutcomeSuccess, Response: resp}
	case providers.IsThrottling(err):
		out = Outcome{Kind: OutcomeRateLimited}
	default:
		out = Outcome{Kind: OutcomeFatal, Err: err}
	}

	i.metrics.RecordAttempt(modelID, client.Region(), out.Kind.String())

	logger := shared.RequestLogger(ctx, i.logger).With(
		zap.String("model_id", modelID),
		zap.String("region", client.Region()),
		zap.String("outcome", out.Kind.String()),
	)
	switch out.Kind {
	case OutcomeSuccess:
		logger.Info("got response", zap.Duration("latency", resp.Latency))
	case OutcomeRateLimited:
		logger.Warn("rate limit hit", zap.Error(err))
	default:
		logger.Error("inference call failed", zap.Error(err))
	}

	return out
}
