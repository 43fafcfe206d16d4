// Package failover walks the target ladder (model, then region, then
// attempt) until one call succeeds, a call fails fatally, or every target
// has been rate limited.
package failover

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/bedrock-failover-router/internal/observability"
	"github.com/upb/bedrock-failover-router/internal/shared"
	"github.com/upb/bedrock-failover-router/services/providers"
	"github.com/upb/bedrock-failover-router/services/targets"
	"go.uber.org/zap"
)

// Status is the terminal state of a dispatch
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
)

// ClientSource resolves a region to its shared client. *providers.Pool
// satisfies it.
type ClientSource interface {
	Get(ctx context.Context, region string) (providers.Client, error)
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper. It returns ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempt records one upstream call
type Attempt struct {
	ModelID string
	Region  string
	Number  int
	Outcome OutcomeKind
}

// Result is the outcome of a full traversal
type Result struct {
	Status   Status
	Response *providers.ChatResponse
	ModelID  string
	Region   string
	Attempts []Attempt
	Elapsed  time.Duration
}

// RateLimitedCount returns how many attempts were throttled
func (r *Result) RateLimitedCount() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeRateLimited {
			n++
		}
	}
	return n
}

// FatalError aborts a dispatch. Its message is the cause's message.
type FatalError struct {
	ModelID string
	Region  string
	Attempt int
	Err     error
}

// Error implements the error interface
func (e *FatalError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Describe returns the error with its position on the ladder
func (e *FatalError) Describe() string {
	return fmt.Sprintf("model %s in %s, attempt %d: %v", e.ModelID, e.Region, e.Attempt, e.Err)
}

// Dispatcher runs the failover ladder over a fixed registry
type Dispatcher struct {
	registry *targets.Registry
	clients  ClientSource
	invoker  *Invoker
	sleep    Sleeper
	metrics  observability.Metrics
	logger   *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithSleeper replaces the backoff wait, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		d.sleep = s
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(registry *targets.Registry, clients ClientSource, invoker *Invoker, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		clients:  clients,
		invoker:  invoker,
		sleep:    Sleep,
		metrics:  observability.NopMetrics{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch tries every target in registry order. It returns a Result with
// StatusSucceeded or StatusExhausted and a nil error, or a Result with
// StatusFailed and a *FatalError. The Result is never nil and always
// carries the attempt trail.
func (d *Dispatcher) Dispatch(ctx context.Context, conv Conversation, params GenerationParams) (*Result, error) {
	startTime := time.Now()
	result := &Result{}
	logger := shared.RequestLogger(ctx, d.logger)

	defer func() {
		result.Elapsed = time.Since(startTime)
		d.metrics.RecordDispatch(string(result.Status), result.Elapsed)
	}()

	fail := func(t targets.Target, region string, attempt int, err error) (*Result, error) {
		result.Status = StatusFailed
		result.ModelID = t.ModelID
		result.Region = region
		fatal := &FatalError{ModelID: t.ModelID, Region: region, Attempt: attempt, Err: err}
		logger.Error("dispatch aborted: "+fatal.Describe(),
			zap.String("model_id", t.ModelID),
			zap.String("region", region),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return result, fatal
	}

	ladder := d.registry.Targets()
	for ti, t := range ladder {
		if len(t.Regions) == 0 {
			logger.Warn("skipping model without regions", zap.String("model_id", t.ModelID))
			continue
		}

		for ri, region := range t.Regions {
			client, err := d.clients.Get(ctx, region)
			if err != nil {
				return fail(t, region, 0, err)
			}

			for attempt := 1; attempt <= t.MaxRetries; attempt++ {
				if err := ctx.Err(); err != nil {
					return fail(t, region, attempt, err)
				}

				out := d.invoker.Invoke(ctx, client, t.ModelID, conv, params)
				result.Attempts = append(result.Attempts, Attempt{
					ModelID: t.ModelID,
					Region:  region,
					Number:  attempt,
					Outcome: out.Kind,
				})

				switch out.Kind {
				case OutcomeSuccess:
					result.Status = StatusSucceeded
					result.Response = out.Response
					result.ModelID = t.ModelID
					result.Region = region
					return result, nil
				case OutcomeFatal:
					return fail(t, region, attempt, out.Err)
				}

				if attempt < t.MaxRetries {
					logger.Warn("retrying",
						zap.String("model", t.Name),
						zap.String("region", region),
						zap.Int("retry", attempt),
						zap.Int("max_retries", t.MaxRetries),
						zap.Duration("delay", t.RetryDelay))
					d.metrics.RecordRetrySleep(t.ModelID, region)
					if err := d.sleep(ctx, t.RetryDelay); err != nil {
						return fail(t, region, attempt, err)
					}
				}
			}

			if ri < len(t.Regions)-1 {
				logger.Warn("switching to next region",
					zap.String("model_id", t.ModelID),
					zap.String("from", region),
					zap.String("to", t.Regions[ri+1]))
				d.metrics.RecordFailover(t.ModelID, observability.ScopeRegion)
			}
		}

		if ti < len(ladder)-1 {
			logger.Warn("switching to next model",
				zap.String("from", t.ModelID),
				zap.String("to", ladder[ti+1].ModelID))
			d.metrics.RecordFailover(t.ModelID, observability.ScopeModel)
		}
	}

	result.Status = StatusExhausted
	logger.Warn("rate limit hit for all models", zap.Int("attempts", len(result.Attempts)))
	return result, nil
}
