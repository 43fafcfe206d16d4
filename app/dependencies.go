package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/bedrock-failover-router/config"
	"github.com/upb/bedrock-failover-router/handlers"
	"github.com/upb/bedrock-failover-router/internal/observability"
	"github.com/upb/bedrock-failover-router/repositories"
	"github.com/upb/bedrock-failover-router/repositories/postgres"
	"github.com/upb/bedrock-failover-router/services/audit"
	"github.com/upb/bedrock-failover-router/services/failover"
	"github.com/upb/bedrock-failover-router/services/inference"
	"github.com/upb/bedrock-failover-router/services/providers"
	"github.com/upb/bedrock-failover-router/services/providers/bedrock"
	"github.com/upb/bedrock-failover-router/services/targets"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.PrometheusMetrics

	// Failover ladder
	Registry   *targets.Registry
	Clients    *providers.Pool
	Dispatcher *failover.Dispatcher

	// Dispatch log, nil when no database is configured
	Dispatches repositories.DispatchRepository
	Audit      *audit.AuditService

	Inference *inference.InferenceService

	// Handlers
	InferenceHandler *handlers.InferenceHandler
	HealthHandler    *handlers.HealthHandler
	TargetsHandler   *handlers.TargetsHandler
	DispatchHandler  *handlers.DispatchHandler

	clientFactory providers.ClientFactory
	sleeper       failover.Sleeper
}

// Option customises NewDependencies
type Option func(*Dependencies)

// WithClientFactory replaces the Bedrock client factory
func WithClientFactory(f providers.ClientFactory) Option {
	return func(d *Dependencies) {
		d.clientFactory = f
	}
}

// WithDB uses an existing connection instead of opening one from config
func WithDB(db *postgres.DB) Option {
	return func(d *Dependencies) {
		d.DB = db
	}
}

// WithSleeper replaces the dispatcher's retry sleep
func WithSleeper(s failover.Sleeper) Option {
	return func(d *Dependencies) {
		d.sleeper = s
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}

	registry, err := LoadTargets(cfg.Targets)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}
	deps.Registry = registry
	logger.Info("targets loaded",
		zap.Int("models", registry.Len()),
		zap.Strings("regions", registry.Regions()),
		zap.Int("max_attempts", registry.MaxAttempts()))

	if err := deps.initClients(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize inference clients: %w", err)
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		deps.closeQuietly(ctx)
		return nil, fmt.Errorf("failed to start dispatch log: %w", err)
	}

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// LoadTargets builds the registry from inline JSON when set, otherwise
// from the configured file.
func LoadTargets(cfg config.TargetsConfig) (*targets.Registry, error) {
	inline := strings.TrimSpace(cfg.Inline)
	file := strings.TrimSpace(cfg.File)
	switch {
	case inline != "":
		return targets.LoadBytes([]byte(inline), targets.FormatJSON)
	case file != "":
		return targets.LoadFile(file)
	default:
		return nil, errors.New("no target configuration: set MODEL_CONFIG or MODEL_CONFIG_FILE")
	}
}

// initClients builds the regional client pool, warming it when configured
func (d *Dependencies) initClients(ctx context.Context, cfg *config.Config) error {
	factory := d.clientFactory
	if factory == nil {
		f, err := bedrock.NewClientFactory(ctx, bedrock.Config{
			SDKMaxAttempts: cfg.Bedrock.SDKMaxAttempts,
			EndpointURL:    cfg.Bedrock.EndpointURL,
		}, d.Logger)
		if err != nil {
			return err
		}
		factory = f
	}

	d.Clients = providers.NewPool(factory, d.Logger)

	if cfg.Bedrock.EagerClients {
		if err := d.Clients.Warm(ctx, d.Registry.Regions()); err != nil {
			return err
		}
	}
	return nil
}

// initDatabase opens the dispatch log database when one is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if d.DB == nil {
		if !cfg.DatabaseEnabled() {
			d.Logger.Info("no database configured, dispatch log disabled")
			return nil
		}

		db, err := postgres.NewDB(*cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		d.DB = db

		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
	}

	if cfg.Database == nil || cfg.Database.InitSchema {
		if err := d.DB.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	d.Dispatches = postgres.NewDispatchRepository(d.DB, d.Logger)
	return nil
}

// initAudit starts the asynchronous dispatch log writer
func (d *Dependencies) initAudit(cfg *config.Config) error {
	if d.Dispatches == nil {
		return nil
	}

	auditCfg := audit.DefaultConfig()
	if cfg.Audit.BufferSize > 0 {
		auditCfg.BufferSize = cfg.Audit.BufferSize
	}
	if cfg.Audit.WorkerCount > 0 {
		auditCfg.WorkerCount = cfg.Audit.WorkerCount
	}

	d.Audit = audit.NewAuditService(d.Dispatches, d.Logger, auditCfg)
	return d.Audit.Start()
}

// initServices wires the dispatcher, inference service and handlers
func (d *Dependencies) initServices(cfg *config.Config) {
	var metrics observability.Metrics = observability.NopMetrics{}
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewPrometheusMetrics()
		metrics = d.Metrics
	}

	dispatcherOpts := []failover.Option{failover.WithMetrics(metrics)}
	if d.sleeper != nil {
		dispatcherOpts = append(dispatcherOpts, failover.WithSleeper(d.sleeper))
	}

	d.Dispatcher = failover.NewDispatcher(
		d.Registry,
		d.Clients,
		failover.NewInvoker(d.Logger, metrics),
		d.Logger,
		dispatcherOpts...,
	)

	var recorder inference.Recorder
	if d.Audit != nil {
		recorder = d.Audit
	}
	d.Inference = inference.NewInferenceService(d.Dispatcher, recorder, d.Logger)

	var dbCheck handlers.DatabaseChecker
	if d.DB != nil {
		dbCheck = d.DB
	}

	d.InferenceHandler = handlers.NewInferenceHandler(d.Inference, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(dbCheck, d.Registry, d.Logger)
	if d.Audit != nil {
		d.HealthHandler.WithDispatchLog(d.Audit)
	}
	d.TargetsHandler = handlers.NewTargetsHandler(d.Registry, d.Logger)
	d.DispatchHandler = handlers.NewDispatchHandler(d.Dispatches, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain the dispatch log before the database goes away
	if d.Audit != nil {
		timeout := d.Config.Audit.StopTimeout
		if timeout <= 0 {
			timeout = audit.DefaultConfig().WriteTimeout
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop dispatch log: %w", err))
		}
	}

	if d.Clients != nil {
		if err := d.Clients.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close inference clients: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

func (d *Dependencies) closeQuietly(ctx context.Context) {
	if err := d.Close(ctx); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}
