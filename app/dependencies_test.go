package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/bedrock-failover-router/config"
	"github.com/upb/bedrock-failover-router/repositories/postgres"
	"github.com/upb/bedrock-failover-router/services/inference"
	"github.com/upb/bedrock-failover-router/services/providers"
	"go.uber.org/zap/zaptest"
)

const inlineTargets = `{"models":[
	{"model_id":"anthropic.claude-v2","name":"Claude","regions":["us-east-1","us-west-2"],"max_retries":2,"retry_delay":0},
	{"model_id":"meta.llama3","regions":["eu-west-1"]}
]}`

type stubClient struct {
	region string
}

func (c *stubClient) Region() string { return c.region }

func (c *stubClient) Converse(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{
		Message:    providers.TextMessage(providers.RoleAssistant, "hello from "+c.region),
		StopReason: "end_turn",
	}, nil
}

type stubFactory struct {
	mu      sync.Mutex
	regions []string
	failOn  string
}

func (f *stubFactory) build(ctx context.Context, region string) (providers.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if region == f.failOn {
		return nil, errors.New("no credentials")
	}
	f.regions = append(f.regions, region)
	return &stubClient{region: region}, nil
}

func (f *stubFactory) built() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.regions...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  time.Minute,
			AllowedOrigins:  []string{"*"},
		},
		Bedrock: config.BedrockConfig{
			SDKMaxAttempts: 1,
			EagerClients:   true,
		},
		Targets: config.TargetsConfig{
			Inline: inlineTargets,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
		Audit: config.AuditConfig{
			BufferSize:  10,
			WorkerCount: 1,
			StopTimeout: time.Second,
		},
	}
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - model_id: anthropic.claude-v2
    regions: [us-east-1]
`), 0o600))

	tests := []struct {
		name       string
		cfg        config.TargetsConfig
		wantModels int
		wantErr    bool
	}{
		{name: "inline json", cfg: config.TargetsConfig{Inline: inlineTargets}, wantModels: 2},
		{name: "file", cfg: config.TargetsConfig{File: path}, wantModels: 1},
		{name: "inline wins over file", cfg: config.TargetsConfig{Inline: inlineTargets, File: path}, wantModels: 2},
		{name: "blank inline falls back to file", cfg: config.TargetsConfig{Inline: "  \n\t", File: path}, wantModels: 1},
		{name: "blank inline and no file", cfg: config.TargetsConfig{Inline: "   "}, wantErr: true},
		{name: "nothing configured", cfg: config.TargetsConfig{}, wantErr: true},
		{name: "malformed inline", cfg: config.TargetsConfig{Inline: `{"models":`}, wantErr: true},
		{name: "missing file", cfg: config.TargetsConfig{File: filepath.Join(dir, "absent.json")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := LoadTargets(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModels, registry.Len())
		})
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		ctx := context.Background()
		factory := &stubFactory{}

		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t), WithClientFactory(factory.build))
		require.NoError(t, err)

		assert.Equal(t, 2, deps.Registry.Len())
		assert.ElementsMatch(t, []string{"us-east-1", "us-west-2", "eu-west-1"}, factory.built())
		assert.Equal(t, 3, deps.Clients.Len())
		assert.NotNil(t, deps.Metrics)
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.Dispatches)
		assert.Nil(t, deps.Audit)
		assert.NotNil(t, deps.InferenceHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.TargetsHandler)
		assert.NotNil(t, deps.DispatchHandler)

		resp, err := deps.Inference.Invoke(ctx, &inference.InvokeRequest{Contents: []string{"hi"}})
		require.NoError(t, err)
		assert.Equal(t, "hello from us-east-1", resp.Message.Content[0].Text)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("lazy clients", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Bedrock.EagerClients = false
		factory := &stubFactory{}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t), WithClientFactory(factory.build))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Empty(t, factory.built())
		assert.Equal(t, 0, deps.Clients.Len())
	})

	t.Run("metrics disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t), WithClientFactory((&stubFactory{}).build))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Nil(t, deps.Metrics)
	})

	t.Run("eager client failure aborts startup", func(t *testing.T) {
		factory := &stubFactory{failOn: "us-west-2"}

		deps, err := NewDependencies(context.Background(), testConfig(t), zaptest.NewLogger(t), WithClientFactory(factory.build))
		require.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize inference clients")
	})

	t.Run("invalid targets", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Targets.Inline = `{"models":[]}`

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t), WithClientFactory((&stubFactory{}).build))
		require.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to load targets")
	})
}

func TestNewDependencies_WithDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO dispatch_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	deps, err := NewDependencies(ctx, testConfig(t), logger,
		WithClientFactory((&stubFactory{}).build),
		WithDB(postgres.Wrap(sqlDB, logger)))
	require.NoError(t, err)

	require.NotNil(t, deps.Dispatches)
	require.NotNil(t, deps.Audit)

	_, err = deps.Inference.Invoke(ctx, &inference.InvokeRequest{Contents: []string{"hi"}})
	require.NoError(t, err)

	// Close drains the dispatch log before closing the database
	require.NoError(t, deps.Close(ctx))
	assert.Equal(t, uint64(1), deps.Audit.GetStats().Written)
	assert.NoError(t, mock.ExpectationsWereMet())
}
