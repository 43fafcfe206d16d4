package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"json info", "info", "json", zapcore.InfoLevel, false},
		{"console debug", "debug", "console", zapcore.DebugLevel, false},
		{"upper case level", "WARN", "json", zapcore.WarnLevel, false},
		{"empty level defaults to info", "", "", zapcore.InfoLevel, false},
		{"invalid level", "verbose", "json", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordAttempt("model-a", "us-east-1", "rate_limited")
	m.RecordAttempt("model-a", "us-east-1", "rate_limited")
	m.RecordAttempt("model-a", "us-west-2", "success")
	m.RecordRetrySleep("model-a", "us-east-1")
	m.RecordFailover("model-a", ScopeRegion)
	m.RecordDispatch("succeeded", 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("model-a", "us-east-1", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("model-a", "us-west-2", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrySleeps.WithLabelValues("model-a", "us-east-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failovers.WithLabelValues("model-a", ScopeRegion)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("succeeded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dispatchDuration))
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	m := NewPrometheusMetrics()
	m.RecordDispatch("exhausted", time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `router_dispatch_total{status="exhausted"} 1`)
	assert.Contains(t, string(body), "router_dispatch_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestPrometheusMetrics_IndependentRegistries(t *testing.T) {
	a := NewPrometheusMetrics()
	b := NewPrometheusMetrics()

	a.RecordFailover("m", ScopeModel)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.failovers.WithLabelValues("m", ScopeModel)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.failovers.WithLabelValues("m", ScopeModel)))
}

func TestNopMetrics(t *testing.T) {
	var m Metrics = NopMetrics{}
	assert.NotPanics(t, func() {
		m.RecordAttempt("m", "r", "fatal")
		m.RecordRetrySleep("m", "r")
		m.RecordFailover("m", ScopeModel)
		m.RecordDispatch("failed", time.Millisecond)
	})
}
