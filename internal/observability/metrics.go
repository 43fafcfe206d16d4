package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failover scopes
const (
	ScopeRegion = "region"
	ScopeModel  = "model"
)

// Metrics records failover activity.
type Metrics interface {
	RecordAttempt(modelID, region, outcome string)
	RecordRetrySleep(modelID, region string)
	RecordFailover(modelID, scope string)
	RecordDispatch(status string, elapsed time.Duration)
}

// PrometheusMetrics implements Metrics on a private registry.
type PrometheusMetrics struct {
	registry         *prometheus.Registry
	attempts         *prometheus.CounterVec
	retrySleeps      *prometheus.CounterVec
	failovers        *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the router collectors plus the Go and
// process collectors on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_attempts_total",
				Help: "Single upstream attempts by classified outcome",
			},
			[]string{"model_id", "region", "outcome"},
		),
		retrySleeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_retry_sleeps_total",
				Help: "Backoff sleeps taken before retrying the same region",
			},
			[]string{"model_id", "region"},
		),
		failovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_failovers_total",
				Help: "Advances past an exhausted region or model",
			},
			[]string{"model_id", "scope"},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_dispatch_total",
				Help: "Completed dispatches by terminal status",
			},
			[]string{"status"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_dispatch_duration_seconds",
				Help:    "Wall time of a full dispatch including backoff",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
	}
}

// RecordAttempt counts one upstream call.
func (m *PrometheusMetrics) RecordAttempt(modelID, region, outcome string) {
	m.attempts.WithLabelValues(modelID, region, outcome).Inc()
}

// RecordRetrySleep counts one backoff sleep.
func (m *PrometheusMetrics) RecordRetrySleep(modelID, region string) {
	m.retrySleeps.WithLabelValues(modelID, region).Inc()
}

// RecordFailover counts moving on from an exhausted region or model.
func (m *PrometheusMetrics) RecordFailover(modelID, scope string) {
	m.failovers.WithLabelValues(modelID, scope).Inc()
}

// RecordDispatch counts a finished dispatch and observes its duration.
func (m *PrometheusMetrics) RecordDispatch(status string, elapsed time.Duration) {
	m.dispatches.WithLabelValues(status).Inc()
	m.dispatchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for scraping and tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(string, string, string) {}
func (NopMetrics) RecordRetrySleep(string, string)      {}
func (NopMetrics) RecordFailover(string, string)        {}
func (NopMetrics) RecordDispatch(string, time.Duration) {}
