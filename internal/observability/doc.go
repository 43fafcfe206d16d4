// Package observability builds the process logger and the router metrics.
//
// Logging is zap-based. Metrics are Prometheus counters and histograms on a
// private registry so tests and multiple routers never collide on the
// default registerer.
package observability
