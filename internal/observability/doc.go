// Package observability provides production-grade observability infrastructure
// including structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Message tracing across pipeline stage boundaries
//   - Structured logging with correlation ID propagation
//   - Prometheus metrics for monitoring
//   - SLO tracking for pipeline health
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry tracing integration
//   - slo: Service level objective gauges
//
// Example usage:
//
//	import (
//	    "contentmill/internal/observability/logging"
//	    "contentmill/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("service started")
//
//	    metrics.RecordItemCollected("reddit")
//	}
package observability
