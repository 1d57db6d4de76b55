// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all pipeline metrics including:
//   - Collection metrics (items collected, rejected, published)
//   - Queue metrics (sent, received, completed, dead-lettered)
//   - LLM metrics (requests, tokens, cost)
//   - Rendering and publishing metrics (builds, deploys, rollbacks)
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via each service's /metrics endpoint.
//
// Example usage:
//
//	import "contentmill/internal/observability/metrics"
//
//	func collect(source string) {
//	    start := time.Now()
//	    // ... pull items from the source ...
//	    metrics.RecordItemCollected(source)
//	    metrics.RecordSourceFetch(source, time.Since(start))
//	}
package metrics
