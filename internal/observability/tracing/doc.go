// Package tracing provides OpenTelemetry tracing integration.
//
// This package provides distributed tracing for the pipeline using OpenTelemetry.
// Spans are created around queue message handling and long-running stage
// operations (collection cycles, topic processing, site builds).
//
// Features:
//   - Consumer spans for queue message handling
//   - Internal spans for pipeline stages
//   - Correlation ID attached to every span for log joining
//
// Example usage:
//
//	import "contentmill/internal/observability/tracing"
//
//	func handle(ctx context.Context, env *queue.Envelope) {
//	    ctx, span := tracing.StartMessageSpan(ctx,
//	        "content-processing-requests", env.Operation, env.CorrelationID)
//	    defer span.End()
//	    // ... handle message ...
//	}
package tracing
