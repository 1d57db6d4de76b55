package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartMessageSpan starts a consumer span for handling a queue message.
// The span is named "<queue> <operation>" and carries the message's
// correlation ID so traces can be joined with log entries.
//
// The caller must end the returned span:
//
//	ctx, span := tracing.StartMessageSpan(ctx, "content-processing-requests",
//	    "process_topic", env.CorrelationID)
//	defer span.End()
func StartMessageSpan(ctx context.Context, queue, operation, correlationID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, queue+" "+operation,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String("messaging.destination", queue),
		attribute.String("messaging.operation", operation),
		attribute.String("correlation_id", correlationID),
	)
	return ctx, span
}

// StartStageSpan starts an internal span for one pipeline stage of work,
// such as a collection cycle or a site build.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, stage,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, span
}

// MarkSpanError tags a span as failed and records the error message.
// Spans without an error attribute are considered successful.
func MarkSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String("error.message", err.Error()),
	)
}
