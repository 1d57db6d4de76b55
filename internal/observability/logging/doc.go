// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the pipeline services.
//
// Key features:
//   - JSON and text output formats
//   - Correlation ID propagation across pipeline stages
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "contentmill/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("service started", slog.String("service", "collector"))
//	}
//
//	func handleMessage(ctx context.Context, corrID string) {
//	    logger := logging.WithCorrelationID(slog.Default(), corrID)
//	    logger.Info("processing message")
//	}
package logging
