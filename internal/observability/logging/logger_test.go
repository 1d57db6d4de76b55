package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLogger tests the creation of a new JSON logger
func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "default log level (info)", logLevel: ""},
		{name: "debug log level", logLevel: "debug"},
		{name: "invalid log level defaults to info", logLevel: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.logLevel != "" {
				t.Setenv("LOG_LEVEL", tt.logLevel)
			}

			logger := NewLogger()

			assert.NotNil(t, logger, "logger should not be nil")
		})
	}
}

// TestNewTextLogger tests the creation of a new text logger
func TestNewTextLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger := NewTextLogger()
	assert.NotNil(t, logger, "logger should not be nil")
}

// TestWithCorrelationID tests tagging a logger with a pipeline correlation ID
func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name          string
		correlationID string
	}{
		{
			name:          "collection and topic id pair",
			correlationID: "collection_1708300800_topic_a1b2c3d4e5f6",
		},
		{
			name:          "uuid correlation id",
			correlationID: "550e8400-e29b-41d4-a716-446655440000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var buf bytes.Buffer
			handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
			baseLogger := slog.New(handler)

			// Act
			logger := WithCorrelationID(baseLogger, tt.correlationID)
			logger.Info("test message")

			// Assert
			var logEntry map[string]interface{}
			err := json.Unmarshal(buf.Bytes(), &logEntry)
			require.NoError(t, err, "output should be valid JSON")
			assert.Equal(t, tt.correlationID, logEntry["correlation_id"], "correlation_id should match")
		})
	}
}

// TestWithCorrelationID_Empty tests behavior with an empty correlation ID
func TestWithCorrelationID_Empty(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	baseLogger := slog.New(handler)

	logger := WithCorrelationID(baseLogger, "")
	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "message should be logged")
	assert.NotContains(t, output, "correlation_id", "should not contain correlation_id field")
}

// TestWithFields tests adding structured fields to logger
func TestWithFields(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{
			name: "single string field",
			fields: map[string]interface{}{
				"source": "reddit",
			},
		},
		{
			name: "multiple mixed fields",
			fields: map[string]interface{}{
				"source":    "mastodon",
				"operation": "collect_content",
				"items":     3,
				"strict":    true,
			},
		},
		{
			name: "numeric fields",
			fields: map[string]interface{}{
				"collected": 42,
				"cost_usd":  0.004213,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
			baseLogger := slog.New(handler)

			logger := WithFields(baseLogger, tt.fields)
			logger.Info("test message")

			var logEntry map[string]interface{}
			err := json.Unmarshal(buf.Bytes(), &logEntry)
			require.NoError(t, err, "output should be valid JSON")

			for key, expectedValue := range tt.fields {
				assert.Contains(t, logEntry, key, "output should contain field: %s", key)
				switch v := expectedValue.(type) {
				case int:
					assert.Equal(t, float64(v), logEntry[key], "field %s should match", key)
				default:
					assert.Equal(t, v, logEntry[key], "field %s should match", key)
				}
			}
		})
	}
}

// TestFromContext tests retrieving logger from context
func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		setupCtx func() context.Context
		check    func(*testing.T, *slog.Logger)
	}{
		{
			name: "with logger in context",
			setupCtx: func() context.Context {
				var buf bytes.Buffer
				handler := slog.NewJSONHandler(&buf, nil)
				logger := slog.New(handler)
				return WithLogger(context.Background(), logger)
			},
			check: func(t *testing.T, logger *slog.Logger) {
				assert.NotNil(t, logger, "should return logger from context")
			},
		},
		{
			name: "without logger in context",
			setupCtx: func() context.Context {
				return context.Background()
			},
			check: func(t *testing.T, logger *slog.Logger) {
				assert.Equal(t, slog.Default(), logger, "should be default logger")
			},
		},
		{
			name: "with invalid value in context",
			setupCtx: func() context.Context {
				return context.WithValue(context.Background(), loggerContextKey, "not a logger")
			},
			check: func(t *testing.T, logger *slog.Logger) {
				assert.Equal(t, slog.Default(), logger, "should be default logger")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupCtx()
			logger := FromContext(ctx)
			tt.check(t, logger)
		})
	}
}

// TestWithLogger tests adding logger to context
func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(handler)

	newCtx := WithLogger(context.Background(), logger)

	retrievedLogger := FromContext(newCtx)
	retrievedLogger.Info("test message")
	assert.Contains(t, buf.String(), "test message", "should use the same logger")
}

// TestLogger_JSONStructure tests that log output has proper JSON structure
func TestLogger_JSONStructure(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	logger.Info("test message",
		"topic_id", "topic_a1b2c3d4e5f6",
		"operation", "process_topic",
		"tokens", 1532,
	)

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err, "output should be valid JSON")

	assert.Equal(t, "test message", logEntry["msg"], "should have correct message")
	assert.Equal(t, "INFO", logEntry["level"], "should have correct level")
	assert.NotEmpty(t, logEntry["time"], "should have timestamp")
	assert.Equal(t, "topic_a1b2c3d4e5f6", logEntry["topic_id"])
	assert.Equal(t, float64(1532), logEntry["tokens"])
}

// TestLogger_MultipleLogEntries tests logging multiple entries
func TestLogger_MultipleLogEntries(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)

	logger.Info("first message")
	logger.Warn("second message")
	logger.Error("third message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 3, len(lines), "should have 3 log entries")

	for i, line := range lines {
		var logEntry map[string]interface{}
		err := json.Unmarshal([]byte(line), &logEntry)
		require.NoError(t, err, "line %d should be valid JSON", i+1)
	}
}

// BenchmarkLogger_WithFields benchmarks logging with fields
func BenchmarkLogger_WithFields(b *testing.B) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	baseLogger := slog.New(handler)

	fields := map[string]interface{}{
		"source":    "reddit",
		"operation": "collect_content",
		"items":     100,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger := WithFields(baseLogger, fields)
		logger.Info("benchmark message")
	}
}
