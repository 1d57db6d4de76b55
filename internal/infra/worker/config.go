package worker

import (
	"fmt"
	"log/slog"
	"time"

	"contentmill/internal/pkg/config"
)

// Config holds the queue-consumer runtime settings shared by every pipeline
// worker binary (collector, processor, renderer, publisher).
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have defaults and validation rules so a worker can start
// safely even with invalid or missing configuration.
type Config struct {
	// PollInterval is how long a worker sleeps after finding its queue
	// empty. Actual sleeps are jittered by PollJitter so identical workers
	// do not poll in lockstep.
	// Default: 5s
	PollInterval time.Duration

	// PollJitter is the half-width of the poll interval jitter.
	// Zero disables jitter. Must be smaller than PollInterval.
	// Default: 1s
	PollJitter time.Duration

	// BatchSize is the maximum number of messages claimed per receive.
	// Range: 1-32
	// Default: 5
	BatchSize int

	// VisibilityTimeout is how long a claimed message stays invisible to
	// other consumers. It must exceed the longest expected handler run
	// (an LLM call for the processor) plus safety margin, or in-flight
	// work gets redelivered mid-handling.
	// Default: 10 minutes
	VisibilityTimeout time.Duration

	// HandleTimeout bounds one handler invocation. Must stay below
	// VisibilityTimeout so a slow handler times out before its message
	// becomes visible again.
	// Default: 5 minutes
	HandleTimeout time.Duration

	// MaxDeliveries is the delivery count past which a message is
	// dead-lettered without invoking the handler. Messages that failed
	// this many times fail deterministically.
	// Range: 1-100
	// Default: 5
	MaxDeliveries int

	// HealthPort is the port for the liveness/readiness HTTP server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int

	// MetricsPort is the port for the Prometheus metrics HTTP server.
	// Range: 1024-65535
	// Default: 9090
	MetricsPort int
}

// DefaultConfig returns a Config with production defaults: a 5s poll with
// 1s jitter keeps queue latency low without hammering the backend, and a
// 10m visibility window covers the slowest LLM topic with margin.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		PollJitter:        time.Second,
		BatchSize:         5,
		VisibilityTimeout: 10 * time.Minute,
		HandleTimeout:     5 * time.Minute,
		MaxDeliveries:     5,
		HealthPort:        9091,
		MetricsPort:       9090,
	}
}

// Validate checks the configuration. All violations are collected and
// returned together so an operator sees every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := config.ValidatePositiveDuration(c.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("poll interval: %w", err))
	}
	if c.PollJitter < 0 {
		errs = append(errs, fmt.Errorf("poll jitter: must not be negative"))
	}
	if c.PollJitter >= c.PollInterval && c.PollInterval > 0 {
		errs = append(errs, fmt.Errorf("poll jitter: must be smaller than the poll interval"))
	}
	if err := config.ValidateIntRange(c.BatchSize, 1, 32); err != nil {
		errs = append(errs, fmt.Errorf("batch size: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.VisibilityTimeout); err != nil {
		errs = append(errs, fmt.Errorf("visibility timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.HandleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("handle timeout: %w", err))
	}
	if c.HandleTimeout >= c.VisibilityTimeout && c.VisibilityTimeout > 0 {
		errs = append(errs, fmt.Errorf("handle timeout: must be smaller than the visibility timeout"))
	}
	if err := config.ValidateIntRange(c.MaxDeliveries, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("max deliveries: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the runtime configuration from the environment
// with fail-open fallbacks: every invalid value is replaced by its default,
// logged, and counted, and the function never returns an error. A worker
// with a typo in one variable still starts.
//
// Environment variables:
//   - WORKER_POLL_INTERVAL: duration, e.g. "5s" (1s-5m)
//   - WORKER_POLL_JITTER: duration, e.g. "1s" (0-1m)
//   - WORKER_BATCH_SIZE: integer 1-32
//   - WORKER_VISIBILITY_TIMEOUT: duration, e.g. "10m" (30s-2h)
//   - WORKER_HANDLE_TIMEOUT: duration, e.g. "5m" (1s-1h)
//   - WORKER_MAX_DELIVERIES: integer 1-100
//   - WORKER_HEALTH_PORT: integer 1024-65535
//   - WORKER_METRICS_PORT: integer 1024-65535
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*Config, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	load := func(field string, result config.ConfigLoadResult) config.ConfigLoadResult {
		if result.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field, "default")
			for _, warning := range result.Warnings {
				logger.Warn("configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
		return result
	}

	result := load("poll_interval", config.LoadEnvDuration("WORKER_POLL_INTERVAL", cfg.PollInterval, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 5*time.Minute)
	}))
	cfg.PollInterval = result.Value.(time.Duration)

	result = load("poll_jitter", config.LoadEnvDuration("WORKER_POLL_JITTER", cfg.PollJitter, func(d time.Duration) error {
		return config.ValidateDuration(d, 0, time.Minute)
	}))
	cfg.PollJitter = result.Value.(time.Duration)

	result = load("batch_size", config.LoadEnvInt("WORKER_BATCH_SIZE", cfg.BatchSize, func(v int) error {
		return config.ValidateIntRange(v, 1, 32)
	}))
	cfg.BatchSize = result.Value.(int)

	result = load("visibility_timeout", config.LoadEnvDuration("WORKER_VISIBILITY_TIMEOUT", cfg.VisibilityTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 30*time.Second, 2*time.Hour)
	}))
	cfg.VisibilityTimeout = result.Value.(time.Duration)

	result = load("handle_timeout", config.LoadEnvDuration("WORKER_HANDLE_TIMEOUT", cfg.HandleTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, time.Hour)
	}))
	cfg.HandleTimeout = result.Value.(time.Duration)

	result = load("max_deliveries", config.LoadEnvInt("WORKER_MAX_DELIVERIES", cfg.MaxDeliveries, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	}))
	cfg.MaxDeliveries = result.Value.(int)

	result = load("health_port", config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	}))
	cfg.HealthPort = result.Value.(int)

	result = load("metrics_port", config.LoadEnvInt("WORKER_METRICS_PORT", cfg.MetricsPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	}))
	cfg.MetricsPort = result.Value.(int)

	// Cross-field rules cannot fail open per field; degrade to defaults.
	if cfg.PollJitter >= cfg.PollInterval {
		logger.Warn("configuration fallback applied",
			slog.String("field", "poll_jitter"),
			slog.String("warning", "jitter must be smaller than the poll interval, using default"))
		fallbackApplied = true
		metrics.RecordValidationError("poll_jitter")
		metrics.RecordFallback("poll_jitter", "default")
		cfg.PollJitter = 0
	}
	if cfg.HandleTimeout >= cfg.VisibilityTimeout {
		logger.Warn("configuration fallback applied",
			slog.String("field", "handle_timeout"),
			slog.String("warning", "handle timeout must be smaller than the visibility timeout, using defaults"))
		fallbackApplied = true
		metrics.RecordValidationError("handle_timeout")
		metrics.RecordFallback("handle_timeout", "default")
		cfg.HandleTimeout = DefaultConfig().HandleTimeout
		cfg.VisibilityTimeout = DefaultConfig().VisibilityTimeout
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
