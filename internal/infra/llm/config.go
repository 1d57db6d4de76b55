package llm

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"contentmill/internal/resilience/retry"
)

// Config holds generation parameters shared by every provider.
// Configuration is loaded from environment variables with fallback to defaults.
type Config struct {
	// Model is the provider model identifier.
	// Loaded from LLM_MODEL; each provider supplies its own default.
	Model string

	// Temperature controls sampling randomness.
	// Loaded from LLM_TEMPERATURE. Valid range: 0.0-2.0. Default: 0.7.
	Temperature float64

	// MaxTokens caps the response length.
	// Loaded from LLM_MAX_TOKENS. Valid range: 256-64000. Default: 4096.
	MaxTokens int

	// MaxRetries overrides the retry policy's attempt count when positive.
	// Loaded from OPENAI_MAX_RETRIES. Valid range: 1-10.
	MaxRetries int

	// Timeout is the maximum duration for a single generation call
	// including retries. Loaded from LLM_TIMEOUT_SECONDS. Default: 120s.
	Timeout time.Duration
}

// LoadConfig loads generation configuration from environment variables.
// Invalid values fall back to defaults with a warning log; a processor
// should start even when an operator fat-fingers one knob.
func LoadConfig(defaultModel string) Config {
	const (
		defaultTemperature = 0.7
		minTemperature     = 0.0
		maxTemperature     = 2.0

		defaultMaxTokens = 4096
		minMaxTokens     = 256
		maxMaxTokens     = 64000

		minMaxRetries = 1
		maxMaxRetries = 10

		defaultTimeoutSeconds = 120
		minTimeoutSeconds     = 5
		maxTimeoutSeconds     = 600
	)

	cfg := Config{
		Model:       defaultModel,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Timeout:     defaultTimeoutSeconds * time.Second,
	}

	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.Model = model
	}

	if envTemp := os.Getenv("LLM_TEMPERATURE"); envTemp != "" {
		parsed, err := strconv.ParseFloat(envTemp, 64)
		if err != nil {
			slog.Warn("Invalid LLM_TEMPERATURE format, using default",
				slog.String("value", envTemp),
				slog.Float64("default", defaultTemperature),
				slog.String("error", err.Error()))
		} else if parsed < minTemperature || parsed > maxTemperature {
			slog.Warn("LLM_TEMPERATURE out of valid range, using default",
				slog.Float64("value", parsed),
				slog.Float64("min", minTemperature),
				slog.Float64("max", maxTemperature),
				slog.Float64("default", defaultTemperature))
		} else {
			cfg.Temperature = parsed
		}
	}

	if envTokens := os.Getenv("LLM_MAX_TOKENS"); envTokens != "" {
		parsed, err := strconv.Atoi(envTokens)
		if err != nil {
			slog.Warn("Invalid LLM_MAX_TOKENS format, using default",
				slog.String("value", envTokens),
				slog.Int("default", defaultMaxTokens),
				slog.String("error", err.Error()))
		} else if parsed < minMaxTokens || parsed > maxMaxTokens {
			slog.Warn("LLM_MAX_TOKENS out of valid range, using default",
				slog.Int("value", parsed),
				slog.Int("min", minMaxTokens),
				slog.Int("max", maxMaxTokens),
				slog.Int("default", defaultMaxTokens))
		} else {
			cfg.MaxTokens = parsed
		}
	}

	if envRetries := os.Getenv("OPENAI_MAX_RETRIES"); envRetries != "" {
		parsed, err := strconv.Atoi(envRetries)
		if err != nil {
			slog.Warn("Invalid OPENAI_MAX_RETRIES format, using retry policy default",
				slog.String("value", envRetries),
				slog.String("error", err.Error()))
		} else if parsed < minMaxRetries || parsed > maxMaxRetries {
			slog.Warn("OPENAI_MAX_RETRIES out of valid range, using retry policy default",
				slog.Int("value", parsed),
				slog.Int("min", minMaxRetries),
				slog.Int("max", maxMaxRetries))
		} else {
			cfg.MaxRetries = parsed
		}
	}

	if envTimeout := os.Getenv("LLM_TIMEOUT_SECONDS"); envTimeout != "" {
		parsed, err := strconv.Atoi(envTimeout)
		if err != nil {
			slog.Warn("Invalid LLM_TIMEOUT_SECONDS format, using default",
				slog.String("value", envTimeout),
				slog.Int("default", defaultTimeoutSeconds),
				slog.String("error", err.Error()))
		} else if parsed < minTimeoutSeconds || parsed > maxTimeoutSeconds {
			slog.Warn("LLM_TIMEOUT_SECONDS out of valid range, using default",
				slog.Int("value", parsed),
				slog.Int("min", minTimeoutSeconds),
				slog.Int("max", maxTimeoutSeconds))
		} else {
			cfg.Timeout = time.Duration(parsed) * time.Second
		}
	}

	return cfg
}

// retryConfig returns the retry policy, honoring a MaxRetries override.
func (c Config) retryConfig() retry.Config {
	rc := retry.LLMAPIConfig()
	if c.MaxRetries > 0 {
		rc.MaxAttempts = c.MaxRetries
	}
	return rc
}
