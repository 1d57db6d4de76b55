package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"contentmill/internal/observability/metrics"
	"contentmill/internal/resilience/circuitbreaker"
	"contentmill/internal/resilience/retry"
	"contentmill/internal/utils/text"
)

// DefaultAnthropicModel is used when LLM_MODEL is not set.
const DefaultAnthropicModel = string(anthropic.ModelClaudeSonnet4_5_20250929)

// Anthropic implements Provider using the Anthropic messages API.
// It includes circuit breaker and retry logic for improved reliability.
type Anthropic struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         Config
}

// NewAnthropic creates a new Anthropic provider with the given API key.
// ANTHROPIC_BASE_URL redirects calls to a proxy or test server.
func NewAnthropic(apiKey string, cfg Config) *Anthropic {
	// The SDK retries 429/5xx on its own; zero it out so retries are
	// governed solely by the shared retry policy.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := os.Getenv("ANTHROPIC_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	slog.Info("Initialized Anthropic provider",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens),
		slog.Float64("temperature", cfg.Temperature))

	return &Anthropic{
		client:         anthropic.NewClient(opts...),
		circuitBreaker: circuitbreaker.New(circuitbreaker.AnthropicAPIConfig()),
		retryConfig:    cfg.retryConfig(),
		config:         cfg,
	}
}

// Name identifies the provider in logs, metrics and attempt records.
func (a *Anthropic) Name() string { return "anthropic" }

// Generate produces text for the request through circuit breaker and
// retry logic. Transient failures (timeouts, 5xx, 429) are retried;
// other 4xx responses fail immediately.
func (a *Anthropic) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("anthropic generate: empty prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var result *Response

	retryErr := retry.WithBackoff(ctx, a.retryConfig, func() error {
		cbResult, err := a.circuitBreaker.Execute(func() (interface{}, error) {
			return a.doGenerate(ctx, req)
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("anthropic api circuit breaker open, request rejected",
					slog.String("service", "anthropic-api"),
					slog.String("state", a.circuitBreaker.State().String()))
				return fmt.Errorf("anthropic api unavailable: circuit breaker open")
			}
			return err
		}

		result = cbResult.(*Response)
		return nil
	})

	if retryErr != nil {
		return nil, fmt.Errorf("anthropic generate failed after retries: %w", retryErr)
	}

	return result, nil
}

// doGenerate performs the actual API call without retry or circuit breaker.
func (a *Anthropic) doGenerate(ctx context.Context, req *Request) (*Response, error) {
	model := a.config.Model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := a.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	prompt, truncated := truncatePrompt(req.Prompt)
	if truncated {
		slog.Warn("prompt truncated for anthropic api",
			slog.Int("original_runes", text.CountRunes(req.Prompt)),
			slog.Int("max_runes", maxPromptRunes))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(a.config.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	slog.InfoContext(ctx, "Starting generation",
		slog.String("provider", "anthropic"),
		slog.String("model", model),
		slog.Int("prompt_runes", text.CountRunes(prompt)))

	start := time.Now()

	message, err := a.client.Messages.New(ctx, params)

	duration := time.Since(start)

	if err != nil {
		metrics.RecordLLMRequest("anthropic", model, duration, 0, 0, 0, false)
		slog.ErrorContext(ctx, "Generation failed",
			slog.String("provider", "anthropic"),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, classifyAnthropicError(err)
	}

	if len(message.Content) == 0 {
		metrics.RecordLLMRequest("anthropic", model, duration, 0, 0, 0, false)
		slog.ErrorContext(ctx, "Anthropic API returned empty response",
			slog.Duration("duration", duration))
		return nil, fmt.Errorf("anthropic api returned empty response")
	}

	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		metrics.RecordLLMRequest("anthropic", model, duration, 0, 0, 0, false)
		slog.ErrorContext(ctx, "Anthropic API returned unexpected response type",
			slog.Duration("duration", duration))
		return nil, fmt.Errorf("anthropic api returned unexpected response type")
	}

	out := &Response{
		Text:         textBlock.Text,
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	if out.Model == "" {
		out.Model = model
	}

	cost, _ := Cost(out.Model, out.InputTokens, out.OutputTokens)
	metrics.RecordLLMRequest("anthropic", out.Model, duration, out.InputTokens, out.OutputTokens, cost, true)

	slog.InfoContext(ctx, "Generation completed",
		slog.String("provider", "anthropic"),
		slog.String("model", out.Model),
		slog.Int("input_tokens", out.InputTokens),
		slog.Int("output_tokens", out.OutputTokens),
		slog.Duration("duration", duration))

	return out, nil
}

// classifyAnthropicError converts SDK errors into retry.HTTPError so the
// shared retry policy can tell transient failures from permanent ones.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &retry.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    fmt.Sprintf("anthropic api: %v", err),
		}
	}

	return fmt.Errorf("anthropic api error: %w", err)
}
