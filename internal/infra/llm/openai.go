package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"contentmill/internal/observability/metrics"
	"contentmill/internal/resilience/circuitbreaker"
	"contentmill/internal/resilience/retry"
	"contentmill/internal/utils/text"
)

// DefaultOpenAIModel is used when LLM_MODEL is not set.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI implements Provider using OpenAI's chat completions API.
// It includes circuit breaker and retry logic for improved reliability.
type OpenAI struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         Config
}

// NewOpenAI creates a new OpenAI provider with the given API key.
// OPENAI_BASE_URL redirects calls to a compatible endpoint (Azure,
// proxies, test servers).
func NewOpenAI(apiKey string, cfg Config) *OpenAI {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	slog.Info("Initialized OpenAI provider",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens),
		slog.Float64("temperature", cfg.Temperature))

	return &OpenAI{
		client:         openai.NewClientWithConfig(clientConfig),
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    cfg.retryConfig(),
		config:         cfg,
	}
}

// Name identifies the provider in logs, metrics and attempt records.
func (o *OpenAI) Name() string { return "openai" }

// Generate produces text for the request through circuit breaker and
// retry logic. Transient failures (timeouts, 5xx, 429) are retried;
// other 4xx responses fail immediately.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("openai generate: empty prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	var result *Response

	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doGenerate(ctx, req)
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai api circuit breaker open, request rejected",
					slog.String("service", "openai-api"),
					slog.String("state", o.circuitBreaker.State().String()))
				return fmt.Errorf("openai api unavailable: circuit breaker open")
			}
			return err
		}

		result = cbResult.(*Response)
		return nil
	})

	if retryErr != nil {
		return nil, fmt.Errorf("openai generate failed after retries: %w", retryErr)
	}

	return result, nil
}

// doGenerate performs the actual API call without retry or circuit breaker.
func (o *OpenAI) doGenerate(ctx context.Context, req *Request) (*Response, error) {
	model := o.config.Model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := o.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	prompt, truncated := truncatePrompt(req.Prompt)
	if truncated {
		slog.Warn("prompt truncated for openai api",
			slog.Int("original_runes", text.CountRunes(req.Prompt)),
			slog.Int("max_runes", maxPromptRunes))
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	slog.InfoContext(ctx, "Starting generation",
		slog.String("provider", "openai"),
		slog.String("model", model),
		slog.Int("prompt_runes", text.CountRunes(prompt)))

	start := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(o.config.Temperature),
		MaxTokens:   maxTokens,
		Messages:    messages,
	})

	duration := time.Since(start)

	if err != nil {
		metrics.RecordLLMRequest("openai", model, duration, 0, 0, 0, false)
		slog.ErrorContext(ctx, "Generation failed",
			slog.String("provider", "openai"),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.RecordLLMRequest("openai", model, duration, 0, 0, 0, false)
		slog.ErrorContext(ctx, "OpenAI API returned empty response",
			slog.Duration("duration", duration))
		return nil, fmt.Errorf("openai api returned empty response")
	}

	out := &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = model
	}

	cost, _ := Cost(out.Model, out.InputTokens, out.OutputTokens)
	metrics.RecordLLMRequest("openai", out.Model, duration, out.InputTokens, out.OutputTokens, cost, true)

	slog.InfoContext(ctx, "Generation completed",
		slog.String("provider", "openai"),
		slog.String("model", out.Model),
		slog.Int("input_tokens", out.InputTokens),
		slog.Int("output_tokens", out.OutputTokens),
		slog.Duration("duration", duration))

	return out, nil
}

// classifyOpenAIError converts SDK errors into retry.HTTPError so the
// shared retry policy can tell transient failures from permanent ones.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &retry.HTTPError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    fmt.Sprintf("openai api: %s", apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &retry.HTTPError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("openai request: %v", reqErr.Err),
		}
	}

	return fmt.Errorf("openai api error: %w", err)
}
