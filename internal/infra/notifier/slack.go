package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"contentmill/internal/domain/entity"
)

// SlackConfig configures the Slack Incoming Webhook client.
type SlackConfig struct {
	// Enabled gates the channel. When false the channel wrapper substitutes
	// the no-op notifier.
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL, token included.
	WebhookURL string

	// Timeout bounds one HTTP request to the webhook.
	Timeout time.Duration
}

// Slack announces deploys to a Slack channel through an Incoming Webhook.
type Slack struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlack builds the client. The rate limiter allows 1 request per second
// with a burst of 1, matching Slack's webhook limit of one message per
// second.
func NewSlack(config SlackConfig) *Slack {
	return &Slack{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// Slack Block Kit limits.
const (
	maxSectionTextLen = 3000
	maxFallbackLen    = 150
)

type slackPayload struct {
	Text   string       `json:"text"` // fallback for notifications
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string            `json:"type"` // "section" or "context"
	Text     *slackTextObject  `json:"text,omitempty"`
	Elements []slackTextObject `json:"elements,omitempty"`
}

type slackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

// buildBlocks renders the announcement as a section block (linked headline
// plus summary and error list) and a context block (correlation ID and
// finish time).
func (s *Slack) buildBlocks(ann *entity.SiteAnnouncement) slackPayload {
	fallback := fmt.Sprintf("%s: %s", headline(ann), summaryLine(ann))
	fallback = truncate(fallback, maxFallbackLen, truncationSuffix)

	title := fmt.Sprintf("*%s*", headline(ann))
	if ann.SiteURL != "" {
		title = fmt.Sprintf("*<%s|%s>*", ann.SiteURL, headline(ann))
	}
	sectionText := fmt.Sprintf("%s\n%s", title, summaryLine(ann))
	if errs := errorLines(ann.Errors); errs != "" {
		sectionText += "\n\n" + errs
	}
	sectionText = truncate(sectionText, maxSectionTextLen, truncationSuffix)

	contextText := "content pipeline"
	if ann.CorrelationID != "" {
		contextText = ann.CorrelationID
	}
	if !ann.FinishedAt.IsZero() {
		contextText = fmt.Sprintf("%s | %s", contextText, ann.FinishedAt.Format(time.RFC3339))
	}

	return slackPayload{
		Text: fallback,
		Blocks: []slackBlock{
			{
				Type: "section",
				Text: &slackTextObject{Type: "mrkdwn", Text: sectionText},
			},
			{
				Type:     "context",
				Elements: []slackTextObject{{Type: "mrkdwn", Text: contextText}},
			},
		},
	}
}

// sendWebhook posts the announcement once and classifies the response the
// same way the Discord client does.
func (s *Slack) sendWebhook(ctx context.Context, ann *entity.SiteAnnouncement) error {
	payload := s.buildBlocks(ann)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Message:    "slack rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("slack client error: %s", string(body)),
		}
	}
	if resp.StatusCode >= 500 {
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("slack server error: %s", string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// sendWithRetry mirrors the Discord retry policy: up to 2 attempts, 429s
// honor retry_after, client errors fail immediately.
func (s *Slack) sendWithRetry(ctx context.Context, ann *entity.SiteAnnouncement) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.sendWebhook(ctx, ann)
		if err == nil {
			slog.Info("slack announcement sent",
				slog.String("request_id", requestID),
				slog.String("correlation_id", ann.CorrelationID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := as429(err); ok {
			slog.Warn("slack rate limit hit, backing off",
				slog.String("request_id", requestID),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryable(err) {
			slog.Error("slack announcement failed, not retryable",
				slog.String("request_id", requestID),
				slog.String("correlation_id", ann.CorrelationID),
				slog.Any("error", err))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("slack request failed, retrying",
				slog.String("request_id", requestID),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("slack announcement failed after all retries",
		slog.String("request_id", requestID),
		slog.String("correlation_id", ann.CorrelationID),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))
	return fmt.Errorf("slack announcement failed after %d attempts: %w", maxAttempts, lastErr)
}

// Announce implements Notifier.
func (s *Slack) Announce(ctx context.Context, ann *entity.SiteAnnouncement) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("sending slack announcement",
		slog.String("request_id", requestID),
		slog.String("correlation_id", ann.CorrelationID),
		slog.Int("files_uploaded", ann.FilesUploaded),
		slog.Bool("rolled_back", ann.RolledBack))

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return s.sendWithRetry(ctx, ann)
}
