package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"contentmill/internal/domain/entity"
)

// DiscordConfig configures the Discord webhook client.
type DiscordConfig struct {
	// Enabled gates the channel. When false the channel wrapper substitutes
	// the no-op notifier.
	Enabled bool

	// WebhookURL is the Discord webhook URL, token included.
	WebhookURL string

	// Timeout bounds one HTTP request to the webhook.
	Timeout time.Duration
}

// Discord announces deploys to a Discord channel through a webhook.
type Discord struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewDiscord builds the client. The rate limiter allows 0.5 requests per
// second with a burst of 3, inside Discord's webhook limit of 30 requests
// per minute.
func NewDiscord(config DiscordConfig) *Discord {
	return &Discord{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: NewRateLimiter(0.5, 3),
	}
}

const (
	maxEmbedDescriptionLen = 4096
	truncationSuffix       = "..."
)

// Embed accent colors.
const (
	colorDeployed   = 3066993  // green
	colorRolledBack = 15158332 // red
)

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url,omitempty"`
	Color       int           `json:"color"`
	Footer      discordFooter `json:"footer"`
	Timestamp   string        `json:"timestamp,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

// buildEmbed renders the announcement as a single embed: outcome headline,
// summary plus the non-fatal error list, site link, and the correlation ID
// in the footer.
func (d *Discord) buildEmbed(ann *entity.SiteAnnouncement) discordPayload {
	description := summaryLine(ann)
	if errs := errorLines(ann.Errors); errs != "" {
		description += "\n\n" + errs
	}
	description = truncate(description, maxEmbedDescriptionLen, truncationSuffix)

	color := colorDeployed
	if ann.RolledBack {
		color = colorRolledBack
	}
	footer := ann.CorrelationID
	if footer == "" {
		footer = "content pipeline"
	}

	embed := discordEmbed{
		Title:       headline(ann),
		Description: description,
		URL:         ann.SiteURL,
		Color:       color,
		Footer:      discordFooter{Text: footer},
	}
	if !ann.FinishedAt.IsZero() {
		embed.Timestamp = ann.FinishedAt.Format(time.RFC3339)
	}
	return discordPayload{Embeds: []discordEmbed{embed}}
}

// sendWebhook posts the announcement once and classifies the response:
// 429 becomes a RateLimitError carrying retry_after, other 4xx a ClientError,
// 5xx a ServerError.
func (d *Discord) sendWebhook(ctx context.Context, ann *entity.SiteAnnouncement) error {
	payload := d.buildEmbed(ann)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
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
			Message:    "discord rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, body),
		}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("discord client error: %s", string(body)),
		}
	}
	if resp.StatusCode >= 500 {
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("discord server error: %s", string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// extractRetryAfter pulls the backoff hint from a 429: the JSON retry_after
// field first, the Retry-After header second, 5 seconds when neither parses.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr discordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 5 * time.Second
}

// sendWithRetry runs the request up to maxAttempts times. 429s sleep for the
// service's retry_after, server and network errors back off linearly, client
// errors fail immediately.
func (d *Discord) sendWithRetry(ctx context.Context, ann *entity.SiteAnnouncement) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID, _ := ctx.Value(requestIDKey).(string)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.sendWebhook(ctx, ann)
		if err == nil {
			slog.Info("discord announcement sent",
				slog.String("request_id", requestID),
				slog.String("correlation_id", ann.CorrelationID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := as429(err); ok {
			slog.Warn("discord rate limit hit, backing off",
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
			slog.Error("discord announcement failed, not retryable",
				slog.String("request_id", requestID),
				slog.String("correlation_id", ann.CorrelationID),
				slog.Any("error", err))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("discord request failed, retrying",
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

	slog.Error("discord announcement failed after all retries",
		slog.String("request_id", requestID),
		slog.String("correlation_id", ann.CorrelationID),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))
	return fmt.Errorf("discord announcement failed after %d attempts: %w", maxAttempts, lastErr)
}

// Announce implements Notifier: it tags the request for tracing, waits for
// the rate limiter, then posts with retries.
func (d *Discord) Announce(ctx context.Context, ann *entity.SiteAnnouncement) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("sending discord announcement",
		slog.String("request_id", requestID),
		slog.String("correlation_id", ann.CorrelationID),
		slog.Int("files_uploaded", ann.FilesUploaded),
		slog.Bool("rolled_back", ann.RolledBack))

	if err := d.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return d.sendWithRetry(ctx, ann)
}
