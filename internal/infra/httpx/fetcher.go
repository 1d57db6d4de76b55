package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/resilience/retry"
)

// DefaultMaxBodySize bounds how many bytes a single fetch may read.
const DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

// FetchConfig controls per-request safety limits.
type FetchConfig struct {
	// MaxBodySize is the maximum response body size in bytes. Bodies
	// above the limit are rejected, not truncated.
	MaxBodySize int64

	// DenyPrivateIPs rejects URLs resolving to private, loopback, or
	// link-local addresses. Always true in production; tests disable it
	// to reach local servers.
	DenyPrivateIPs bool
}

// DefaultFetchConfig returns production fetch limits.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		MaxBodySize:    DefaultMaxBodySize,
		DenyPrivateIPs: true,
	}
}

// Fetcher issues rate-limited GET requests against one upstream host.
type Fetcher struct {
	client  *http.Client
	limiter *Limiter
	config  FetchConfig
	logger  *slog.Logger
}

// NewFetcher creates a fetcher that paces requests through limiter. A nil
// client falls back to SharedClient and a non-positive MaxBodySize falls
// back to DefaultMaxBodySize.
func NewFetcher(client *http.Client, limiter *Limiter, config FetchConfig, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = SharedClient()
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Get fetches rawURL and returns the response body. It validates the URL,
// waits on the limiter, and classifies non-2xx responses as
// *retry.HTTPError so callers can decide on retries. A 429 feeds the
// server's Retry-After hint back into the limiter; any 2xx clears the
// adaptive backoff.
func (f *Fetcher) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, fmt.Errorf("invalid fetch URL: %w", err)
	}
	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire rate limit for %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", rawURL, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		f.limiter.Handle429(retryAfter)
		f.logger.Warn("upstream rate limited",
			"host", f.limiter.host,
			"url", rawURL,
			"backoff", f.limiter.CurrentDelay().String(),
		)
		httpErr := &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    "rate limited by upstream",
		}
		if retryAfter != nil && *retryAfter > 0 {
			httpErr.RetryAfter = time.Duration(*retryAfter * float64(time.Second))
		}
		return nil, httpErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status fetching %s", rawURL),
		}
	}

	f.limiter.ResetBackoff()

	// Read one byte past the cap to distinguish at-limit from over-limit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		metrics.RecordSourceFetchError(f.limiter.host, "body_too_large")
		return nil, fmt.Errorf("response from %s exceeds %d bytes", rawURL, f.config.MaxBodySize)
	}
	return body, nil
}

func (f *Fetcher) validate(rawURL string) error {
	if f.config.DenyPrivateIPs {
		return entity.ValidateURL(rawURL)
	}
	return entity.ValidateURLFormat(rawURL)
}

// parseRetryAfter interprets a Retry-After header value as either delay
// seconds or an HTTP date. It returns nil when the header is absent or
// unparseable.
func parseRetryAfter(value string) *float64 {
	if value == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return &secs
	}
	if at, err := http.ParseTime(value); err == nil {
		secs := time.Until(at).Seconds()
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	return nil
}
