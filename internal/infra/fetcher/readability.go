// Package fetcher fetches full article pages and extracts their readable
// text. The collector uses it to upgrade link-dominant items whose feed
// body is just "Link: <url>" before the quality gate sees them.
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/httpx"
	"contentmill/internal/resilience/circuitbreaker"
)

// ReadabilityFetcher extracts clean article text from arbitrary URLs.
// Unlike the per-host source fetchers it talks to whatever host an item
// links to, so every request and every redirect hop is re-validated
// against the private-network rules.
//
// Safe for concurrent use.
type ReadabilityFetcher struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	config  ContentFetchConfig
}

// NewReadabilityFetcher builds a fetcher with its own HTTP client. The
// client enforces TLS 1.2+, caps redirects, and validates every redirect
// target; the circuit breaker stops hammering the network when extraction
// failures cluster.
func NewReadabilityFetcher(config ContentFetchConfig) *ReadabilityFetcher {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "content-fetch",
		MaxRequests:      5,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	})

	f := &ReadabilityFetcher{
		breaker: breaker,
		config:  config,
	}

	f.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := f.validate(req.URL.String()); err != nil {
				return fmt.Errorf("redirect target rejected: %w", err)
			}
			return nil
		},
	}
	return f
}

// FetchContent downloads url and returns its readable text. The URL is
// validated before any network I/O; the fetch itself runs through the
// circuit breaker so a failing upstream trips fast instead of burning the
// whole enhancement budget on timeouts.
func (f *ReadabilityFetcher) FetchContent(ctx context.Context, rawURL string) (string, error) {
	if err := f.validate(rawURL); err != nil {
		return "", err
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, rawURL)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (f *ReadabilityFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("fetch %s: %w after %v", rawURL, ErrFetchTimeout, f.config.Timeout)
		}
		// Unwrap redirect-check failures so callers see the sentinel.
		if urlErr, ok := err.(*url.Error); ok && urlErr.Err != nil {
			return "", urlErr.Err
		}
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	// Read one byte past the cap to distinguish at-limit from over-limit.
	htmlBytes, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(htmlBytes)) > f.config.MaxBodySize {
		return "", fmt.Errorf("%w: response over %d bytes", ErrBodyTooLarge, f.config.MaxBodySize)
	}

	// Extraction runs against the final URL so relative links resolve
	// correctly after redirects.
	finalURL, err := url.Parse(rawURL)
	if err != nil {
		finalURL = nil
	}
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	article, err := readability.FromReader(bytes.NewReader(htmlBytes), finalURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	if article.TextContent != "" {
		return article.TextContent, nil
	}
	if article.Content != "" {
		return article.Content, nil
	}
	return "", fmt.Errorf("%w: no readable content in %s", ErrExtractFailed, rawURL)
}

func (f *ReadabilityFetcher) validate(rawURL string) error {
	if f.config.DenyPrivateIPs {
		return entity.ValidateURL(rawURL)
	}
	return entity.ValidateURLFormat(rawURL)
}
