package fetcher

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ContentFetchConfig controls the content-enhancement fetches issued for
// link-dominant items. The limits exist for safety, not tuning: body size
// and redirect caps bound resource use against hostile pages, and
// DenyPrivateIPs must stay on outside tests.
type ContentFetchConfig struct {
	// Enabled toggles enhancement without a redeploy. When false the
	// collector keeps the original item bodies.
	Enabled bool

	// Threshold is the minimum body length in bytes below which an item
	// is considered worth enhancing. Bodies at or above it are kept.
	Threshold int

	// Timeout bounds one fetch, including extraction.
	Timeout time.Duration

	// Parallelism bounds concurrent enhancement fetches per cycle.
	Parallelism int

	// MaxBodySize is the response size cap in bytes. Oversized responses
	// are rejected, not truncated.
	MaxBodySize int64

	// MaxRedirects caps the redirect chain; every hop is re-validated.
	MaxRedirects int

	// DenyPrivateIPs rejects URLs resolving to private, loopback, or
	// link-local addresses.
	DenyPrivateIPs bool
}

// DefaultContentFetchConfig returns production enhancement limits.
func DefaultContentFetchConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Threshold:      300,
		Timeout:        10 * time.Second,
		Parallelism:    10,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// Validate rejects configurations that would be unsafe or useless. Unlike
// most config loaders in this repo it fails closed: a bad security limit
// must not silently fall back.
func (c *ContentFetchConfig) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", c.Threshold)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.Parallelism < 1 || c.Parallelism > 50 {
		return fmt.Errorf("parallelism must be between 1 and 50, got %d", c.Parallelism)
	}
	const (
		minBody = int64(1024)
		maxBody = int64(100 * 1024 * 1024)
	)
	if c.MaxBodySize < minBody || c.MaxBodySize > maxBody {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBody, maxBody, c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	return nil
}

// LoadContentFetchConfig reads the CONTENT_FETCH_* environment variables,
// starting from defaults. Unset variables keep their default; set but
// unparsable variables are an error, as is any combination that fails
// Validate.
//
// Variables: CONTENT_FETCH_ENABLED, CONTENT_FETCH_THRESHOLD,
// CONTENT_FETCH_TIMEOUT, CONTENT_FETCH_PARALLELISM,
// CONTENT_FETCH_MAX_BODY_SIZE, CONTENT_FETCH_MAX_REDIRECTS,
// CONTENT_FETCH_DENY_PRIVATE_IPS.
func LoadContentFetchConfig() (ContentFetchConfig, error) {
	cfg := DefaultContentFetchConfig()

	if val := os.Getenv("CONTENT_FETCH_ENABLED"); val != "" {
		cfg.Enabled = val == "true"
	}
	if val := os.Getenv("CONTENT_FETCH_THRESHOLD"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTENT_FETCH_THRESHOLD: %w", err)
		}
		cfg.Threshold = parsed
	}
	if val := os.Getenv("CONTENT_FETCH_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTENT_FETCH_TIMEOUT (want e.g. \"10s\"): %w", err)
		}
		cfg.Timeout = parsed
	}
	if val := os.Getenv("CONTENT_FETCH_PARALLELISM"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTENT_FETCH_PARALLELISM: %w", err)
		}
		cfg.Parallelism = parsed
	}
	if val := os.Getenv("CONTENT_FETCH_MAX_BODY_SIZE"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTENT_FETCH_MAX_BODY_SIZE: %w", err)
		}
		cfg.MaxBodySize = parsed
	}
	if val := os.Getenv("CONTENT_FETCH_MAX_REDIRECTS"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTENT_FETCH_MAX_REDIRECTS: %w", err)
		}
		cfg.MaxRedirects = parsed
	}
	if val := os.Getenv("CONTENT_FETCH_DENY_PRIVATE_IPS"); val != "" {
		cfg.DenyPrivateIPs = val == "true"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("content fetch configuration invalid: %w", err)
	}
	return cfg, nil
}
