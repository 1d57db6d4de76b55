// Package httpx provides the shared HTTP plumbing for outbound fetches:
// a per-host rate limiter with adaptive backoff, a process-wide HTTP
// client, and a fetcher that ties both together.
package httpx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"contentmill/internal/observability/metrics"
)

const (
	// DefaultBaseBackoff is the first delay applied after a 429 without
	// a Retry-After header.
	DefaultBaseBackoff = 2 * time.Second

	// DefaultMaxBackoff caps the adaptive delay regardless of how many
	// consecutive 429s a host returns.
	DefaultMaxBackoff = 300 * time.Second

	backoffMultiplier = 2.0
)

// Limiter paces outbound requests to a single upstream host. It combines a
// token bucket sized from the host's requests-per-minute allowance with an
// adaptive delay that grows on each 429 and resets on the next success.
//
// All methods are safe for concurrent use.
type Limiter struct {
	host   string
	bucket *rate.Limiter

	mu          sync.Mutex
	delay       time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// sleep is replaced in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for host allowing rpm requests per minute.
// The bucket refills continuously at rpm/60 tokens per second and allows an
// initial burst of rpm. Zero or negative baseBackoff and maxBackoff fall
// back to the package defaults.
func NewLimiter(host string, rpm int, baseBackoff, maxBackoff time.Duration) *Limiter {
	if rpm <= 0 {
		rpm = 60
	}
	if baseBackoff <= 0 {
		baseBackoff = DefaultBaseBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	return &Limiter{
		host:        host,
		bucket:      rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		sleep:       sleepContext,
	}
}

// Acquire blocks until the caller may issue the next request: it first
// sleeps the current adaptive delay, then waits for a bucket token. It
// returns early with the context error when ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	delay := l.delay
	l.mu.Unlock()

	if delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", l.host, err)
	}
	return nil
}

// Handle429 records a rate-limit response from the host. When the server
// supplied a Retry-After value (seconds) the delay is set to it directly;
// otherwise the current delay doubles, starting from the base backoff.
// The delay never exceeds the configured maximum and negative Retry-After
// values are treated as zero.
func (l *Limiter) Handle429(retryAfter *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfter != nil {
		secs := *retryAfter
		if secs < 0 {
			secs = 0
		}
		l.delay = time.Duration(secs * float64(time.Second))
	} else {
		next := time.Duration(float64(l.delay) * backoffMultiplier)
		if next < l.baseBackoff {
			next = l.baseBackoff
		}
		l.delay = next
	}
	if l.delay > l.maxBackoff {
		l.delay = l.maxBackoff
	}

	metrics.RecordRateLimitHit(l.host)
	metrics.UpdateBackoffDelay(l.host, l.delay)
}

// ResetBackoff clears the adaptive delay after a successful response.
// The token bucket keeps pacing requests at the configured rate.
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.delay == 0 {
		return
	}
	l.delay = 0
	metrics.UpdateBackoffDelay(l.host, 0)
}

// CurrentDelay returns the adaptive delay that the next Acquire will sleep.
func (l *Limiter) CurrentDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
