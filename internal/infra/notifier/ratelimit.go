package notifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound webhook requests with a token bucket so a burst
// of deploy announcements cannot trip the service's own limits.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows up to burst requests immediately, then refills at
// requestsPerSecond.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
