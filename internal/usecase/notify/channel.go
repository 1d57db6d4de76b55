// Package notify fans deploy announcements out to the configured delivery
// channels. Dispatch is asynchronous: a bounded worker pool sends to each
// channel, a per-channel circuit breaker sheds traffic to a failing webhook,
// and failures never propagate back to the publisher.
package notify

import (
	"context"

	"contentmill/internal/domain/entity"
)

// Channel is one notification delivery target (Discord, Slack, ...).
//
// Retry policy contract for implementations:
//   - transient failures (5xx, network errors): retry with backoff
//   - rate limits (429): sleep for the service's retry_after, then retry
//   - other client errors (4xx): no retry
//   - context timeout or cancellation: no retry
//
// All methods must be safe for concurrent use.
type Channel interface {
	// Name returns the channel identifier used in logs, metrics labels and
	// health reports. Lowercase, stable.
	Name() string

	// IsEnabled reports whether the channel is switched on in configuration.
	// Disabled channels are skipped during dispatch.
	IsEnabled() bool

	// Send delivers one announcement. It returns ErrChannelDisabled on a
	// disabled channel, ErrInvalidAnnouncement for a nil announcement, and
	// the transport error after retries are exhausted otherwise.
	Send(ctx context.Context, ann *entity.SiteAnnouncement) error
}
