// Package notifier implements the outbound webhook clients that announce
// site deploys. It defines the Notifier interface so delivery mechanisms
// (Discord, Slack) stay interchangeable behind the notify use case, plus a
// no-op implementation for when no webhook is configured.
//
// Each client owns its rate limiter and retry policy: transient failures
// (5xx, network errors) retry with backoff, 429 responses honor the
// service's retry_after, and other 4xx responses fail immediately.
package notifier

import (
	"context"

	"contentmill/internal/domain/entity"
)

// Notifier delivers one deploy announcement to an external service.
// Implementations handle rate limiting, retries and request logging
// internally and respect context cancellation.
type Notifier interface {
	Announce(ctx context.Context, ann *entity.SiteAnnouncement) error
}
