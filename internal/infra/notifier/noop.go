package notifier

import (
	"context"

	"contentmill/internal/domain/entity"
)

// Noop discards announcements. It stands in for a real client when a channel
// is disabled so callers never need a nil check.
type Noop struct{}

// NewNoop returns the no-op notifier.
func NewNoop() *Noop {
	return &Noop{}
}

// Announce does nothing and returns nil.
func (*Noop) Announce(_ context.Context, _ *entity.SiteAnnouncement) error {
	return nil
}
