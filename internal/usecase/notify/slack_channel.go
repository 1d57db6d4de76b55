package notify

import (
	"context"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/notifier"
)

// SlackChannel adapts the Slack webhook client to the Channel interface.
type SlackChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel wires the channel. A disabled configuration gets the
// no-op notifier so Send stays callable.
func NewSlackChannel(config notifier.SlackConfig) *SlackChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewSlack(config)
	} else {
		n = notifier.NewNoop()
	}
	return &SlackChannel{notifier: n, enabled: config.Enabled}
}

// Name implements Channel.
func (c *SlackChannel) Name() string {
	return "slack"
}

// IsEnabled implements Channel.
func (c *SlackChannel) IsEnabled() bool {
	return c.enabled
}

// Send validates the announcement and delegates to the webhook client.
func (c *SlackChannel) Send(ctx context.Context, ann *entity.SiteAnnouncement) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if ann == nil {
		return ErrInvalidAnnouncement
	}
	return c.notifier.Announce(ctx, ann)
}
