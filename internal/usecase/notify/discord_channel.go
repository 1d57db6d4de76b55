package notify

import (
	"context"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/notifier"
)

// DiscordChannel adapts the Discord webhook client to the Channel interface.
type DiscordChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewDiscordChannel wires the channel. A disabled configuration gets the
// no-op notifier so Send stays callable.
func NewDiscordChannel(config notifier.DiscordConfig) *DiscordChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewDiscord(config)
	} else {
		n = notifier.NewNoop()
	}
	return &DiscordChannel{notifier: n, enabled: config.Enabled}
}

// Name implements Channel.
func (c *DiscordChannel) Name() string {
	return "discord"
}

// IsEnabled implements Channel.
func (c *DiscordChannel) IsEnabled() bool {
	return c.enabled
}

// Send validates the announcement and delegates to the webhook client,
// which owns rate limiting and retries.
func (c *DiscordChannel) Send(ctx context.Context, ann *entity.SiteAnnouncement) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if ann == nil {
		return ErrInvalidAnnouncement
	}
	return c.notifier.Announce(ctx, ann)
}
