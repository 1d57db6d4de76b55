package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/notifier"
	"contentmill/internal/usecase/notify"
)

func TestDiscordChannelDisabled(t *testing.T) {
	ch := notify.NewDiscordChannel(notifier.DiscordConfig{})

	assert.Equal(t, "discord", ch.Name())
	assert.False(t, ch.IsEnabled())
	assert.ErrorIs(t, ch.Send(context.Background(), &entity.SiteAnnouncement{}),
		notify.ErrChannelDisabled)
}

func TestDiscordChannelRejectsNilAnnouncement(t *testing.T) {
	ch := notify.NewDiscordChannel(notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: "https://discord.com/api/webhooks/1/token",
		Timeout:    time.Second,
	})

	assert.True(t, ch.IsEnabled())
	assert.ErrorIs(t, ch.Send(context.Background(), nil), notify.ErrInvalidAnnouncement)
}

func TestSlackChannelDisabled(t *testing.T) {
	ch := notify.NewSlackChannel(notifier.SlackConfig{})

	assert.Equal(t, "slack", ch.Name())
	assert.False(t, ch.IsEnabled())
	assert.ErrorIs(t, ch.Send(context.Background(), &entity.SiteAnnouncement{}),
		notify.ErrChannelDisabled)
}

func TestSlackChannelRejectsNilAnnouncement(t *testing.T) {
	ch := notify.NewSlackChannel(notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: "https://hooks.slack.com/services/T0/B0/token",
		Timeout:    time.Second,
	})

	assert.True(t, ch.IsEnabled())
	assert.ErrorIs(t, ch.Send(context.Background(), nil), notify.ErrInvalidAnnouncement)
}
