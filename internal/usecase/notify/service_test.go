package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
	"contentmill/internal/usecase/notify"
)

// stubChannel is a controllable Channel: configurable outcome, optional
// delay, and call recording.
type stubChannel struct {
	name      string
	enabled   bool
	delay     time.Duration
	ignoreCtx bool // sleep through cancellation to simulate a stuck webhook

	mu        sync.Mutex
	err       error
	calls     int
	completed int
	last      *entity.SiteAnnouncement
}

func (c *stubChannel) Name() string    { return c.name }
func (c *stubChannel) IsEnabled() bool { return c.enabled }

func (c *stubChannel) Send(ctx context.Context, ann *entity.SiteAnnouncement) error {
	c.mu.Lock()
	c.calls++
	c.last = ann
	err := c.err
	c.mu.Unlock()

	if c.delay > 0 {
		if c.ignoreCtx {
			time.Sleep(c.delay)
		} else {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
	return err
}

func (c *stubChannel) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *stubChannel) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *stubChannel) completedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *stubChannel) lastAnnouncement() *entity.SiteAnnouncement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func announcement() *entity.SiteAnnouncement {
	return &entity.SiteAnnouncement{
		SiteURL:       "https://news.example.com",
		FilesUploaded: 3,
		Duration:      10 * time.Second,
		CorrelationID: "col_1_abc",
		FinishedAt:    time.Now(),
	}
}

func TestAnnounceDeployFansOutToEnabledChannels(t *testing.T) {
	first := &stubChannel{name: "discord", enabled: true}
	second := &stubChannel{name: "slack", enabled: true}
	disabled := &stubChannel{name: "pager", enabled: false}
	svc := notify.NewService([]notify.Channel{first, second, disabled}, 4)

	svc.AnnounceDeploy(context.Background(), announcement())
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 1, second.callCount())
	assert.Zero(t, disabled.callCount(), "disabled channels are skipped at dispatch")
	assert.Equal(t, "col_1_abc", first.lastAnnouncement().CorrelationID)
}

func TestAnnounceDeployNilAnnouncementIsIgnored(t *testing.T) {
	ch := &stubChannel{name: "discord", enabled: true}
	svc := notify.NewService([]notify.Channel{ch}, 2)

	svc.AnnounceDeploy(context.Background(), nil)
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Zero(t, ch.callCount())
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ch := &stubChannel{name: "discord", enabled: true, err: errors.New("webhook down")}
	svc := notify.NewService([]notify.Channel{ch}, 2)

	for i := 0; i < 5; i++ {
		svc.AnnounceDeploy(context.Background(), announcement())
	}
	require.Eventually(t, func() bool {
		statuses := svc.ChannelHealth()
		return len(statuses) == 1 && statuses[0].BreakerOpen
	}, 2*time.Second, 10*time.Millisecond, "five consecutive failures must open the breaker")

	// An open breaker sheds the next announcement without calling the channel.
	svc.AnnounceDeploy(context.Background(), announcement())
	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, 5, ch.callCount())

	status := svc.ChannelHealth()[0]
	assert.True(t, status.BreakerOpen)
	assert.False(t, status.RetryAt.IsZero())
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	ch := &stubChannel{name: "slack", enabled: true, err: errors.New("flaky")}
	svc := notify.NewService([]notify.Channel{ch}, 1)

	for i := 0; i < 4; i++ {
		svc.AnnounceDeploy(context.Background(), announcement())
	}
	require.Eventually(t, func() bool { return ch.completedCount() == 4 },
		2*time.Second, 10*time.Millisecond)

	// A success before the fifth failure resets the count.
	ch.setErr(nil)
	svc.AnnounceDeploy(context.Background(), announcement())
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Equal(t, 5, ch.callCount())
	assert.False(t, svc.ChannelHealth()[0].BreakerOpen)
}

func TestShutdownWaitsForInFlightSends(t *testing.T) {
	ch := &stubChannel{name: "discord", enabled: true, delay: 100 * time.Millisecond, ignoreCtx: true}
	svc := notify.NewService([]notify.Channel{ch}, 2)

	svc.AnnounceDeploy(context.Background(), announcement())
	require.Eventually(t, func() bool { return ch.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, 1, ch.completedCount(), "shutdown must wait for the in-flight send")
}

func TestShutdownTimesOutOnStuckChannel(t *testing.T) {
	ch := &stubChannel{name: "discord", enabled: true, delay: 500 * time.Millisecond, ignoreCtx: true}
	svc := notify.NewService([]notify.Channel{ch}, 2)

	svc.AnnounceDeploy(context.Background(), announcement())
	require.Eventually(t, func() bool { return ch.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(ctx), context.DeadlineExceeded)
}

func TestChannelHealthReportsConfiguration(t *testing.T) {
	svc := notify.NewService([]notify.Channel{
		&stubChannel{name: "discord", enabled: true},
		&stubChannel{name: "slack", enabled: false},
	}, 2)

	statuses := svc.ChannelHealth()
	require.Len(t, statuses, 2)
	assert.Equal(t, "discord", statuses[0].Name)
	assert.True(t, statuses[0].Enabled)
	assert.False(t, statuses[0].BreakerOpen)
	assert.True(t, statuses[0].RetryAt.IsZero())
	assert.Equal(t, "slack", statuses[1].Name)
	assert.False(t, statuses[1].Enabled)
}
