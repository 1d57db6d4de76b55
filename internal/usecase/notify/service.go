package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentmill/internal/domain/entity"
	"contentmill/internal/observability/metrics"
)

// Circuit breaker and dispatch limits.
const (
	// breakerThreshold is the consecutive failure count that opens a
	// channel's circuit breaker.
	breakerThreshold = 5

	// breakerOpenFor is how long an open breaker sheds traffic before the
	// channel gets another chance.
	breakerOpenFor = 5 * time.Minute

	// slotTimeout bounds the wait for a worker pool slot. A full pool past
	// it drops the announcement rather than queueing behind a slow webhook.
	slotTimeout = 5 * time.Second

	// sendTimeout bounds one channel delivery end to end, retries included.
	sendTimeout = 30 * time.Second

	// defaultMaxConcurrent is used when the configured pool size is not
	// positive.
	defaultMaxConcurrent = 10
)

// Service dispatches deploy announcements to every enabled channel without
// blocking the caller. Failures are logged and counted, never returned.
type Service interface {
	// AnnounceDeploy fans the announcement out to all enabled channels in
	// background goroutines and returns immediately.
	AnnounceDeploy(ctx context.Context, ann *entity.SiteAnnouncement)

	// ChannelHealth reports the circuit breaker state of every channel for
	// monitoring endpoints. Safe for concurrent use.
	ChannelHealth() []ChannelStatus

	// Shutdown cancels in-flight deliveries and waits for their goroutines,
	// or gives up when ctx expires.
	Shutdown(ctx context.Context) error
}

// ChannelStatus is one channel's health snapshot.
type ChannelStatus struct {
	// Name is the channel identifier.
	Name string

	// Enabled reports the configuration switch.
	Enabled bool

	// BreakerOpen reports that the circuit breaker is currently shedding
	// traffic for this channel.
	BreakerOpen bool

	// RetryAt is when the breaker closes again. Zero while the breaker is
	// closed.
	RetryAt time.Time
}

type service struct {
	channels []Channel
	slots    chan struct{} // bounds concurrent deliveries

	healthMu sync.RWMutex
	health   map[string]*channelHealth

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	logger         *slog.Logger
}

// channelHealth is the per-channel circuit breaker state.
type channelHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	openUntil           time.Time
}

// NewService wires the dispatcher. maxConcurrent bounds simultaneous
// deliveries across all channels; values below 1 fall back to the default.
func NewService(channels []Channel, maxConcurrent int) Service {
	if maxConcurrent < 1 {
		maxConcurrent = defaultMaxConcurrent
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		slots:          make(chan struct{}, maxConcurrent),
		health:         make(map[string]*channelHealth),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		logger:         slog.Default(),
	}
	for _, ch := range channels {
		svc.health[ch.Name()] = &channelHealth{}
	}
	return svc
}

// AnnounceDeploy implements Service. The passed context is only used for
// logging decisions at dispatch time; deliveries run on the service's own
// shutdown context so a finished queue handler cannot cancel them.
func (s *service) AnnounceDeploy(_ context.Context, ann *entity.SiteAnnouncement) {
	if ann == nil {
		s.logger.Warn("nil announcement, nothing to dispatch")
		return
	}

	requestID := ann.CorrelationID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	enabled := 0
	for _, ch := range s.channels {
		if ch.IsEnabled() {
			enabled++
		}
	}
	metrics.SetNotificationChannels(enabled)
	if enabled == 0 {
		s.logger.Debug("no notification channels enabled",
			slog.String("request_id", requestID))
		return
	}

	s.logger.Info("dispatching deploy announcement",
		slog.String("request_id", requestID),
		slog.Int("files_uploaded", ann.FilesUploaded),
		slog.Bool("rolled_back", ann.RolledBack),
		slog.Int("enabled_channels", enabled))

	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		s.wg.Add(1)
		go s.send(requestID, ch, ann)
	}
}

// send delivers one announcement to one channel inside the worker pool,
// updating breaker state and metrics from the outcome.
func (s *service) send(requestID string, channel Channel, ann *entity.SiteAnnouncement) {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in notification channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-time.After(slotTimeout):
		s.logger.Warn("announcement dropped, worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		metrics.RecordNotificationDropped(channel.Name(), "pool_full")
		return
	case <-s.shutdownCtx.Done():
		return
	}

	health := s.channelState(channel.Name())
	health.mu.Lock()
	if time.Now().Before(health.openUntil) {
		openUntil := health.openUntil
		health.mu.Unlock()
		s.logger.Warn("announcement dropped, circuit breaker open",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Time("retry_at", openUntil))
		metrics.RecordNotificationDropped(channel.Name(), "breaker_open")
		return
	}
	health.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.shutdownCtx, sendTimeout)
	defer cancel()

	metrics.RecordNotificationDispatch(channel.Name())
	start := time.Now()
	err := channel.Send(ctx, ann)
	duration := time.Since(start)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= breakerThreshold {
			health.openUntil = time.Now().Add(breakerOpenFor)
			s.logger.Error("circuit breaker opened for channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", health.consecutiveFailures))
			metrics.RecordNotificationBreakerOpen(channel.Name())
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	metrics.RecordNotificationResult(channel.Name(), duration, err)
	if err != nil {
		s.logger.Warn("channel announcement failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	s.logger.Info("channel announcement sent",
		slog.String("request_id", requestID),
		slog.String("channel", channel.Name()),
		slog.Duration("send_duration", duration))
}

func (s *service) channelState(name string) *channelHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.health[name]
}

// ChannelHealth implements Service.
func (s *service) ChannelHealth() []ChannelStatus {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	statuses := make([]ChannelStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		health := s.health[ch.Name()]

		health.mu.Lock()
		status := ChannelStatus{
			Name:    ch.Name(),
			Enabled: ch.IsEnabled(),
		}
		if time.Now().Before(health.openUntil) {
			status.BreakerOpen = true
			status.RetryAt = health.openUntil
		}
		health.mu.Unlock()

		statuses = append(statuses, status)
	}
	return statuses
}

// Shutdown implements Service.
func (s *service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down notification dispatcher")
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("notification dispatcher shutdown timed out")
		return ctx.Err()
	}
}
