// Package orchestrate drives the pipeline between stages: a cron schedule
// wakes the collector, and blob-created events push finished collections and
// articles into their next queue. The orchestrator never touches blob
// contents; it only maps names to messages.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
)

// ServiceName is stamped on every envelope the orchestrator sends.
const ServiceName = "pipeline-orchestrator"

// DefaultSchedule wakes the collector every six hours.
const DefaultSchedule = "0 */6 * * *"

// triggerTimeout bounds one cron-fired queue send.
const triggerTimeout = 30 * time.Second

// coalesceWindow suppresses repeat events for a blob routed recently. The
// collector rewrites its cumulative collection blob once per item, and one
// routing per blob covers every rewrite in the burst.
const coalesceWindow = 2 * time.Minute

// Queues holds the downstream queues the orchestrator feeds.
type Queues struct {
	Collection queue.Queue
	Processing queue.Queue
	Markdown   queue.Queue
}

// ServiceConfig carries the orchestrator's knobs.
type ServiceConfig struct {
	// Schedule is a five-field cron expression for collection wake-ups.
	Schedule string
	// Timezone names the IANA location the schedule is evaluated in.
	// Invalid or empty values fall back to UTC.
	Timezone string
	// DefaultSources restricts cron-triggered collection to these source
	// names. Empty means every adapter the collector is configured with.
	DefaultSources []string
	// MaxItems caps one cron-triggered cycle; zero uses the collector's
	// default.
	MaxItems int
}

// Service is the pipeline orchestrator.
type Service struct {
	Queues Queues

	cfg    ServiceConfig
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time

	routedMu sync.Mutex
	routed   map[string]time.Time
}

// NewService wires the orchestrator.
func NewService(queues Queues, cfg ServiceConfig) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Service{
		Queues: queues,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		routed: make(map[string]time.Time),
	}
}

// StartCron starts the collection schedule. It returns an error only for an
// unparseable schedule; an unknown timezone falls back to UTC so a bad
// TZ database entry cannot keep the pipeline from running.
func (s *Service) StartCron() error {
	loc := time.UTC
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			s.logger.Error("invalid timezone, using UTC",
				slog.String("timezone", s.cfg.Timezone),
				slog.Any("error", err))
		} else {
			loc = l
		}
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := s.TriggerCollection(ctx); err != nil {
			s.logger.Error("cron collection trigger failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("collection schedule started",
		slog.String("schedule", s.cfg.Schedule),
		slog.String("timezone", loc.String()))
	return nil
}

// StopCron stops the schedule and waits for an in-flight trigger to finish.
func (s *Service) StopCron() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// TriggerCollection enqueues one collection request carrying the default
// source set. Exposed so operators and tests can fire a cycle out of band.
func (s *Service) TriggerCollection(ctx context.Context) error {
	req := &entity.CollectionRequest{
		Sources:  s.cfg.DefaultSources,
		MaxItems: s.cfg.MaxItems,
	}
	correlationID := fmt.Sprintf("cron_%d", s.now().UTC().Unix())

	env, err := queue.NewEnvelope(entity.OpCollectContent, ServiceName, correlationID, req)
	if err != nil {
		metrics.RecordCronTrigger(false)
		return fmt.Errorf("building collection request: %w", err)
	}
	if err := s.Queues.Collection.Send(ctx, env); err != nil {
		metrics.RecordCronTrigger(false)
		return fmt.Errorf("enqueue collection request: %w", err)
	}

	metrics.RecordCronTrigger(true)
	s.logger.Info("collection triggered",
		slog.String("correlation_id", correlationID),
		slog.Int("sources", len(s.cfg.DefaultSources)))
	return nil
}
