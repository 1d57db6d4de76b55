// Package worker provides the queue-consumer runtime shared by the pipeline
// binaries: a polling loop that claims deliveries, invokes a handler, and
// settles each delivery according to the handler's disposition, plus the
// health server and configuration the binaries wrap around it.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
)

// Handler processes one delivery and reports how to settle it. The error is
// for logs only; settlement follows the disposition.
type Handler func(ctx context.Context, d *queue.Delivery) (queue.Disposition, error)

// RuntimeStatus is the worker's current activity.
type RuntimeStatus string

const (
	RuntimeIdle    RuntimeStatus = "idle"
	RuntimeWorking RuntimeStatus = "working"
)

// RuntimeHealth is a point-in-time snapshot for health endpoints.
type RuntimeHealth struct {
	Queue            string        `json:"queue"`
	Status           RuntimeStatus `json:"status"`
	CurrentMessageID string        `json:"current_message_id,omitempty"`
	MessagesHandled  int           `json:"messages_handled"`
	LastActivity     time.Time     `json:"last_activity"`
}

// deadLetterRecord is the audit blob written alongside a dead-lettered
// message so operators can inspect poison messages without queue access.
type deadLetterRecord struct {
	Queue        string          `json:"queue"`
	MessageID    string          `json:"message_id"`
	DequeueCount int             `json:"dequeue_count"`
	Reason       string          `json:"reason"`
	DeadAt       string          `json:"dead_at"`
	Envelope     *queue.Envelope `json:"envelope"`
}

// Runtime polls one queue and drives deliveries through a Handler.
//
// Settlement contract: Done acks, Redeliver abandons, Dead parks the message
// on the dead-letter queue, Leave does nothing and lets the visibility
// timeout expire. A delivery seen more than MaxDeliveries times is
// dead-lettered without invoking the handler.
type Runtime struct {
	queue   queue.Queue
	handler Handler
	audit   blob.Store // nil disables dead-letter audit blobs
	metrics *WorkerMetrics

	name   string
	cfg    Config
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.RWMutex
	status    RuntimeStatus
	currentID string
	handled   int
	lastSeen  time.Time
}

// NewRuntime wires a runtime for the named queue. audit and workerMetrics
// may be nil.
func NewRuntime(name string, q queue.Queue, handler Handler, audit blob.Store, workerMetrics *WorkerMetrics, cfg Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		queue:    q,
		handler:  handler,
		audit:    audit,
		metrics:  workerMetrics,
		name:     name,
		cfg:      cfg,
		logger:   logger.With(slog.String("queue", name)),
		stopCh:   make(chan struct{}),
		status:   RuntimeIdle,
		lastSeen: time.Now(),
	}
}

// Start begins polling in a background goroutine.
func (r *Runtime) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop ends polling and waits for the in-flight batch to settle. Safe to
// call more than once. The worker does not drain the queue: unclaimed
// messages stay for the next instance.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Health returns the current runtime snapshot.
func (r *Runtime) Health() RuntimeHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RuntimeHealth{
		Queue:            r.name,
		Status:           r.status,
		CurrentMessageID: r.currentID,
		MessagesHandled:  r.handled,
		LastActivity:     r.lastSeen,
	}
}

func (r *Runtime) run(ctx context.Context) {
	defer r.wg.Done()

	r.logger.Info("worker started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Duration("visibility_timeout", r.cfg.VisibilityTimeout))

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("worker stopping")
			return
		case <-ctx.Done():
			r.logger.Info("context cancelled, worker stopping")
			return
		default:
			n, err := r.pollOnce(ctx)
			switch {
			case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
				// Loop back to the ctx.Done case.
			case errors.Is(err, queue.ErrEmptyQueue), err == nil && n == 0:
				r.sleep(r.pollInterval())
			case err != nil:
				r.logger.Error("queue poll failed", slog.Any("error", err))
				if r.metrics != nil {
					r.metrics.RecordPollError()
				}
				r.sleep(time.Second)
			}
		}
	}
}

// pollOnce claims one batch and handles every delivery in it. A batch in
// hand is finished even if stop is signalled mid-way; abandoned messages
// would only be redelivered later.
func (r *Runtime) pollOnce(ctx context.Context) (int, error) {
	deliveries, err := r.queue.Receive(ctx, r.cfg.BatchSize, r.cfg.VisibilityTimeout)
	if err != nil {
		return 0, err
	}
	for _, d := range deliveries {
		r.handleDelivery(ctx, d)
	}
	return len(deliveries), nil
}

func (r *Runtime) handleDelivery(ctx context.Context, d *queue.Delivery) {
	log := r.logger.With(
		slog.String("message_id", d.ID),
		slog.String("operation", d.Envelope.Operation),
		slog.String("correlation_id", d.Envelope.CorrelationID),
		slog.Int("dequeue_count", d.DequeueCount))

	r.setStatus(RuntimeWorking, d.ID)
	defer r.setStatus(RuntimeIdle, "")

	if r.cfg.MaxDeliveries > 0 && d.DequeueCount > r.cfg.MaxDeliveries {
		reason := fmt.Sprintf("delivery count %d exceeds limit %d", d.DequeueCount, r.cfg.MaxDeliveries)
		log.Error("poison message, dead-lettering without handling", slog.String("reason", reason))
		r.deadLetter(ctx, d, reason)
		r.recordHandled(queue.Dead)
		return
	}

	start := time.Now()
	hctx := ctx
	if r.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.cfg.HandleTimeout)
		defer cancel()
	}
	disp, err := r.handler(hctx, d)
	metrics.RecordQueueHandle(d.Queue, time.Since(start))

	// Settlement must not be lost to the cancellation that ended the
	// handler.
	sctx := context.WithoutCancel(ctx)
	switch disp {
	case queue.Done:
		if err != nil {
			log.Warn("handler reported done with error", slog.Any("error", err))
		}
		if ackErr := r.queue.Ack(sctx, d); ackErr != nil {
			log.Error("ack failed", slog.Any("error", ackErr))
			return
		}
		log.Info("message handled", slog.Duration("duration", time.Since(start)))
	case queue.Redeliver:
		log.Warn("handler requested immediate redelivery", slog.Any("error", err))
		if abErr := r.queue.Abandon(sctx, d); abErr != nil {
			log.Error("abandon failed", slog.Any("error", abErr))
			return
		}
	case queue.Dead:
		reason := "handler rejected message"
		if err != nil {
			reason = err.Error()
		}
		log.Error("message dead-lettered", slog.String("reason", reason))
		r.deadLetter(sctx, d, reason)
	default:
		// Leave: the visibility timeout re-delivers.
		log.Warn("message left in flight", slog.Any("error", err))
	}
	r.recordHandled(disp)
}

// deadLetter parks the delivery and writes the audit blob. The blob is
// best-effort: losing it must not block settling the message.
func (r *Runtime) deadLetter(ctx context.Context, d *queue.Delivery, reason string) {
	ctx = context.WithoutCancel(ctx)

	if r.audit != nil {
		record := deadLetterRecord{
			Queue:        d.Queue,
			MessageID:    d.ID,
			DequeueCount: d.DequeueCount,
			Reason:       reason,
			DeadAt:       time.Now().UTC().Format(time.RFC3339),
			Envelope:     d.Envelope,
		}
		if data, err := json.Marshal(record); err == nil {
			name := fmt.Sprintf("metadata/deadletter/%s/%d_%s.json", d.Queue, time.Now().UTC().Unix(), d.ID)
			if err := r.audit.Upload(ctx, blob.ContainerCollected, name, data); err != nil {
				r.logger.Warn("dead-letter audit blob failed",
					slog.String("message_id", d.ID),
					slog.Any("error", err))
			}
		}
	}

	if err := r.queue.DeadLetter(ctx, d, reason); err != nil {
		r.logger.Error("dead-letter failed",
			slog.String("message_id", d.ID),
			slog.Any("error", err))
	}
}

func (r *Runtime) recordHandled(disp queue.Disposition) {
	r.mu.Lock()
	r.handled++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.RecordHandled(r.name, disp.String())
	}
}

func (r *Runtime) setStatus(status RuntimeStatus, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.currentID = messageID
	r.lastSeen = time.Now()
}

// sleep waits for the duration or until stop is signalled.
func (r *Runtime) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the idle poll delay with jitter applied, keeping
// identical workers from polling in lockstep.
func (r *Runtime) pollInterval() time.Duration {
	base := r.cfg.PollInterval
	jitter := r.cfg.PollJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
