package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentmill/internal/observability/metrics"
)

type memoryMessage struct {
	id         string
	env        *Envelope
	visibleAt  time.Time
	dequeues   int
	deadReason string
}

// Memory is an in-process Queue with visibility timeout emulation,
// used by tests and single-binary development setups.
type Memory struct {
	name string

	mu      sync.Mutex
	pending []*memoryMessage
	dead    []*memoryMessage

	// now is swappable so tests can step time instead of sleeping.
	now func() time.Time
}

// NewMemory returns an empty in-memory queue with the given name.
func NewMemory(name string) *Memory {
	return &Memory{name: name, now: time.Now}
}

// Send implements Queue.
func (q *Memory) Send(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := env.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	q.pending = append(q.pending, &memoryMessage{
		id:        uuid.New().String(),
		env:       env,
		visibleAt: q.now(),
	})
	q.mu.Unlock()

	metrics.RecordQueueSend(q.name, env.Operation)
	return nil
}

// Receive implements Queue.
func (q *Memory) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*Delivery
	for _, m := range q.pending {
		if len(out) >= max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(visibility)
		m.dequeues++
		out = append(out, &Delivery{
			Envelope:     m.env,
			Queue:        q.name,
			ID:           m.id,
			DequeueCount: m.dequeues,
		})
	}
	metrics.RecordQueueReceive(q.name, len(out))
	return out, nil
}

// Ack implements Queue.
func (q *Memory) Ack(ctx context.Context, d *Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.pending {
		if m.id == d.ID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			metrics.RecordQueueCompleted(q.name)
			return nil
		}
	}
	return fmt.Errorf("ack %s on queue %s: message not in flight", d.ID, q.name)
}

// Abandon implements Queue.
func (q *Memory) Abandon(ctx context.Context, d *Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.pending {
		if m.id == d.ID {
			m.visibleAt = q.now()
			return nil
		}
	}
	return fmt.Errorf("abandon %s on queue %s: message not in flight", d.ID, q.name)
}

// DeadLetter implements Queue.
func (q *Memory) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.pending {
		if m.id == d.ID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			m.deadReason = reason
			q.dead = append(q.dead, m)
			metrics.RecordQueueDeadLettered(q.name, reason)
			return nil
		}
	}
	return fmt.Errorf("dead-letter %s on queue %s: message not in flight", d.ID, q.name)
}

// Len reports how many messages are pending or in flight.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters returns the dead-lettered envelopes with their reasons.
func (q *Memory) DeadLetters() []DeadMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadMessage, 0, len(q.dead))
	for _, m := range q.dead {
		out = append(out, DeadMessage{Envelope: m.env, Reason: m.deadReason})
	}
	return out
}
