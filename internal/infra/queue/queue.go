// Package queue provides the message transport between pipeline stages.
// Every message travels inside the shared envelope; consumers must
// tolerate unknown payload fields so stages can evolve independently.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue names. Producer and consumer pairs are fixed per stage.
const (
	// QueueCollectionRequests carries cron wake-ups from the orchestrator
	// to the collector.
	QueueCollectionRequests = "content-collection-requests"

	// QueueProcessingRequests carries topic messages from the collector
	// to the processor.
	QueueProcessingRequests = "content-processing-requests"

	// QueueMarkdownRequests carries markdown jobs from the processor
	// to the renderer.
	QueueMarkdownRequests = "markdown-generation-requests"

	// QueuePublishRequests carries site build jobs from the renderer
	// to the publisher.
	QueuePublishRequests = "site-publishing-requests"
)

// ErrEmptyQueue is returned by backends that cannot block on Receive.
var ErrEmptyQueue = errors.New("queue is empty")

// Envelope is the wire format shared by all queues.
type Envelope struct {
	Operation     string          `json:"operation"`
	ServiceName   string          `json:"service_name"`
	Timestamp     string          `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps the envelope with the current
// UTC time in RFC3339.
func NewEnvelope(operation, serviceName, correlationID string, payload any) (*Envelope, error) {
	if operation == "" {
		return nil, fmt.Errorf("envelope operation is empty")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", operation, err)
	}
	return &Envelope{
		Operation:     operation,
		ServiceName:   serviceName,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the payload into v. Unknown fields in the
// payload are tolerated.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope %s has no payload", e.Operation)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Operation, err)
	}
	return nil
}

// Validate checks the envelope invariants shared by all consumers.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope is nil")
	}
	if e.Operation == "" {
		return fmt.Errorf("envelope operation is empty")
	}
	return nil
}

// Delivery is a received message plus the backend receipt needed to
// settle it. DequeueCount counts deliveries including this one, so
// consumers can dead-letter poison messages.
type Delivery struct {
	Envelope     *Envelope
	Queue        string
	ID           string
	DequeueCount int
}

// DeadMessage is a dead-lettered envelope with the reason it was parked.
type DeadMessage struct {
	Envelope *Envelope `json:"envelope"`
	Reason   string    `json:"reason"`
	DeadAt   string    `json:"dead_at,omitempty"`
}

// Queue is a single named message queue.
//
// Receive makes up to max invisible messages visible to this consumer
// for the visibility duration; messages neither acked nor dead-lettered
// become deliverable again after it elapses. Abandon makes a message
// deliverable again immediately.
type Queue interface {
	Send(ctx context.Context, env *Envelope) error
	Receive(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Abandon(ctx context.Context, d *Delivery) error
	DeadLetter(ctx context.Context, d *Delivery, reason string) error
}
