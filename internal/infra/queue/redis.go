package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"contentmill/internal/observability/metrics"
)

// redisEntry is the stored form of a message. The body lives in a hash
// keyed by id; the pending list and in-flight set carry only ids.
type redisEntry struct {
	ID           string    `json:"id"`
	DequeueCount int       `json:"dequeue_count"`
	Envelope     *Envelope `json:"envelope"`
}

// Redis is a Queue backed by a Redis list plus an in-flight sorted set
// scored by visibility deadline. Receive first requeues entries whose
// deadline has passed, so crashed consumers never lose messages.
type Redis struct {
	client *redis.Client
	name   string
}

// claimScript pops one id from the pending list and marks it in flight in
// the same Redis command, so an id is always in exactly one of the two
// structures. A consumer that dies right after the claim leaves the id in
// the in-flight set, where requeueExpired recovers it.
var claimScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)

// NewRedis wraps an existing client. The client's lifecycle belongs to
// the caller.
func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{client: client, name: name}
}

func (q *Redis) pendingKey() string  { return "queue:" + q.name }
func (q *Redis) inflightKey() string { return "queue:" + q.name + ":inflight" }
func (q *Redis) bodiesKey() string   { return "queue:" + q.name + ":bodies" }
func (q *Redis) deadKey() string     { return "queue:" + q.name + ":dead" }

// Send implements Queue.
func (q *Redis) Send(ctx context.Context, env *Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	entry := redisEntry{ID: uuid.New().String(), Envelope: env}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling queue entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.bodiesKey(), entry.ID, body)
	pipe.LPush(ctx, q.pendingKey(), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sending to queue %s: %w", q.name, err)
	}

	metrics.RecordQueueSend(q.name, env.Operation)
	return nil
}

// Receive implements Queue.
func (q *Redis) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error) {
	if err := q.requeueExpired(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(visibility).UnixMilli()
	var out []*Delivery
	for len(out) < max {
		res, err := claimScript.Run(ctx, q.client,
			[]string{q.pendingKey(), q.inflightKey()}, deadline).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("claiming from queue %s: %w", q.name, err)
		}
		id, ok := res.(string)
		if !ok {
			return out, fmt.Errorf("claiming from queue %s: unexpected reply %T", q.name, res)
		}

		entry, err := q.loadEntry(ctx, id)
		if err != nil {
			// Body missing for a claimed id; clear the orphan from the
			// in-flight set and move on.
			q.client.ZRem(ctx, q.inflightKey(), id)
			continue
		}
		entry.DequeueCount++
		if err := q.storeEntry(ctx, entry); err != nil {
			// The id stays in flight; the reaper redelivers it once the
			// visibility deadline passes.
			return out, err
		}

		out = append(out, &Delivery{
			Envelope:     entry.Envelope,
			Queue:        q.name,
			ID:           id,
			DequeueCount: entry.DequeueCount,
		})
	}

	metrics.RecordQueueReceive(q.name, len(out))
	return out, nil
}

// requeueExpired moves in-flight entries whose visibility deadline has
// passed back to the head of the pending list.
func (q *Redis) requeueExpired(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("scanning expired deliveries on queue %s: %w", q.name, err)
	}
	if len(ids) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey(), id)
		pipe.RPush(ctx, q.pendingKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeuing expired deliveries on queue %s: %w", q.name, err)
	}
	return nil
}

func (q *Redis) loadEntry(ctx context.Context, id string) (*redisEntry, error) {
	body, err := q.client.HGet(ctx, q.bodiesKey(), id).Result()
	if err != nil {
		return nil, fmt.Errorf("loading entry %s on queue %s: %w", id, q.name, err)
	}
	var entry redisEntry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return nil, fmt.Errorf("decoding entry %s on queue %s: %w", id, q.name, err)
	}
	return &entry, nil
}

func (q *Redis) storeEntry(ctx context.Context, entry *redisEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry %s: %w", entry.ID, err)
	}
	if err := q.client.HSet(ctx, q.bodiesKey(), entry.ID, body).Err(); err != nil {
		return fmt.Errorf("storing entry %s on queue %s: %w", entry.ID, q.name, err)
	}
	return nil
}

// Ack implements Queue.
func (q *Redis) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), d.ID)
	pipe.HDel(ctx, q.bodiesKey(), d.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acking %s on queue %s: %w", d.ID, q.name, err)
	}
	metrics.RecordQueueCompleted(q.name)
	return nil
}

// Abandon implements Queue. The message is pushed to the tail of the
// pending list so it is the next one delivered.
func (q *Redis) Abandon(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), d.ID)
	pipe.RPush(ctx, q.pendingKey(), d.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("abandoning %s on queue %s: %w", d.ID, q.name, err)
	}
	return nil
}

// DeadLetter implements Queue.
func (q *Redis) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	dead := DeadMessage{
		Envelope: d.Envelope,
		Reason:   reason,
		DeadAt:   time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshaling dead letter %s: %w", d.ID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), d.ID)
	pipe.HDel(ctx, q.bodiesKey(), d.ID)
	pipe.LPush(ctx, q.deadKey(), body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-lettering %s on queue %s: %w", d.ID, q.name, err)
	}

	metrics.RecordQueueDeadLettered(q.name, reason)
	return nil
}

// Len reports the number of pending (visible) messages.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring queue %s: %w", q.name, err)
	}
	return n, nil
}
