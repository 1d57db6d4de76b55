package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, "test-queue")
}

func testEnvelope(t *testing.T, operation string) *Envelope {
	t.Helper()
	env, err := NewEnvelope(operation, "collector", "corr-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	return env
}

func TestRedisSendReceiveAck(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "process_topic", got[0].Envelope.Operation)
	assert.Equal(t, "corr-1", got[0].Envelope.CorrelationID)
	assert.Equal(t, 1, got[0].DequeueCount)

	require.NoError(t, q.Ack(ctx, got[0]))

	got, err = q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got, "acked message must not come back")
}

func TestRedisReceivePreservesOrder(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "first")))
	require.NoError(t, q.Send(ctx, testEnvelope(t, "second")))

	got, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Envelope.Operation)
	assert.Equal(t, "second", got[1].Envelope.Operation)
}

func TestRedisReceiveRespectsMax(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Send(ctx, testEnvelope(t, "op")))
	}

	got, err := q.Receive(ctx, 2, time.Minute)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestRedisReceiveKeepsClaimInFlight(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// The claim moves the id list->zset in one step: it must already be
	// tracked in flight, never parked in neither structure.
	pending, err := q.client.LLen(ctx, q.pendingKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)

	score, err := q.client.ZScore(ctx, q.inflightKey(), got[0].ID).Result()
	require.NoError(t, err, "claimed id must be in the in-flight set")
	assert.Greater(t, score, float64(time.Now().UnixMilli()))
}

func TestRedisReceiveClearsOrphanedIDs(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "stale")))
	require.NoError(t, q.Send(ctx, testEnvelope(t, "intact")))

	// A body lost to manual cleanup leaves its id listed as pending.
	ids, err := q.client.LRange(ctx, q.pendingKey(), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NoError(t, q.client.HDel(ctx, q.bodiesKey(), ids[1]).Err())

	got, err := q.Receive(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "intact", got[0].Envelope.Operation)

	// The orphan is cleared from both structures, not left in flight.
	inflight, err := q.client.ZRange(ctx, q.inflightKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{got[0].ID}, inflight)
}

func TestRedisVisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Not visible while the first delivery is in flight... but the
	// deadline is 1ms, so wait it out.
	time.Sleep(20 * time.Millisecond)

	redelivered, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, got[0].ID, redelivered[0].ID)
	assert.Equal(t, 2, redelivered[0].DequeueCount)
}

func TestRedisInFlightMessageIsInvisible(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)

	second, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRedisAbandonRedeliversImmediately(t *testing.T) {
	ctx := context.Background()
	_, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, q.Abandon(ctx, got[0]))

	redelivered, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, 2, redelivered[0].DequeueCount)
}

func TestRedisDeadLetter(t *testing.T) {
	ctx := context.Background()
	mr, q := newTestRedisQueue(t)

	require.NoError(t, q.Send(ctx, testEnvelope(t, "process_topic")))

	got, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, q.DeadLetter(ctx, got[0], "malformed payload"))

	// Gone from the live queue.
	remaining, err := q.Receive(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Parked on the dead list with the reason attached.
	raw, err := mr.Lpop("queue:test-queue:dead")
	require.NoError(t, err)

	var dead DeadMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &dead))
	assert.Equal(t, "malformed payload", dead.Reason)
	assert.Equal(t, "process_topic", dead.Envelope.Operation)
	assert.NotEmpty(t, dead.DeadAt)
}
