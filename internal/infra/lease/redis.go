package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contentmill/internal/observability/metrics"
)

// errHeld signals a live lease by a different owner inside a watch.
var errHeld = errors.New("lease held by another owner")

// Redis is a Store backed by SET NX PX. Extension and release run inside
// a WATCH transaction so an expiry racing another processor's claim can
// never be overwritten.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. The client's lifecycle belongs to
// the caller.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "lease:"}
}

func (s *Redis) redisKey(key string) string { return s.prefix + key }

// Acquire implements Store.
func (s *Redis) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.redisKey(key), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	// Key exists: extend when we already hold it, reject otherwise.
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.redisKey(key)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// Expired between SETNX and WATCH; claim it below.
		case err != nil:
			return err
		case current != owner:
			return errHeld
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.redisKey(key), owner, ttl)
			return nil
		})
		return err
	}, s.redisKey(key))

	switch {
	case errors.Is(err, errHeld), errors.Is(err, redis.TxFailedErr):
		metrics.RecordLeaseConflict()
		return false, nil
	case err != nil:
		return false, fmt.Errorf("extending lease %s: %w", key, err)
	}
	return true, nil
}

// Release implements Store.
func (s *Redis) Release(ctx context.Context, key, owner string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.redisKey(key)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != owner {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.redisKey(key))
			return nil
		})
		return err
	}, s.redisKey(key))

	// A failed transaction means another owner claimed the key after our
	// lease expired; their lease must stand.
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("releasing lease %s: %w", key, err)
	}
	return nil
}

// Owner implements Store.
func (s *Redis) Owner(ctx context.Context, key string) (string, bool, error) {
	owner, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading lease %s: %w", key, err)
	}
	return owner, true, nil
}
