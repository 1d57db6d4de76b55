// Package lease provides distributed topic leases so at-least-once queue
// delivery cannot put two processors to work on the same topic at once.
package lease

import (
	"context"
	"time"
)

// Store grants exclusive, expiring ownership of a key.
type Store interface {
	// Acquire grants the lease on key to owner for ttl. It returns false
	// when a live lease by a different owner exists. Re-acquiring one's
	// own lease extends it.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release frees the lease if owner still holds it. Releasing a lease
	// held by someone else, or an expired one, is a no-op.
	Release(ctx context.Context, key, owner string) error

	// Owner reports the current holder, or false when the key is free.
	Owner(ctx context.Context, key string) (string, bool, error)
}
