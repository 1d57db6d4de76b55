package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*Memory)(nil)
var _ Store = (*Redis)(nil)

func TestMemoryAcquireAndConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.Acquire(ctx, "topic-1", "proc-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Acquire(ctx, "topic-1", "proc-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease by another owner must be refused")

	owner, held, err := s.Owner(ctx, "topic-1")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "proc-a", owner)
}

func TestMemoryReacquireExtendsOwnLease(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.Acquire(ctx, "topic-1", "proc-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(ctx, "topic-1", "proc-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, s.leases["topic-1"].expires.After(time.Now().Add(30*time.Minute)))
}

func TestMemoryExpiredLeaseIsClaimable(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	base := time.Now()
	s.now = func() time.Time { return base }

	ok, err := s.Acquire(ctx, "topic-1", "proc-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, held, err := s.Owner(ctx, "topic-1")
	require.NoError(t, err)
	assert.False(t, held, "expired lease must read as free")

	ok, err = s.Acquire(ctx, "topic-1", "proc-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be claimable")
}

func TestMemoryReleaseChecksOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.Acquire(ctx, "topic-1", "proc-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong owner: no-op.
	require.NoError(t, s.Release(ctx, "topic-1", "proc-b"))
	owner, held, err := s.Owner(ctx, "topic-1")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "proc-a", owner)

	// Right owner: freed.
	require.NoError(t, s.Release(ctx, "topic-1", "proc-a"))
	_, held, err = s.Owner(ctx, "topic-1")
	require.NoError(t, err)
	assert.False(t, held)

	// Releasing a free key is fine.
	require.NoError(t, s.Release(ctx, "topic-1", "proc-a"))
}
