package lease

import (
	"context"
	"sync"
	"time"

	"contentmill/internal/observability/metrics"
)

type memoryLease struct {
	owner   string
	expires time.Time
}

// Memory is an in-process Store for tests and single-node runs.
type Memory struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

// NewMemory creates an empty in-memory lease store.
func NewMemory() *Memory {
	return &Memory{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

// Acquire implements Store.
func (s *Memory) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leases[key]
	if ok && current.owner != owner && s.now().Before(current.expires) {
		metrics.RecordLeaseConflict()
		return false, nil
	}

	s.leases[key] = memoryLease{owner: owner, expires: s.now().Add(ttl)}
	return true, nil
}

// Release implements Store.
func (s *Memory) Release(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.leases[key]; ok && current.owner == owner {
		delete(s.leases, key)
	}
	return nil
}

// Owner implements Store.
func (s *Memory) Owner(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leases[key]
	if !ok || !s.now().Before(current.expires) {
		return "", false, nil
	}
	return current.owner, true, nil
}
