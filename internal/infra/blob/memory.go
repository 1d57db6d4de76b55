package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store for tests and single-process development.
type Memory struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{containers: make(map[string]map[string][]byte)}
}

// Upload implements Store.
func (s *Memory) Upload(ctx context.Context, container, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateContainer(container); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[container]
	if !ok {
		c = make(map[string][]byte)
		s.containers[container] = c
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c[name] = buf
	return nil
}

// Download implements Store.
func (s *Memory) Download(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.containers[container][name]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// List implements Store.
func (s *Memory) List(ctx context.Context, container, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.containers[container] {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Store.
func (s *Memory) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.containers[container][name]
	return ok, nil
}

// Delete implements Store.
func (s *Memory) Delete(ctx context.Context, container, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[container]
	if !ok {
		return fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	if _, ok := c[name]; !ok {
		return fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	delete(c, name)
	return nil
}
