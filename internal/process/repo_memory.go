package process

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	reqs map[string]Request
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{reqs: map[string]Request{}} }

func (m *MemoryRepo) Create(ctx context.Context, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[r.ID] = r
	return nil
}

func (m *MemoryRepo) Update(ctx context.Context, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reqs[r.ID]; !ok {
		return ErrNotFound
	}
	m.reqs[r.ID] = r
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}
