package embcache

import (
	"context"
	"sync"
)

// Memory is an in-memory Cache. It never evicts; intended for tests and
// short-lived processes.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]float32)}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]float32, len(emb))
	copy(cp, emb)
	return cp, nil
}

func (m *Memory) Put(_ context.Context, key string, embedding []float32) error {
	cp := make([]float32, len(embedding))
	copy(cp, embedding)
	m.mu.Lock()
	m.entries[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
