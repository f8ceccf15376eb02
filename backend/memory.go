package backend

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Memory is an in-process Backend implementation.
// It serves as an L0 hot tier in front of slower storage and as a test
// double. Thread-safe for concurrent reads and writes.
type Memory struct {
	mu        sync.RWMutex
	records   map[string][]byte
	transient TransientSet
}

// NewMemory creates an empty in-memory tier.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string][]byte),
	}
}

// Name implements Backend.
func (m *Memory) Name() string { return "memory" }

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[key]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, true
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, key string, data []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !overwrite {
		if _, exists := m.records[key]; exists {
			return nil
		}
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	m.records[key] = copied
	return nil
}

// Remove implements Backend.
func (m *Memory) Remove(_ context.Context, key string, transientOnly bool) error {
	if transientOnly && !m.transient.Has(key) {
		return nil
	}

	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()

	m.transient.Forget(key)
	return nil
}

// MarkTransient implements Backend.
func (m *Memory) MarkTransient(_ context.Context, key string) {
	m.transient.Mark(key)
}

// ProbablyExists implements Backend.
func (m *Memory) ProbablyExists(_ context.Context, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.records[key]
	return ok
}

// ProbablyExistsBatch implements Backend.
func (m *Memory) ProbablyExistsBatch(_ context.Context, keys []string) *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bm := roaring.New()
	for i, key := range keys {
		if _, ok := m.records[key]; ok {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// TryToPrefetch implements Backend. Memory has nothing faster to warm.
func (m *Memory) TryToPrefetch(context.Context, []string) bool {
	return false
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}
