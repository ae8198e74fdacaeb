package engine

import (
	"context"
	"slices"
	"sync"
)

// MemoryWatermarks keeps watermarks for the life of the process.
type MemoryWatermarks struct {
	mu      sync.Mutex
	marks   map[string]string
	history []Checkpoint
}

// NewMemoryWatermarks returns an empty in-memory store.
func NewMemoryWatermarks() *MemoryWatermarks {
	return &MemoryWatermarks{marks: make(map[string]string)}
}

func (m *MemoryWatermarks) Watermark(_ context.Context, target string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[target], nil
}

func (m *MemoryWatermarks) Advance(_ context.Context, c Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[c.Target] = c.Patch
	m.history = append(m.history, c)
	return nil
}

// History returns every checkpoint in commit order.
func (m *MemoryWatermarks) History() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// Reset forgets the watermark for target. History is kept.
func (m *MemoryWatermarks) Reset(_ context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, target)
	return nil
}
