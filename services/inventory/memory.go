package inventory

import (
	"context"
	"sync"
)

// MemoryBackend keeps the inventory in process. Writes counts persisted writes.
type MemoryBackend struct {
	mu     sync.Mutex
	data   Data
	writes int
}

// NewMemoryBackend returns a backend seeded with d.
func NewMemoryBackend(d Data) *MemoryBackend {
	return &MemoryBackend{data: d.Clone()}
}

func (b *MemoryBackend) Read(ctx context.Context) (Data, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data.Clone(), nil
}

func (b *MemoryBackend) Write(ctx context.Context, d Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = d.Clone()
	b.writes++
	return nil
}

// Writes returns how many times the inventory was persisted.
func (b *MemoryBackend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
