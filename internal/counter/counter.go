// Package counter issues monotonically increasing sequence numbers per key.
package counter

import (
	"context"
	"sync"
)

type Counter interface {
	Next(ctx context.Context, key string) (int64, error)
}

type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[string]int64)}
}

func (c *MemoryCounter) Next(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]++
	return c.values[key], nil
}
