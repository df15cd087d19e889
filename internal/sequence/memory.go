package sequence

import (
	"context"
	"fmt"
	"sync"
)

var _ Allocator = (*MemoryAllocator)(nil)

// MemoryAllocator implements Allocator in memory for tests and dev mode.
// It ignores the Querier since there is no transaction to join.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(_ context.Context, _ Querier, tenantID string, year int, kind Kind) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := fmt.Sprintf("%s/%d/%s", tenantID, year, kind)
	a.counters[key]++
	return a.counters[key], nil
}
