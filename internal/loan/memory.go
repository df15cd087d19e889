package loan

import (
	"context"
	"sync"

	"qarzhy.org/internal/sequence"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps loans in memory for tests and dev mode.
type MemoryStore struct {
	mu    sync.Mutex
	loans []*Loan
	alloc *sequence.MemoryAllocator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alloc: sequence.NewMemoryAllocator()}
}

func (s *MemoryStore) Create(ctx context.Context, l *Loan, year int) error {
	value, err := s.alloc.Next(ctx, nil, l.TenantID, year, l.Kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Number = sequence.FormatNumber(l.Kind, year, value)
	cp := *l
	s.loans = append(s.loans, &cp)
	return nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Loan
	for i := len(s.loans) - 1; i >= 0 && len(out) < limit; i-- {
		if s.loans[i].TenantID == tenantID {
			cp := *s.loans[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
