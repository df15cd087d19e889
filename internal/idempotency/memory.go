package idempotency

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store in memory for tests and dev mode. Claim runs
// under the store lock, matching the Postgres store's atomicity.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Claim(_ context.Context, rec *Record) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Key]; ok {
		cp := *existing
		return ClaimResult{Existing: &cp}, nil
	}
	cp := *rec
	cp.CreatedAt = time.Now().UTC()
	s.records[rec.Key] = &cp
	return ClaimResult{Claimed: true}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		rec.ResponseStatus = status
		rec.ResponseBody = append([]byte(nil), body...)
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && rec.Expired(now) {
		delete(s.records, key)
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
