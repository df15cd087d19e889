package auth

import (
	"context"
	"sync"
	"time"

	"qarzhy.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and dev mode. It honors
// the same atomicity contract as the Postgres store: RotateConsume claims a
// token under the store lock.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*User
	tenants       map[string]*Tenant
	refreshTokens map[string]*RefreshToken // keyed by token hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		tenants:       make(map[string]*Tenant),
		refreshTokens: make(map[string]*RefreshToken),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore     { return (*memUserStore)(s) }
func (s *MemoryStore) Tenants(context.Context) TenantStore { return (*memTenantStore)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore {
	return (*memRefreshTokenStore)(s)
}

type memUserStore MemoryStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.users {
		if existing.Phone == u.Phone {
			return ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByPhone(_ context.Context, phone string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memTenantStore MemoryStore

func (s *memTenantStore) Create(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if _, ok := s.tenants[t.ID]; ok {
		return ErrAlreadyExists
	}
	if t.Status == "" {
		t.Status = TenantActive
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *memTenantStore) Find(_ context.Context, id string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTenantStore) SetStatus(_ context.Context, id string, status TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

type memRefreshTokenStore MemoryStore

func (s *memRefreshTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	if _, ok := s.refreshTokens[tok.TokenHash]; ok {
		return ErrAlreadyExists
	}
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	s.refreshTokens[tok.TokenHash] = &cp
	return nil
}

func (s *memRefreshTokenStore) RotateConsume(_ context.Context, tokenHash string, now time.Time) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refreshTokens[tokenHash]
	if !ok || !tok.Live(now) {
		return nil, ErrNotFound
	}
	tok.Revoked = true
	cp := *tok
	return &cp, nil
}

func (s *memRefreshTokenStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.refreshTokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}
