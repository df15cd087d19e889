// Package loan is the entity-creation consumer of the trust core: loan rows
// are numbered by the sequence allocator inside the creating transaction and
// reached only through the gate pipeline. Interest and penalty rules live
// downstream and are not modeled here.
package loan

import (
	"context"
	"strings"
	"time"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/ids"
	"qarzhy.org/internal/sequence"
)

// Loan is a disbursed loan header. Number is the human-facing identifier
// minted from the per-(tenant, year, kind) counter, unique per tenant.
type Loan struct {
	ID           string
	TenantID     string
	Number       string
	CustomerName string
	// Amount is the principal in minor currency units.
	Amount    int64
	Kind      sequence.Kind
	CreatedBy string
	CreatedAt time.Time
}

// Store persists loans. Create must allocate the loan number and insert the
// row in one transaction so an aborted insert leaves at worst a gap in the
// counter, never a duplicate number.
type Store interface {
	Create(ctx context.Context, l *Loan, year int) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Loan, error)
}

// CreateInput carries the caller-supplied fields of a loan creation.
type CreateInput struct {
	CustomerName string
	Amount       int64
	Kind         sequence.Kind
}

// Service validates input and delegates to the store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create mints a numbered loan for the bound tenant.
func (s *Service) Create(ctx context.Context, tenantID, createdBy string, in CreateInput) (*Loan, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperr.Validation("tenant scope is required")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, apperr.Validation("customer name is required")
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if !in.Kind.Valid() {
		return nil, apperr.Validation("kind must be one of MONTHLY, WEEKLY, DAILY")
	}

	now := s.now().UTC()
	l := &Loan{
		ID:           ids.New(),
		TenantID:     tenantID,
		CustomerName: strings.TrimSpace(in.CustomerName),
		Amount:       in.Amount,
		Kind:         in.Kind,
		CreatedBy:    createdBy,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, l, now.Year()); err != nil {
		return nil, apperr.From(err)
	}
	return l, nil
}

// List returns the tenant's most recent loans.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]*Loan, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	loans, err := s.store.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, apperr.From(err)
	}
	return loans, nil
}
