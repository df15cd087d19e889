package loan

import (
	"context"
	"database/sql"
	"time"

	"github.com/sethvargo/go-retry"

	"qarzhy.org/internal/sequence"
)

var _ Store = (*PGStore)(nil)

// PGStore persists loans on PostgreSQL. The number allocation runs on the
// same transaction as the insert, and a serialization failure or deadlock
// aborts that transaction wholesale, so the bounded retry wraps the whole
// begin-allocate-insert-commit unit rather than any single statement.
type PGStore struct {
	db    *sql.DB
	alloc sequence.Allocator
}

func NewPGStore(db *sql.DB, alloc sequence.Allocator) *PGStore {
	return &PGStore{db: db, alloc: alloc}
}

func (s *PGStore) Create(ctx context.Context, l *Loan, year int) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.createOnce(ctx, l, year)
		if err != nil && sequence.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *PGStore) createOnce(ctx context.Context, l *Loan, year int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	value, err := s.alloc.Next(ctx, tx, l.TenantID, year, l.Kind)
	if err != nil {
		return err
	}
	l.Number = sequence.FormatNumber(l.Kind, year, value)

	if _, err := tx.ExecContext(ctx,
		`insert into loans(id, tenant_id, number, customer_name, amount, kind, created_by, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.ID, l.TenantID, l.Number, l.CustomerName, l.Amount, string(l.Kind), l.CreatedBy, l.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Loan, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, tenant_id, number, customer_name, amount, kind, created_by, created_at
		 from loans where tenant_id=$1 order by created_at desc limit $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*Loan
	for rows.Next() {
		var (
			l    Loan
			kind string
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Number, &l.CustomerName, &l.Amount, &kind, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Kind = sequence.Kind(kind)
		loans = append(loans, &l)
	}
	return loans, rows.Err()
}
