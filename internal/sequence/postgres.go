package sequence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

var _ Allocator = (*PGAllocator)(nil)

// PGAllocator implements Allocator with a single insert-or-increment upsert.
// The database's row lock on the conflicting counter row serializes
// concurrent callers per key; no application-level read-modify-write exists
// to race.
type PGAllocator struct {
	maxRetries uint64
	baseDelay  time.Duration
}

func NewPGAllocator() *PGAllocator {
	return &PGAllocator{maxRetries: 3, baseDelay: 50 * time.Millisecond}
}

// Next allocates the successor value. Running inside a caller-supplied
// transaction the statement executes exactly once: after 40001/40P01 Postgres
// aborts the whole transaction, so re-running the statement there only yields
// 25P02. The original failure surfaces instead, and the owner of the
// transaction retries it as a unit. Plain-DB callers get a bounded
// statement-level retry.
func (a *PGAllocator) Next(ctx context.Context, q Querier, tenantID string, year int, kind Kind) (int64, error) {
	if _, inTx := q.(*sql.Tx); inTx {
		return a.nextOnce(ctx, q, tenantID, year, kind)
	}
	var value int64
	backoff := retry.WithMaxRetries(a.maxRetries, retry.NewExponential(a.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := a.nextOnce(ctx, q, tenantID, year, kind)
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		value = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (a *PGAllocator) nextOnce(ctx context.Context, q Querier, tenantID string, year int, kind Kind) (int64, error) {
	var value int64
	err := q.QueryRowContext(ctx,
		`insert into sequence_counters(tenant_id, year, kind, current_value)
		 values($1,$2,$3,1)
		 on conflict (tenant_id, year, kind) do update
		 set current_value = sequence_counters.current_value + 1
		 returning current_value`,
		tenantID, year, string(kind),
	).Scan(&value)
	return value, err
}

// IsTransient matches serialization failures, deadlocks and connection-class
// errors that a bounded retry can reasonably absorb.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}
