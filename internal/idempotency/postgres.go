package idempotency

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The primary key on the key column
// stands in for a lock: the ON CONFLICT DO NOTHING insert is the atomic
// check-and-claim.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Claim(ctx context.Context, rec *Record) (ClaimResult, error) {
	res, err := s.db.ExecContext(ctx,
		`insert into idempotency_keys(key, tenant_id, user_id, expires_at)
		 values($1,$2,$3,$4)
		 on conflict (key) do nothing`,
		rec.Key, rec.TenantID, rec.UserID, rec.ExpiresAt,
	)
	if err != nil {
		return ClaimResult{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ClaimResult{}, err
	}
	if n == 1 {
		return ClaimResult{Claimed: true}, nil
	}

	var (
		existing Record
		status   sql.NullInt64
		body     []byte
	)
	err = s.db.QueryRowContext(ctx,
		`select key, tenant_id, user_id, expires_at, response_status, response_body, created_at
		 from idempotency_keys where key=$1`, rec.Key,
	).Scan(&existing.Key, &existing.TenantID, &existing.UserID, &existing.ExpiresAt, &status, &body, &existing.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// Deleted between insert and read; Resolve re-claims.
			return ClaimResult{}, nil
		}
		return ClaimResult{}, err
	}
	if status.Valid {
		existing.ResponseStatus = int(status.Int64)
	}
	existing.ResponseBody = body
	return ClaimResult{Existing: &existing}, nil
}

func (s *PGStore) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`update idempotency_keys set response_status=$2, response_body=$3 where key=$1`,
		key, status, body,
	)
	return err
}

// DeleteExpired carries its expiry guard into the statement, so the check and
// the delete are one atomic operation against the current row.
func (s *PGStore) DeleteExpired(ctx context.Context, key string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`delete from idempotency_keys where key=$1 and expires_at <= $2`, key, now)
	return err
}

func (s *PGStore) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from idempotency_keys where key=$1`, key)
	return err
}
