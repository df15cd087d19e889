package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"qarzhy.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore   { return &userStore{db: s.db} }
func (s *PGStore) Tenants(context.Context) TenantStore { return &tenantStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, tenant_id, phone, name, password_hash, role, active)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.TenantID, u.Phone, u.Name, u.PasswordHash, string(u.Role), u.Active,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, tenant_id, phone, name, password_hash, role, active, created_at, updated_at
		 from users where id=$1`, id))
}

func (s *userStore) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, tenant_id, phone, name, password_hash, role, active, created_at, updated_at
		 from users where phone=$1`, phone))
}

func (s *userStore) scanOne(row *sql.Row) (*User, error) {
	var (
		u        User
		tenantID sql.NullString
		role     string
	)
	if err := row.Scan(&u.ID, &tenantID, &u.Phone, &u.Name, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tenantID.Valid {
		u.TenantID = &tenantID.String
	}
	u.Role = Role(role)
	return &u, nil
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Tenant store -------------------------------------------------------------
type tenantStore struct{ db *sql.DB }

func (s *tenantStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = TenantActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into tenants(id, name, status) values($1,$2,$3)`,
		t.ID, t.Name, string(t.Status),
	)
	return err
}

func (s *tenantStore) Find(ctx context.Context, id string) (*Tenant, error) {
	var (
		t      Tenant
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`select id, name, status, created_at, updated_at from tenants where id=$1`, id,
	).Scan(&t.ID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = TenantStatus(status)
	return &t, nil
}

func (s *tenantStore) SetStatus(ctx context.Context, id string, status TenantStatus) error {
	res, err := s.db.ExecContext(ctx,
		`update tenants set status=$2, updated_at=now() where id=$1`, id, string(status))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Refresh token store -------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

// RotateConsume is the single atomic claim of the rotation flow: the guarded
// update only succeeds while the row is live, so concurrent rotations of the
// same raw token resolve to exactly one winner. Transient connection failures
// get a bounded retry, but only when pgx reports the attempt never reached
// execution; a revoke that may have committed is never replayed, since the
// retry would read its own revocation as a stolen token.
func (s *refreshTokenStore) RotateConsume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error) {
	var tok RefreshToken
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx,
			`update refresh_tokens set revoked=true
			 where token_hash=$1 and revoked=false and expires_at > $2
			 returning id, user_id, token_hash, expires_at, created_at`,
			tokenHash, now,
		).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt)
		if err != nil && pgconn.SafeToRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tok.Revoked = true
	return &tok, nil
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
