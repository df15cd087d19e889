package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Implementations must make RotateConsume atomic per token hash: under
// concurrent rotation attempts with the same raw token exactly one call may
// observe the live record.
type Store interface {
	Users(ctx context.Context) UserStore
	Tenants(ctx context.Context) TenantStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages operator accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TenantStore manages tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	SetStatus(ctx context.Context, id string, status TenantStatus) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error

	// RotateConsume revokes the token identified by hash iff it is
	// non-revoked and non-expired at now, returning the consumed record.
	// ErrNotFound when no live record matches; the guarded update means a
	// second concurrent call for the same hash gets ErrNotFound.
	RotateConsume(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// RevokeAllForUser marks every non-revoked token for the user revoked.
	RevokeAllForUser(ctx context.Context, userID string) error
}
