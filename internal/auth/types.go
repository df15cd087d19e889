package auth

import "time"

// Role is the closed capability set a user holds. SUPER_ADMIN operates
// platform-wide and carries no tenant; ADMIN and COLLECTOR are always
// tenant-scoped.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleCollector  Role = "COLLECTOR"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleCollector:
		return true
	}
	return false
}

// TenantStatus gates every tenant-scoped operation.
type TenantStatus string

const (
	TenantActive      TenantStatus = "ACTIVE"
	TenantSuspended   TenantStatus = "SUSPENDED"
	TenantDeactivated TenantStatus = "DEACTIVATED"
)

// User is an operator account. TenantID is nil only for SUPER_ADMIN.
type User struct {
	ID           string
	TenantID     *string
	Phone        string
	Name         string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        string
	Name      string
	Status    TenantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshToken is the persisted bookkeeping for an opaque refresh token.
// Only the SHA-256 hash of the raw token is stored; rows are revoked, never
// hard-deleted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Live reports whether the token can still be rotated at the given instant.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Principal is the authenticated identity derived per request. It is never
// persisted as a session.
type Principal struct {
	UserID   string
	TenantID *string
	Role     Role
}

// TokenPair bundles a fresh access/refresh issuance.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
