package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "qarzhy"

	tokenTypeAccess = "access"
)

// Service issues and verifies access tokens and manages refresh token
// lifecycle. Stateless apart from refresh-token bookkeeping in the store.
type Service struct {
	store      Store
	now        func() time.Time
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

// Claims embeds the principal triple into a signed access token.
type Claims struct {
	TenantID  *string `json:"tenant_id,omitempty"`
	Role      string  `json:"role"`
	TokenType string  `json:"token_type"`
	jwt.RegisteredClaims
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost configures the password hash cost factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the token service. The signing secret is required.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// BcryptCost returns the configured password hash cost factor.
func (s *Service) BcryptCost() int { return s.bcryptCost }

// SignAccessToken produces a short-lived HS256 token embedding the
// principal triple. Stateless to verify; there is no revocation list, so
// compromise is bounded only by the short expiry.
func (s *Service) SignAccessToken(p Principal) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		TenantID:  p.TenantID,
		Role:      string(p.Role),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature, issuer, type and expiry. Every failure
// is the same Unauthorized; callers never learn which check tripped.
func (s *Service) VerifyAccessToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, apperr.Unauthorized()
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, apperr.Unauthorized()
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return Principal{}, apperr.Unauthorized()
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.TokenType != tokenTypeAccess {
		return Principal{}, apperr.Unauthorized()
	}
	role := Role(claims.Role)
	if strings.TrimSpace(claims.Subject) == "" || !role.Valid() {
		return Principal{}, apperr.Unauthorized()
	}
	return Principal{UserID: claims.Subject, TenantID: claims.TenantID, Role: role}, nil
}

// Login authenticates phone/password credentials and issues a token pair.
// Unknown phone and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, phone, password string) (TokenPair, Principal, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return TokenPair{}, Principal{}, apperr.Unauthorized()
	}
	user, err := s.store.Users(ctx).FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, apperr.Unauthorized()
		}
		return TokenPair{}, Principal{}, apperr.Internal(err)
	}
	if !user.Active {
		return TokenPair{}, Principal{}, apperr.Unauthorized()
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, apperr.Unauthorized()
	}
	if err := s.checkTenant(ctx, user); err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principalOf(user), nil
}

// Rotate exchanges a live refresh token for a fresh pair. The store consumes
// the presented record in the same guarded update that observes it, so a
// concurrent replay of the same raw token fails with Unauthorized.
func (s *Service) Rotate(ctx context.Context, rawToken string) (TokenPair, Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return TokenPair{}, Principal{}, apperr.Unauthorized()
	}
	record, err := s.store.RefreshTokens(ctx).RotateConsume(ctx, HashRefreshToken(rawToken), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, apperr.Unauthorized()
		}
		return TokenPair{}, Principal{}, apperr.Internal(err)
	}
	// The presented token is already burned at this point; an inactive
	// owner still gets the uniform Unauthorized.
	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, apperr.Unauthorized()
		}
		return TokenPair{}, Principal{}, apperr.Internal(err)
	}
	if !user.Active {
		return TokenPair{}, Principal{}, apperr.Unauthorized()
	}
	if err := s.checkTenant(ctx, user); err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principalOf(user), nil
}

// Authenticate verifies a bearer access token and re-checks the user's live
// status against the store. The re-check bounds how long a deactivated user
// can keep using a still-valid access token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.VerifyAccessToken(token)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, apperr.Unauthorized()
		}
		return Principal{}, apperr.Internal(err)
	}
	if !user.Active {
		return Principal{}, apperr.Unauthorized()
	}
	// Build the principal from the live row, not the token, so role and
	// tenant changes take effect within the access-token window.
	return principalOf(user), nil
}

// RevokeAll marks every outstanding refresh token for the user revoked.
// Used on logout, deactivation, password reset and password change.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user id is required")
	}
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Deactivate flips the user inactive and revokes all refresh tokens in the
// same call. Outstanding access tokens die at the freshness re-check.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if err := s.store.Users(ctx).SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}
	return s.RevokeAll(ctx, userID)
}

// ChangePassword rehashes the password and revokes all refresh tokens.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}
	return s.RevokeAll(ctx, userID)
}

func (s *Service) checkTenant(ctx context.Context, user *User) error {
	if user.TenantID == nil {
		if user.Role == RoleSuperAdmin {
			return nil
		}
		return apperr.Unauthorized()
	}
	tenant, err := s.store.Tenants(ctx).Find(ctx, *user.TenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Unauthorized()
		}
		return apperr.Internal(err)
	}
	if tenant.Status != TenantActive {
		return apperr.Forbidden(tenantStatusMessage(tenant.Status))
	}
	return nil
}

func (s *Service) mintTokens(ctx context.Context, user *User) (TokenPair, error) {
	accessToken, accessExp, err := s.SignAccessToken(principalOf(user))
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	raw, record, err := s.generateRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     raw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// generateRefreshToken returns the raw opaque token exactly once; only its
// hash is persisted.
func (s *Service) generateRefreshToken(userID string) (string, *RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	record := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: HashRefreshToken(raw),
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}
	return raw, record, nil
}

// HashRefreshToken returns the SHA-256 hex digest of a raw refresh token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func principalOf(user *User) Principal {
	return Principal{UserID: user.ID, TenantID: user.TenantID, Role: user.Role}
}

func tenantStatusMessage(status TenantStatus) string {
	switch status {
	case TenantSuspended:
		return "Tenant is suspended"
	case TenantDeactivated:
		return "Tenant is deactivated"
	default:
		return "Tenant is not active"
	}
}
