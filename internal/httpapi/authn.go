package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"qarzhy.org/internal/apperr"
	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/obs"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// withAuth is the authentication gate: bearer-header syntax, token
// verification and the freshness re-check, all inside the auth service. The
// resulting principal is bound into the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.IncAuthFailure("authn")
			writeErr(w, r, apperr.Unauthorized())
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if apperr.IsKind(err, apperr.KindUnauthorized) {
				obs.IncAuthFailure("authn")
			}
			writeErr(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withTenant is the tenant gate: SUPER_ADMIN passes with no tenant bound;
// everyone else needs an ACTIVE tenant, which is then bound for row-level
// filtering downstream. Tenant status reads are authorization-only, so a
// relaxed read is fine: staleness delays enforcement, never corrupts it.
func (a *API) withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			obs.IncAuthFailure("tenant")
			writeErr(w, r, apperr.Unauthorized())
			return
		}
		if principal.Role == auth.RoleSuperAdmin && principal.TenantID == nil {
			next.ServeHTTP(w, r)
			return
		}
		if principal.TenantID == nil {
			obs.IncAuthFailure("tenant")
			writeErr(w, r, apperr.Unauthorized())
			return
		}
		tenant, err := a.store.Tenants(r.Context()).Find(r.Context(), *principal.TenantID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				obs.IncAuthFailure("tenant")
				writeErr(w, r, apperr.Unauthorized())
				return
			}
			writeErr(w, r, apperr.Internal(err))
			return
		}
		if tenant.Status != auth.TenantActive {
			obs.IncAuthFailure("tenant")
			writeErr(w, r, apperr.Forbidden(tenantStatusMessage(tenant.Status)))
			return
		}
		ctx := auth.ContextWithTenant(r.Context(), tenant.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles is the role gate: a declarative capability list per route.
// Pure membership check, no I/O.
func requireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				obs.IncAuthFailure("role")
				writeErr(w, r, apperr.Unauthorized())
				return
			}
			if _, ok := allowed[principal.Role]; !ok {
				obs.IncAuthFailure("role")
				writeErr(w, r, apperr.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func tenantStatusMessage(status auth.TenantStatus) string {
	switch status {
	case auth.TenantSuspended:
		return "Tenant is suspended"
	case auth.TenantDeactivated:
		return "Tenant is deactivated"
	default:
		return "Tenant is not active"
	}
}
