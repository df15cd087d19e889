package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/idempotency"
	"qarzhy.org/internal/loan"
	"qarzhy.org/internal/obs"
)

const defaultMaxBodyBytes = 1 << 20

// API binds the HTTP surface to the services behind it.
type API struct {
	auth    *auth.Service
	store   auth.Store
	loans   *loan.Service
	idem    idempotency.Store
	idemTTL time.Duration

	db      *sql.DB // nil in memory mode; /readyz then only checks liveness
	version string

	rateLimitPerSecond int
	rateLimitBurst     int
}

// Option tweaks API construction.
type Option func(*API)

// WithDB attaches the database handle used by the readiness probe.
func WithDB(db *sql.DB) Option {
	return func(a *API) { a.db = db }
}

// WithVersion sets the version string reported by the health endpoints.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithRateLimit overrides the per-IP token bucket parameters.
func WithRateLimit(perSecond, burst int) Option {
	return func(a *API) {
		a.rateLimitPerSecond = perSecond
		a.rateLimitBurst = burst
	}
}

// WithIdempotencyTTL overrides how long recorded responses stay replayable.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(a *API) { a.idemTTL = ttl }
}

// New assembles the API.
func New(authSvc *auth.Service, store auth.Store, loans *loan.Service, idem idempotency.Store, opts ...Option) *API {
	a := &API{
		auth:               authSvc,
		store:              store,
		loans:              loans,
		idem:               idem,
		idemTTL:            24 * time.Hour,
		version:            "dev",
		rateLimitPerSecond: 50,
		rateLimitBurst:     100,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the full route tree with middleware applied.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, defaultMaxBodyBytes) })
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.rateLimitPerSecond, a.rateLimitBurst)
	})

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/refresh", a.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/me", a.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Use(a.withTenant)
			r.With(requireRoles(auth.RoleAdmin, auth.RoleCollector), a.withIdempotency).
				Post("/loans", a.handleCreateLoan)
			r.With(requireRoles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleCollector)).
				Get("/loans", a.handleListLoans)
		})
	})

	return r
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, envelope{
				Success: false,
				Error:   &errorBody{Code: "NOT_READY", Message: "database unreachable"},
			})
			return
		}
	}
	writeData(w, http.StatusOK, map[string]any{"status": "ready"})
}
