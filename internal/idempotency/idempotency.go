// Package idempotency deduplicates retried unsafe requests keyed by a
// client-supplied token. Claiming a key is a single atomic insert-if-absent
// store operation; a separate read followed by a later write would let two
// concurrent first-uses both reach the handler.
package idempotency

import (
	"context"
	"time"

	"qarzhy.org/internal/apperr"
)

// MaxKeyLength bounds the client-chosen key.
const MaxKeyLength = 255

// Record binds a key to the (tenant, user) pair that first used it, together
// with the response recorded once the wrapped handler finished.
type Record struct {
	Key            string
	TenantID       string // empty for platform-scoped principals
	UserID         string
	ExpiresAt      time.Time
	ResponseStatus int // zero until the first attempt records its response
	ResponseBody   []byte
	CreatedAt      time.Time
}

// Completed reports whether the first attempt already recorded its response.
func (r *Record) Completed() bool { return r.ResponseStatus != 0 }

// Expired reports whether the record's retention window has passed.
func (r *Record) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// ClaimResult is the outcome of an atomic claim attempt.
type ClaimResult struct {
	// Claimed is true when this call inserted the record and owns the key.
	Claimed bool
	// Existing is the surviving record when Claimed is false. Nil when the
	// row vanished between the insert and the read; callers re-claim.
	Existing *Record
}

// Store is the persistence contract. Claim must be atomic per key: for any
// set of concurrent calls with the same unused key exactly one returns
// Claimed=true.
type Store interface {
	Claim(ctx context.Context, rec *Record) (ClaimResult, error)
	SaveResponse(ctx context.Context, key string, status int, body []byte) error

	// DeleteExpired removes the record only if its retention window has
	// passed as of now. The guard must be evaluated atomically with the
	// delete: a caller holding a stale view of an expired record can never
	// remove a record that was re-claimed fresh in the meantime.
	DeleteExpired(ctx context.Context, key string, now time.Time) error

	// Release removes the record unconditionally. Only the claim owner may
	// call it, to give the key back after a first attempt that had no effect.
	Release(ctx context.Context, key string) error
}

// Outcome tells the caller how to treat the request.
type Outcome int

const (
	// OutcomeProceed: the key is claimed by this request; run the handler
	// and persist its response under the key.
	OutcomeProceed Outcome = iota
	// OutcomeReplay: return the recorded response verbatim.
	OutcomeReplay
)

// Resolve performs the claim/replay/conflict decision for one request.
// Expired records are lazily deleted and the key re-claimed as fresh.
func Resolve(ctx context.Context, store Store, key, tenantID, userID string, now time.Time, ttl time.Duration) (Outcome, *Record, error) {
	rec := &Record{
		Key:       key,
		TenantID:  tenantID,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
	}
	// Two passes cover the expired-record path: delete, then claim fresh.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := store.Claim(ctx, rec)
		if err != nil {
			return 0, nil, apperr.Internal(err)
		}
		if res.Claimed {
			return OutcomeProceed, rec, nil
		}
		existing := res.Existing
		if existing == nil {
			// Row deleted between insert and read; claim again.
			continue
		}
		if existing.Expired(now) {
			// Prior completion is void once the retention window passed. The
			// delete is expiry-guarded so a slow loser cannot remove the
			// record another request already re-claimed.
			if err := store.DeleteExpired(ctx, key, now); err != nil {
				return 0, nil, apperr.Internal(err)
			}
			continue
		}
		if existing.TenantID != tenantID || existing.UserID != userID {
			return 0, nil, apperr.Conflict("idempotency key already used by another principal")
		}
		if existing.Completed() {
			return OutcomeReplay, existing, nil
		}
		// Same principal, first attempt still in flight. Answering 409
		// keeps the at-most-one guarantee instead of racing the handler.
		return 0, nil, apperr.Conflict("request with this idempotency key is still being processed")
	}
	return 0, nil, apperr.Conflict("idempotency key could not be claimed")
}

// ValidateKey enforces the presence and length bounds of a client key.
func ValidateKey(key string) error {
	if key == "" {
		return apperr.Validation("Idempotency-Key header is required")
	}
	if len(key) > MaxKeyLength {
		return apperr.Validation("Idempotency-Key must be at most 255 characters")
	}
	return nil
}
