// Package ids mints the primary keys for every stored row: users, tenants,
// refresh tokens and loans. These are ULIDs, so a row's key carries its
// creation time in the prefix and "order by id" agrees with "order by
// created_at" — loan listings rely on that. The human-facing loan number
// (ML-2026-0001 style) is minted elsewhere, by the sequence allocator.
package ids

import (
	crand "crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(crand.Reader, 0)
)

// New returns the next identifier. The monotonic entropy keeps ids minted
// within the same millisecond strictly increasing in this process.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
