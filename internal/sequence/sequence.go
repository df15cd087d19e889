// Package sequence hands out monotonically increasing, gapless-per-key
// integers used to mint human-readable business identifiers. One counter
// exists per (tenant, year, kind); counters are never deleted and values are
// never reused. A gap can only appear when the transaction that consumed a
// value aborts, which is the accepted trade-off for allocating inside the
// creating transaction.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
)

// Kind selects the counter family and the identifier prefix.
type Kind string

const (
	KindMonthly Kind = "MONTHLY"
	KindWeekly  Kind = "WEEKLY"
	KindDaily   Kind = "DAILY"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	switch k {
	case KindMonthly, KindWeekly, KindDaily:
		return true
	}
	return false
}

// Prefix returns the two-letter identifier prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindMonthly:
		return "ML"
	case KindWeekly:
		return "WL"
	case KindDaily:
		return "DL"
	default:
		return "XX"
	}
}

// Querier is satisfied by *sql.DB and *sql.Tx. Allocations that number an
// entity creation must run on the creating transaction so an abort discards
// the value along with the row.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Allocator returns the next value for a counter key.
type Allocator interface {
	Next(ctx context.Context, q Querier, tenantID string, year int, kind Kind) (int64, error)
}

// FormatNumber renders an allocated value as the human-facing identifier,
// e.g. ML-2026-0001.
func FormatNumber(kind Kind, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%04d", kind.Prefix(), year, value)
}
