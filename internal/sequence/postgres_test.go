package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGAllocatorNext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	for _, want := range []int64{1, 2, 3} {
		mock.ExpectQuery(`insert into sequence_counters`).
			WithArgs("T1", 2026, "MONTHLY").
			WillReturnRows(sqlmock.NewRows([]string{"current_value"}).AddRow(want))
	}

	alloc := NewPGAllocator()
	for _, want := range []int64{1, 2, 3} {
		got, err := alloc.Next(context.Background(), db, "T1", 2026, KindMonthly)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGAllocatorRetriesSerializationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnError(serialization)
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnRows(sqlmock.NewRows([]string{"current_value"}).AddRow(7))

	alloc := NewPGAllocator()
	got, err := alloc.Next(context.Background(), db, "T1", 2026, KindMonthly)
	if err != nil {
		t.Fatalf("Next after retry: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGAllocatorSurfacesPermanentErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	permanent := errors.New("relation does not exist")
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnError(permanent)

	alloc := NewPGAllocator()
	if _, err := alloc.Next(context.Background(), db, "T1", 2026, KindMonthly); !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error to surface once, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGAllocatorInTxSurfacesTransientErrorOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	mock.ExpectBegin()
	// A single expectation: once the transaction is aborted, re-running the
	// statement can only fail, so the allocator must not retry here. The
	// transaction owner retries the whole unit.
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnError(serialization)
	mock.ExpectRollback()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	alloc := NewPGAllocator()
	var pgErr *pgconn.PgError
	if _, err := alloc.Next(context.Background(), tx, "T1", 2026, KindMonthly); !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Fatalf("expected the serialization failure to surface unchanged, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGAllocatorGivesUpAfterBoundedRetries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	// Initial attempt plus three retries.
	for i := 0; i < 4; i++ {
		mock.ExpectQuery(`insert into sequence_counters`).
			WithArgs("T1", 2026, "MONTHLY").
			WillReturnError(deadlock)
	}

	alloc := NewPGAllocator()
	var pgErr *pgconn.PgError
	_, err = alloc.Next(context.Background(), db, "T1", 2026, KindMonthly)
	if !errors.As(err, &pgErr) || pgErr.Code != "40P01" {
		t.Fatalf("expected deadlock error after bounded retries, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
