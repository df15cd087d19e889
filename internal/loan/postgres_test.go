package loan

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"qarzhy.org/internal/sequence"
)

func TestPGCreateAllocatesAndInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnRows(sqlmock.NewRows([]string{"current_value"}).AddRow(1))
	mock.ExpectExec(`insert into loans`).
		WithArgs("loan-1", "T1", "ML-2026-0001", "Aigerim", int64(150000), "MONTHLY", "user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db, sequence.NewPGAllocator())
	l := &Loan{
		ID: "loan-1", TenantID: "T1", CustomerName: "Aigerim",
		Amount: 150000, Kind: sequence.KindMonthly, CreatedBy: "user-1", CreatedAt: now,
	}
	if err := store.Create(context.Background(), l, 2026); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.Number != "ML-2026-0001" {
		t.Fatalf("number = %q, want ML-2026-0001", l.Number)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCreateRetriesWholeTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	// A serialization failure aborts the first transaction; the retry starts
	// a new one rather than re-running a statement inside the dead one.
	mock.ExpectBegin()
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnError(serialization)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(`insert into sequence_counters`).
		WithArgs("T1", 2026, "MONTHLY").
		WillReturnRows(sqlmock.NewRows([]string{"current_value"}).AddRow(4))
	mock.ExpectExec(`insert into loans`).
		WithArgs("loan-1", "T1", "ML-2026-0004", "Bolat", int64(90000), "MONTHLY", "user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db, sequence.NewPGAllocator())
	l := &Loan{
		ID: "loan-1", TenantID: "T1", CustomerName: "Bolat",
		Amount: 90000, Kind: sequence.KindMonthly, CreatedBy: "user-1", CreatedAt: now,
	}
	if err := store.Create(context.Background(), l, 2026); err != nil {
		t.Fatalf("Create after transient failure: %v", err)
	}
	if l.Number != "ML-2026-0004" {
		t.Fatalf("number = %q, want ML-2026-0004", l.Number)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
