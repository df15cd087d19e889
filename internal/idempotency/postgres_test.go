package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGClaimInsertsFreshKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expires := time.Now().UTC().Add(24 * time.Hour)
	mock.ExpectExec(`insert into idempotency_keys`).
		WithArgs("key-1", "tenant-1", "user-1", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	res, err := store.Claim(context.Background(), &Record{
		Key: "key-1", TenantID: "tenant-1", UserID: "user-1", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !res.Claimed {
		t.Fatal("expected fresh key to be claimed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGClaimReturnsExistingOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	expires := now.Add(24 * time.Hour)
	mock.ExpectExec(`insert into idempotency_keys`).
		WithArgs("key-1", "tenant-1", "user-2", expires).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select key, tenant_id, user_id, expires_at, response_status, response_body, created_at`).
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "tenant_id", "user_id", "expires_at", "response_status", "response_body", "created_at"}).
			AddRow("key-1", "tenant-1", "user-1", expires, 201, []byte(`{"success":true}`), now))

	store := NewPGStore(db)
	res, err := store.Claim(context.Background(), &Record{
		Key: "key-1", TenantID: "tenant-1", UserID: "user-2", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Claimed {
		t.Fatal("conflicting insert must not claim")
	}
	if res.Existing == nil || res.Existing.UserID != "user-1" || res.Existing.ResponseStatus != 201 {
		t.Fatalf("unexpected existing record: %+v", res.Existing)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSaveResponseDeleteExpiredAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`update idempotency_keys set response_status`).
		WithArgs("key-1", 201, []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The expiry guard travels inside the statement: check and delete are one
	// atomic operation, and a fresh record survives (zero rows affected).
	mock.ExpectExec(`delete from idempotency_keys where key=\$1 and expires_at <= \$2`).
		WithArgs("key-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`delete from idempotency_keys where key=\$1`).
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.SaveResponse(context.Background(), "key-1", 201, []byte(`{}`)); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if err := store.DeleteExpired(context.Background(), "key-1", now); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if err := store.Release(context.Background(), "key-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
