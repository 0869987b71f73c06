package db

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), gormConfig())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicky"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic rollback to leave no rows, got %d", count)
	}
}

func TestWithTx_PreservesTypedErrors(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	want := pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected typed error to pass through, got %v", err)
	}
}

func TestWithTx_ClassifiesLockFailures(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeLockTimeout) {
		t.Fatalf("expected LOCK_TIMEOUT, got %v", err)
	}
	if !pkgerrors.MetadataFor(pkgerrors.CodeLockTimeout).Retryable {
		t.Fatal("lock timeout must be retryable")
	}
}

func TestIsLockFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "pgx deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "pq serialization", err: &pq.Error{Code: "40001"}, want: true},
		{name: "pgx unique", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLockFailure(tc.err); got != tc.want {
				t.Fatalf("IsLockFailure(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsUniqueAndCheckViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "withdraw_requests_code_key"}
	if !IsUniqueViolation(unique, "withdraw_requests_code_key") {
		t.Fatal("expected unique violation on named constraint")
	}
	if IsUniqueViolation(unique, "other_key") {
		t.Fatal("constraint name mismatch should not match")
	}
	if !IsCheckViolation(&pq.Error{Code: "23514"}) {
		t.Fatal("expected check violation")
	}
	if !IsCheckViolation(errors.New("CHECK constraint failed: stock >= 0")) {
		t.Fatal("expected sqlite check violation")
	}
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestWithTx_ClassifiesStockConstraint(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return &pgconn.PgError{Code: "23514", ConstraintName: "products_stock_non_negative"}
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}
