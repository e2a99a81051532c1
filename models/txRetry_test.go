package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/utils"
	"gorm.io/gorm"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		duplicate     bool
		serialization bool
	}{
		{"nil", nil, false, false},
		{"gorm duplicated", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true, false},
		{"mysql 1062", &mysqlDriver.MySQLError{Number: 1062}, true, false},
		{"mysql deadlock", &mysqlDriver.MySQLError{Number: 1213}, false, true},
		{"mysql lock wait", &mysqlDriver.MySQLError{Number: 1205}, false, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, true, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, false, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, false, true},
		{"sqlite unique", errors.New("UNIQUE constraint failed: transactions.tenant_id, transactions.source_key"), true, false},
		{"sqlite busy", errors.New("database is locked"), false, true},
		{"other", errors.New("boom"), false, false},
	}
	for _, tc := range cases {
		if got := isDuplicateKeyErr(tc.err); got != tc.duplicate {
			t.Fatalf("%s: isDuplicateKeyErr expected %v, got %v", tc.name, tc.duplicate, got)
		}
		if got := isSerializationErr(tc.err); got != tc.serialization {
			t.Fatalf("%s: isSerializationErr expected %v, got %v", tc.name, tc.serialization, got)
		}
	}
}

func TestRunSerialized_RetriesThenConflict(t *testing.T) {
	db, err := config.OpenDatabase(config.DriverSQLite, "file:run_serialized?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()

	attempts := 0
	err = RunSerialized(ctx, db, 2, func(tx *gorm.DB) error {
		attempts++
		return errors.New("database is locked")
	})
	if !errors.Is(err, utils.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	attempts = 0
	err = RunSerialized(ctx, db, 3, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return &mysqlDriver.MySQLError{Number: 1213}
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d", err, attempts)
	}

	attempts = 0
	boom := errors.New("boom")
	err = RunSerialized(ctx, db, 3, func(tx *gorm.DB) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("non-retryable errors return at once, got %v after %d", err, attempts)
	}
}
