// Package testsupport opens throwaway databases and seeds fixtures for package tests.
package testsupport

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/money"
	"github.com/mmdatafocus/backoffice/upstream"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OpenDB opens an in-memory sqlite database private to the test, with the engine and
// collaborator tables migrated. The pool holds a single connection, so concurrent
// transactions queue behind each other the way row locks serialize them in production.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := config.OpenDatabase(config.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate engine tables: %v", err)
	}
	if err := upstream.MigrateTables(db); err != nil {
		t.Fatalf("migrate collaborator tables: %v", err)
	}
	return db
}

// Settings returns engine settings suitable for tests: no cache, a few retries.
func Settings() config.Settings {
	return config.Settings{
		TxRetries:             3,
		LedgerCacheTTL:        time.Minute,
		ReportSlowThreshold:   time.Second,
		EventsSubscription:    "ledger-events",
		DefaultCurrencySymbol: "$",
	}
}

func SeedTenant(t testing.TB, db *gorm.DB, id string, symbol string) *models.Tenant {
	t.Helper()
	code, _ := money.CodeForSymbol(symbol)
	tenant := models.Tenant{
		ID:             id,
		Name:           "Tenant " + id,
		CurrencySymbol: symbol,
		CurrencyCode:   code,
		IsActive:       utils.NewTrue(),
	}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("seed tenant %s: %v", id, err)
	}
	return &tenant
}

func SeedActor(t testing.TB, db *gorm.DB, id string, tenantId string, role models.ActorRole) *models.Actor {
	t.Helper()
	actor := models.Actor{
		ID:       id,
		TenantId: tenantId,
		Name:     "Actor " + id,
		Role:     role,
		IsActive: utils.NewTrue(),
	}
	if err := db.Create(&actor).Error; err != nil {
		t.Fatalf("seed actor %s: %v", id, err)
	}
	return &actor
}

func SeedInvoice(t testing.TB, db *gorm.DB, invoice upstream.Invoice) *upstream.Invoice {
	t.Helper()
	if err := db.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice %s: %v", invoice.ID, err)
	}
	return &invoice
}

func Seed(t testing.TB, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}

func Date(value string) time.Time {
	d, err := time.Parse(utils.DateLayout, value)
	if err != nil {
		panic(err)
	}
	return d
}

func Dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func Ptr[T any](v T) *T {
	return &v
}
