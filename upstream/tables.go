// Package upstream reads the collaborator modules' tables (invoices, receipts, job orders,
// waybills, payables) and exposes them through the contracts the ledger engine consumes.
package upstream

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Collaborator tables are owned by their modules. The structs below map the columns the
// engine reads; TenantId is nullable because legacy rows may lack the linkage.

type Invoice struct {
	ID            string          `gorm:"primaryKey;size:64"`
	TenantId      *string         `gorm:"size:64;index"`
	InvoiceNumber string          `gorm:"size:64"`
	Status        string          `gorm:"size:32;index"`
	GrandTotal    decimal.Decimal `gorm:"type:decimal(20,2)"`
	TotalTax      decimal.Decimal `gorm:"type:decimal(20,2)"`
	TotalDiscount decimal.Decimal `gorm:"type:decimal(20,2)"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(20,2)"`
	InvoiceDate   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Receipt struct {
	ID             string          `gorm:"primaryKey;size:64"`
	TenantId       *string         `gorm:"size:64;index"`
	ReceiptNumber  string          `gorm:"size:64"`
	Status         string          `gorm:"size:32"`
	AmountReceived decimal.Decimal `gorm:"type:decimal(20,2)"`
	DateReceived   time.Time
	CreatedAt      time.Time
}

type JobOrder struct {
	ID            string          `gorm:"primaryKey;size:64"`
	TenantId      *string         `gorm:"size:64;index"`
	OrderNumber   string          `gorm:"size:64"`
	Status        string          `gorm:"size:32;index"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,2)"`
	CompletedDate *time.Time
	CreatedAt     time.Time
}

type Waybill struct {
	ID            string          `gorm:"primaryKey;size:64"`
	TenantId      *string         `gorm:"size:64;index"`
	WaybillNumber string          `gorm:"size:64"`
	Status        string          `gorm:"size:32;index"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,2)"`
	DeliveryDate  *time.Time
	CreatedAt     time.Time
}

type Payable struct {
	ID        string          `gorm:"primaryKey;size:64"`
	TenantId  *string         `gorm:"size:64;index"`
	Reference string          `gorm:"size:64"`
	Status    string          `gorm:"size:32;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2)"`
	DueDate   time.Time
	CreatedAt time.Time
}

const (
	PayableStatusUnpaid  = "unpaid"
	PayableStatusPending = "pending"
)

// MigrateTables creates the collaborator tables; used by local setups and tests only.
func MigrateTables(db *gorm.DB) error {
	return db.AutoMigrate(&Invoice{}, &Receipt{}, &JobOrder{}, &Waybill{}, &Payable{})
}
