package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Records exposed by the upstream modules. The engine reads them only through the
// Source interfaces below; it never writes collaborator tables.

type InvoiceRecord struct {
	ID            string
	TenantId      string
	Number        string
	Status        string
	GrandTotal    decimal.Decimal
	TotalTax      decimal.Decimal
	TotalDiscount decimal.Decimal
	BalanceDue    decimal.Decimal
	UpdatedAt     time.Time
}

type ReceiptRecord struct {
	ID             string
	TenantId       string
	Number         string
	Status         string
	AmountReceived decimal.Decimal
	DateReceived   time.Time
}

type JobOrderRecord struct {
	ID            string
	TenantId      string
	Number        string
	Status        string
	TotalCost     decimal.Decimal
	CompletedDate *time.Time
	CreatedDate   time.Time
}

type WaybillRecord struct {
	ID           string
	TenantId     string
	Number       string
	Status       string
	TotalAmount  decimal.Decimal
	DeliveryDate *time.Time
	CreatedDate  time.Time
}

const (
	InvoiceStatusPaid      = "paid"
	InvoiceStatusUnpaid    = "unpaid"
	InvoiceStatusPartial   = "partial"
	JobOrderStatusComplete = "completed"
	WaybillStatusDelivered = "delivered"
	ReceiptStatusPending   = "pending"
)

type InvoiceSource interface {
	ListPaid(ctx context.Context, tenantId string) ([]InvoiceRecord, error)
	GetByID(ctx context.Context, id string) (*InvoiceRecord, error)
}

type ReceiptSource interface {
	ListCreated(ctx context.Context, tenantId string) ([]ReceiptRecord, error)
	GetByID(ctx context.Context, id string) (*ReceiptRecord, error)
}

type JobOrderSource interface {
	ListCompleted(ctx context.Context, tenantId string) ([]JobOrderRecord, error)
	GetByID(ctx context.Context, id string) (*JobOrderRecord, error)
}

type WaybillSource interface {
	ListDelivered(ctx context.Context, tenantId string) ([]WaybillRecord, error)
	GetByID(ctx context.Context, id string) (*WaybillRecord, error)
}
