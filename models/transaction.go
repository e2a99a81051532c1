package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/backoffice/money"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a single financial event of a tenant.
//
// Amounts are non-negative; the direction of cash flow is carried by Kind.
// SourceKey holds "<source_kind>:<source_ref>" while the row is an active projection and is
// NULL otherwise, so the unique (tenant_id, source_key) index allows at most one active
// row per source event and never constrains manual entries or voided rows.
type Transaction struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	TenantId        string          `gorm:"size:64;not null;index:idx_tx_tenant_date,priority:1;uniqueIndex:idx_tx_tenant_source,priority:1" json:"tenant_id"`
	ActorId         string          `gorm:"size:64;not null" json:"actor_id"`
	Kind            TransactionKind `gorm:"size:16;not null" json:"kind"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Tax             decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"tax"`
	Discount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"discount"`
	NetAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"net_amount"`
	CurrencySymbol  string          `gorm:"size:16;not null" json:"currency_symbol"`
	SourceKind      SourceKind      `gorm:"size:16;not null" json:"source_kind"`
	SourceRef       *string         `gorm:"size:128" json:"source_ref"`
	SourceKey       *string         `gorm:"size:160;uniqueIndex:idx_tx_tenant_source,priority:2" json:"-"`
	TransactionDate time.Time       `gorm:"not null;index:idx_tx_tenant_date,priority:2" json:"transaction_date"`
	Title           string          `gorm:"size:255" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	Notes           string          `gorm:"type:text" json:"notes"`
	IsVoid          bool            `gorm:"not null" json:"is_void"`
	IsReconciled    bool            `gorm:"not null" json:"is_reconciled"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransaction struct {
	Kind            TransactionKind `json:"kind" validate:"required,oneof=income expense"`
	Amount          decimal.Decimal `json:"amount"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	CurrencySymbol  string          `json:"currency_symbol" validate:"max=16"`
	SourceKind      SourceKind      `json:"source_kind" validate:"required,oneof=manual invoice receipt job_order waybill inventory expense"`
	SourceRef       *string         `json:"source_ref" validate:"omitempty,max=128"`
	TransactionDate time.Time       `json:"transaction_date" validate:"required"`
	Title           string          `json:"title" validate:"max=255"`
	Description     string          `json:"description"`
	Notes           string          `json:"notes"`
	IsReconciled    bool            `json:"is_reconciled"`
}

// TransactionPatch lists the user-editable fields; nil means unchanged.
// Source identity is not patchable.
type TransactionPatch struct {
	Kind            *TransactionKind `json:"kind"`
	Amount          *decimal.Decimal `json:"amount"`
	Tax             *decimal.Decimal `json:"tax"`
	Discount        *decimal.Decimal `json:"discount"`
	TransactionDate *time.Time       `json:"transaction_date"`
	Title           *string          `json:"title" validate:"omitempty,max=255"`
	Description     *string          `json:"description"`
	Notes           *string          `json:"notes"`
	IsReconciled    *bool            `json:"is_reconciled"`
}

type TransactionFilter struct {
	Kind         *TransactionKind
	SourceKind   *SourceKind
	FromDate     *time.Time // inclusive
	ToDate       *time.Time // inclusive
	MinAmount    *decimal.Decimal
	MaxAmount    *decimal.Decimal
	Search       string
	IsReconciled *bool
	IncludeVoid  bool
	Limit        int
	Offset       int
}

// SourceKeyFor builds the identity key of a projected source event.
func SourceKeyFor(kind SourceKind, ref string) string {
	return string(kind) + ":" + ref
}

func (t *Transaction) BeforeSave(tx *gorm.DB) error {
	return t.normalize()
}

// normalize enforces the row invariants: non-negative amounts within range rounded to
// two places, net = amount + tax - discount, calendar-day date, and the identity key.
func (t *Transaction) normalize() error {
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: invalid transaction kind %q", utils.ErrInvalidInput, t.Kind)
	}
	if !t.SourceKind.IsValid() {
		return fmt.Errorf("%w: invalid source kind %q", utils.ErrInvalidInput, t.SourceKind)
	}
	for name, v := range map[string]decimal.Decimal{"amount": t.Amount, "tax": t.Tax, "discount": t.Discount} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", utils.ErrInvalidInput, name)
		}
		if err := money.CheckRange(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	t.Amount = money.Round(t.Amount)
	t.Tax = money.Round(t.Tax)
	t.Discount = money.Round(t.Discount)
	t.NetAmount = t.Amount.Add(t.Tax).Sub(t.Discount)
	if t.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction date is required", utils.ErrInvalidInput)
	}
	t.TransactionDate = utils.DateOnly(t.TransactionDate)
	if t.SourceKind == SourceKindManual {
		t.SourceRef = nil
	}
	t.SourceKey = t.identityKey()
	return nil
}

func (t *Transaction) identityKey() *string {
	if t.IsVoid || !t.SourceKind.IsProjected() || t.SourceRef == nil || *t.SourceRef == "" {
		return nil
	}
	key := SourceKeyFor(t.SourceKind, *t.SourceRef)
	return &key
}

func (t *Transaction) YearMonth() utils.YearMonth {
	return utils.YearMonthOf(t.TransactionDate)
}

func (input *NewTransaction) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	for name, v := range map[string]decimal.Decimal{"amount": input.Amount, "tax": input.Tax, "discount": input.Discount} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", utils.ErrInvalidInput, name)
		}
	}
	if input.SourceRef != nil {
		ref := strings.TrimSpace(*input.SourceRef)
		input.SourceRef = utils.NilIfEmpty(ref)
	}
	return nil
}

func (input *NewTransaction) toTransaction(id string, tenantId string, actorId string, symbol string) *Transaction {
	if input.CurrencySymbol != "" {
		symbol = input.CurrencySymbol
	}
	return &Transaction{
		ID:              id,
		TenantId:        tenantId,
		ActorId:         actorId,
		Kind:            input.Kind,
		Amount:          input.Amount,
		Tax:             input.Tax,
		Discount:        input.Discount,
		CurrencySymbol:  symbol,
		SourceKind:      input.SourceKind,
		SourceRef:       input.SourceRef,
		TransactionDate: input.TransactionDate,
		Title:           input.Title,
		Description:     input.Description,
		Notes:           input.Notes,
		IsReconciled:    input.IsReconciled,
	}
}

func (p *TransactionPatch) apply(t *Transaction) error {
	if err := utils.ValidateStruct(p); err != nil {
		return err
	}
	if p.Kind != nil {
		if !p.Kind.IsValid() {
			return fmt.Errorf("%w: invalid transaction kind %q", utils.ErrInvalidInput, *p.Kind)
		}
		t.Kind = *p.Kind
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Tax != nil {
		t.Tax = *p.Tax
	}
	if p.Discount != nil {
		t.Discount = *p.Discount
	}
	if p.TransactionDate != nil {
		t.TransactionDate = *p.TransactionDate
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.IsReconciled != nil {
		t.IsReconciled = *p.IsReconciled
	}
	return nil
}

// scopeTransactionFilter applies filter to a query already restricted to one tenant.
func scopeTransactionFilter(q *gorm.DB, filter TransactionFilter) *gorm.DB {
	if !filter.IncludeVoid {
		q = q.Where("is_void = ?", false)
	}
	if filter.Kind != nil {
		q = q.Where("kind = ?", *filter.Kind)
	}
	if filter.SourceKind != nil {
		q = q.Where("source_kind = ?", *filter.SourceKind)
	}
	if filter.FromDate != nil {
		q = q.Where("transaction_date >= ?", utils.DateOnly(*filter.FromDate))
	}
	if filter.ToDate != nil {
		q = q.Where("transaction_date < ?", utils.DateOnly(*filter.ToDate).AddDate(0, 0, 1))
	}
	if filter.MinAmount != nil {
		q = q.Where("amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		q = q.Where("amount <= ?", *filter.MaxAmount)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(notes) LIKE ?)", like, like, like)
	}
	if filter.IsReconciled != nil {
		q = q.Where("is_reconciled = ?", *filter.IsReconciled)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	return q
}
