package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the monthly aggregate of a tenant's non-void transactions.
//
// Grain: (tenant_id, year, month). Rows are created lazily, rebuilt in full whenever a
// transaction of the month changes, and never deleted. The row is also the lock anchor
// serializing writers of its month.
type Ledger struct {
	TenantId            string          `gorm:"primaryKey;size:64" json:"tenant_id"`
	Year                int             `gorm:"primaryKey;autoIncrement:false" json:"year"`
	Month               int             `gorm:"primaryKey;autoIncrement:false" json:"month"`
	TotalIncome         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_income"`
	TotalExpense        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_expense"`
	NetProfit           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"net_profit"`
	OutstandingInvoices decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"outstanding_invoices"`
	PendingReceipts     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"pending_receipts"`
	TransactionCount    int             `gorm:"not null" json:"transaction_count"`
	RebuiltAt           *time.Time      `json:"rebuilt_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type monthTotals struct {
	income  decimal.Decimal
	expense decimal.Decimal
	count   int
}

// lockLedgerMonths creates missing ledger rows and locks them FOR UPDATE in ascending month
// order, so writers of the same month serialize and writers of overlapping months never deadlock.
func lockLedgerMonths(tx *gorm.DB, tenantId string, months ...utils.YearMonth) error {
	for _, ym := range utils.SortedUniqueMonths(months...) {
		row := Ledger{TenantId: tenantId, Year: ym.Year, Month: int(ym.Month)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create ledger %s: %w", ym, err)
		}
		var locked Ledger
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND year = ? AND month = ?", tenantId, ym.Year, int(ym.Month)).
			Take(&locked).Error
		if err != nil {
			return fmt.Errorf("lock ledger %s: %w", ym, err)
		}
	}
	return nil
}

func sumMonth(tx *gorm.DB, tenantId string, year int, month time.Month) (monthTotals, error) {
	start, next := utils.MonthRange(year, month)
	var rows []Transaction
	err := tx.Select("kind", "net_amount").
		Where("tenant_id = ? AND is_void = ? AND transaction_date >= ? AND transaction_date < ?", tenantId, false, start, next).
		Find(&rows).Error
	if err != nil {
		return monthTotals{}, err
	}
	totals := monthTotals{income: decimal.Zero, expense: decimal.Zero, count: len(rows)}
	for _, r := range rows {
		switch r.Kind {
		case TransactionKindIncome:
			totals.income = totals.income.Add(r.NetAmount)
		case TransactionKindExpense:
			totals.expense = totals.expense.Add(r.NetAmount)
		}
	}
	return totals, nil
}

// TouchLedger rebuilds the (tenant, year, month) row from the month's non-void transactions
// inside the caller's transaction. It is the only writer of the derived totals.
func TouchLedger(tx *gorm.DB, tenantId string, year int, month time.Month) (*Ledger, error) {
	totals, err := sumMonth(tx, tenantId, year, month)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	row := Ledger{
		TenantId:            tenantId,
		Year:                year,
		Month:               int(month),
		TotalIncome:         totals.income,
		TotalExpense:        totals.expense,
		NetProfit:           totals.income.Sub(totals.expense),
		OutstandingInvoices: decimal.Zero,
		PendingReceipts:     decimal.Zero,
		TransactionCount:    totals.count,
		RebuiltAt:           &now,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_income", "total_expense", "net_profit", "transaction_count", "rebuilt_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert ledger %04d-%02d: %w", year, int(month), err)
	}
	var stored Ledger
	if err := tx.Where("tenant_id = ? AND year = ? AND month = ?", tenantId, year, int(month)).Take(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func touchMonths(tx *gorm.DB, tenantId string, months ...utils.YearMonth) error {
	for _, ym := range utils.SortedUniqueMonths(months...) {
		if _, err := TouchLedger(tx, tenantId, ym.Year, ym.Month); err != nil {
			return err
		}
	}
	return nil
}

// Receivables is the AR collaborator: balances due on unpaid or partially paid invoices.
type Receivables interface {
	SumUnpaidBalances(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error)
}

// Payables is the AP collaborator: unpaid or pending outbound obligations.
type Payables interface {
	SumPendingPayables(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error)
}

// PendingReceipts reports receipts recorded but not yet cleared.
type PendingReceipts interface {
	SumPendingReceipts(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error)
}

type LedgerAggregator struct {
	db          *gorm.DB
	directory   Directory
	receivables Receivables
	pending     PendingReceipts
	settings    config.Settings
}

func NewLedgerAggregator(db *gorm.DB, directory Directory, receivables Receivables, pending PendingReceipts) *LedgerAggregator {
	return &LedgerAggregator{
		db:          db,
		directory:   directory,
		receivables: receivables,
		pending:     pending,
		settings:    config.LoadSettings(),
	}
}

func (a *LedgerAggregator) WithSettings(settings config.Settings) *LedgerAggregator {
	a.settings = settings
	return a
}

func ledgerCacheKey(tenantId string, year int, month int) string {
	return fmt.Sprintf("Ledger:%s:%04d-%02d", tenantId, year, month)
}

// InvalidateLedgerCache drops every cached ledger read of the tenant.
func InvalidateLedgerCache(ctx context.Context, tenantId string) {
	if err := utils.InvalidateTenantCache(ctx, tenantId); err != nil {
		config.LogError(config.GetLogger(), "Ledger", "InvalidateLedgerCache", "redis delete", tenantId, err)
	}
}

// Touch rebuilds one month in its own transaction.
func (a *LedgerAggregator) Touch(ctx context.Context, scope Scope, year int, month time.Month) (*Ledger, error) {
	if _, err := a.directory.Authorize(ctx, scope, ActionLedgerRebuild); err != nil {
		return nil, err
	}
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", utils.ErrInvalidInput, month)
	}
	var result *Ledger
	err := RunSerialized(scope.Context(ctx), a.db, a.settings.TxRetries, func(tx *gorm.DB) error {
		if err := lockLedgerMonths(tx, scope.TenantId, utils.YearMonth{Year: year, Month: month}); err != nil {
			return err
		}
		row, err := TouchLedger(tx, scope.TenantId, year, month)
		result = row
		return err
	})
	if err != nil {
		return nil, err
	}
	InvalidateLedgerCache(ctx, scope.TenantId)
	return result, nil
}

// RefreshOutstanding recomputes the collaborator-sourced columns of a month as of its last day.
// Missing collaborators count as zero.
func (a *LedgerAggregator) RefreshOutstanding(ctx context.Context, scope Scope, year int, month time.Month) (*Ledger, error) {
	if _, err := a.directory.Authorize(ctx, scope, ActionLedgerRebuild); err != nil {
		return nil, err
	}
	_, next := utils.MonthRange(year, month)
	asOf := next.AddDate(0, 0, -1)

	outstanding := decimal.Zero
	if a.receivables != nil {
		v, err := a.receivables.SumUnpaidBalances(ctx, scope.TenantId, asOf)
		if err != nil {
			return nil, err
		}
		outstanding = v
	}
	pendingReceipts := decimal.Zero
	if a.pending != nil {
		v, err := a.pending.SumPendingReceipts(ctx, scope.TenantId, asOf)
		if err != nil {
			return nil, err
		}
		pendingReceipts = v
	}

	var result Ledger
	err := RunSerialized(scope.Context(ctx), a.db, a.settings.TxRetries, func(tx *gorm.DB) error {
		if err := lockLedgerMonths(tx, scope.TenantId, utils.YearMonth{Year: year, Month: month}); err != nil {
			return err
		}
		err := tx.Model(&Ledger{}).
			Where("tenant_id = ? AND year = ? AND month = ?", scope.TenantId, year, int(month)).
			Updates(map[string]interface{}{
				"outstanding_invoices": outstanding,
				"pending_receipts":     pendingReceipts,
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND year = ? AND month = ?", scope.TenantId, year, int(month)).Take(&result).Error
	})
	if err != nil {
		return nil, err
	}
	InvalidateLedgerCache(ctx, scope.TenantId)
	return &result, nil
}

// transactionSpan returns the dates of the earliest and latest non-void transactions.
func transactionSpan(db *gorm.DB, tenantId string) (first time.Time, last time.Time, found bool, err error) {
	var earliest, latest Transaction
	err = db.Select("transaction_date").
		Where("tenant_id = ? AND is_void = ?", tenantId, false).
		Order("transaction_date ASC").First(&earliest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	err = db.Select("transaction_date").
		Where("tenant_id = ? AND is_void = ?", tenantId, false).
		Order("transaction_date DESC").First(&latest).Error
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return utils.DateOnly(earliest.TransactionDate), utils.DateOnly(latest.TransactionDate), true, nil
}

// TransactionSpan is the exported form used by the report generator.
func TransactionSpan(ctx context.Context, db *gorm.DB, tenantId string) (time.Time, time.Time, bool, error) {
	return transactionSpan(db.WithContext(ctx), tenantId)
}

// Backfill touches every month between the tenant's earliest and latest non-void
// transaction, inclusive. Each month commits on its own.
func (a *LedgerAggregator) Backfill(ctx context.Context, scope Scope) (int, error) {
	if _, err := a.directory.Authorize(ctx, scope, ActionLedgerRebuild); err != nil {
		return 0, err
	}
	ctx = scope.Context(ctx)
	first, last, found, err := transactionSpan(a.db.WithContext(ctx), scope.TenantId)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	months := utils.MonthsBetween(utils.YearMonthOf(first), utils.YearMonthOf(last))
	for i, ym := range months {
		err := RunSerialized(ctx, a.db, a.settings.TxRetries, func(tx *gorm.DB) error {
			if err := lockLedgerMonths(tx, scope.TenantId, ym); err != nil {
				return err
			}
			_, err := TouchLedger(tx, scope.TenantId, ym.Year, ym.Month)
			return err
		})
		if err != nil {
			InvalidateLedgerCache(ctx, scope.TenantId)
			return i, fmt.Errorf("backfill %s: %w", ym, err)
		}
	}
	InvalidateLedgerCache(ctx, scope.TenantId)
	config.GetLogger().WithField("tenant_id", scope.TenantId).WithField("months", len(months)).Info("ledger backfill complete")
	return len(months), nil
}

func (a *LedgerAggregator) Get(ctx context.Context, scope Scope, year int, month time.Month) (*Ledger, error) {
	if _, err := a.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return nil, err
	}
	key := ledgerCacheKey(scope.TenantId, year, int(month))
	var result Ledger
	if a.settings.LedgerCacheEnabled {
		if exists, err := utils.GetCachedObject(ctx, key, &result); err == nil && exists {
			return &result, nil
		}
	}
	err := a.db.WithContext(scope.Context(ctx)).
		Where("tenant_id = ? AND year = ? AND month = ?", scope.TenantId, year, int(month)).
		Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ledger %04d-%02d", utils.ErrNotFound, year, int(month))
		}
		return nil, err
	}
	if a.settings.LedgerCacheEnabled {
		if err := utils.CacheTenantObject(ctx, scope.TenantId, key, &result, a.settings.LedgerCacheTTL); err != nil {
			config.LogError(config.GetLogger(), "Ledger", "Get", "redis write", key, err)
		}
	}
	return &result, nil
}

// List returns the tenant's ledger rows of year in month order; year 0 lists all.
func (a *LedgerAggregator) List(ctx context.Context, scope Scope, year int) ([]Ledger, error) {
	if _, err := a.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return nil, err
	}
	q := a.db.WithContext(scope.Context(ctx)).Where("tenant_id = ?", scope.TenantId)
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	var rows []Ledger
	err := q.Order("year ASC").Order("month ASC").Find(&rows).Error
	return rows, err
}

// Verify recomputes a month without writing and reports a mismatch as utils.InternalError.
func (a *LedgerAggregator) Verify(ctx context.Context, scope Scope, year int, month time.Month) error {
	if _, err := a.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return err
	}
	db := a.db.WithContext(scope.Context(ctx))
	totals, err := sumMonth(db, scope.TenantId, year, month)
	if err != nil {
		return err
	}
	var row Ledger
	err = db.Where("tenant_id = ? AND year = ? AND month = ?", scope.TenantId, year, int(month)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if totals.count == 0 {
			return nil
		}
		return &utils.InternalError{Invariant: "ledger presence", Detail: fmt.Sprintf("%04d-%02d has %d transactions but no ledger row", year, int(month), totals.count)}
	}
	if err != nil {
		return err
	}
	return checkLedger(&row, totals)
}

func checkLedger(row *Ledger, totals monthTotals) error {
	ym := fmt.Sprintf("%04d-%02d", row.Year, row.Month)
	if !row.TotalIncome.Equal(totals.income) {
		return &utils.InternalError{Invariant: "total_income", Detail: fmt.Sprintf("%s stored %s, computed %s", ym, row.TotalIncome, totals.income)}
	}
	if !row.TotalExpense.Equal(totals.expense) {
		return &utils.InternalError{Invariant: "total_expense", Detail: fmt.Sprintf("%s stored %s, computed %s", ym, row.TotalExpense, totals.expense)}
	}
	if !row.NetProfit.Equal(row.TotalIncome.Sub(row.TotalExpense)) {
		return &utils.InternalError{Invariant: "net_profit", Detail: fmt.Sprintf("%s net %s != %s - %s", ym, row.NetProfit, row.TotalIncome, row.TotalExpense)}
	}
	return nil
}
