package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
)

var balanceTolerance = decimal.NewFromFloat(0.01)

type BalanceSheetReport struct {
	ReportKind         models.ReportKind `json:"report_kind"`
	TenantId           string            `json:"tenant_id"`
	Currency           string            `json:"currency"`
	CurrencyCode       string            `json:"currency_code"`
	AsOf               string            `json:"as_of"`
	Period             string            `json:"period"`
	DateAdjusted       bool              `json:"date_adjusted"`
	OriginalPeriod     string            `json:"original_period"`
	AdjustedPeriod     *string           `json:"adjusted_period"`
	Income             decimal.Decimal   `json:"income"`
	Expenses           decimal.Decimal   `json:"expenses"`
	Cash               decimal.Decimal   `json:"cash"`
	AccountsReceivable decimal.Decimal   `json:"accounts_receivable"`
	TotalAssets        decimal.Decimal   `json:"total_assets"`
	AccountsPayable    decimal.Decimal   `json:"accounts_payable"`
	TotalLiabilities   decimal.Decimal   `json:"total_liabilities"`
	OwnerEquity        decimal.Decimal   `json:"owner_equity"`
	RetainedEarnings   decimal.Decimal   `json:"retained_earnings"`
	EquityClamped      bool              `json:"equity_clamped"`
	BalanceCheck       decimal.Decimal   `json:"balance_check"`
	Balanced           bool              `json:"balanced"`
	Counts             map[string]int    `json:"counts"`
	Formatted          map[string]string `json:"formatted"`
	Provenance         []Provenance      `json:"provenance"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// solveBalance fills cash, totals, owner equity and the balance check from income, expenses,
// receivables and payables. Cash is taken to equal retained earnings. A negative owner
// equity is clamped to zero and retained earnings absorb the difference.
func solveBalance(r *BalanceSheetReport) {
	r.RetainedEarnings = r.Income.Sub(r.Expenses)
	r.Cash = r.RetainedEarnings
	r.TotalAssets = r.Cash.Add(r.AccountsReceivable)
	r.TotalLiabilities = r.AccountsPayable
	r.OwnerEquity = r.TotalAssets.Sub(r.TotalLiabilities).Sub(r.RetainedEarnings)
	if r.OwnerEquity.IsNegative() {
		r.OwnerEquity = decimal.Zero
		r.RetainedEarnings = r.TotalAssets.Sub(r.TotalLiabilities)
		r.EquityClamped = true
	}
	r.BalanceCheck = r.TotalAssets.Sub(r.TotalLiabilities.Add(r.OwnerEquity).Add(r.RetainedEarnings)).Abs()
	r.Balanced = r.BalanceCheck.LessThan(balanceTolerance)
}

// BalanceSheet reports the tenant's position at the end of asOf.
func (g *Generator) BalanceSheet(ctx context.Context, scope models.Scope, asOf time.Time) (_ *BalanceSheetReport, _ *models.FinancialReport, err error) {
	ctx, span := g.startSpan(ctx, "reports.BalanceSheet", scope, models.ReportKindBalanceSheet)
	defer func() { endSpan(span, err) }()
	started := time.Now()

	tenant, err := g.directory.Authorize(ctx, scope, models.ActionReportGenerate)
	if err != nil {
		return nil, nil, err
	}
	if asOf.IsZero() {
		return nil, nil, fmt.Errorf("%w: as-of date is required", utils.ErrInvalidInput)
	}
	requested := window{end: utils.DateOnly(asOf)}

	symbol, code, provenance := g.currency(tenant)
	scoped := scope.Context(ctx)
	sums, effective, adjusted, err := g.adaptiveSum(scoped, scope.TenantId, symbol, requested)
	if err != nil {
		return nil, nil, err
	}

	report := &BalanceSheetReport{
		ReportKind:     models.ReportKindBalanceSheet,
		TenantId:       scope.TenantId,
		Currency:       symbol,
		CurrencyCode:   code,
		AsOf:           utils.FormatDate(effective.end),
		Period:         effective.String(),
		DateAdjusted:   adjusted,
		OriginalPeriod: requested.String(),
		Income:         sums.income,
		Expenses:       sums.expenses,
		Counts:         sums.countsJSON(),
		Provenance:     []Provenance{},
		GeneratedAt:    time.Now().UTC(),
	}
	if adjusted {
		period := effective.String()
		report.AdjustedPeriod = &period
		report.Provenance = append(report.Provenance, Provenance{
			Kind:   ProvenanceDateWidened,
			Detail: fmt.Sprintf("no transactions %s; moved to %s", requested, effective),
		})
	}
	report.Provenance = append(report.Provenance, provenance...)
	report.Provenance = append(report.Provenance, foreignStampNote(sums, symbol)...)

	ar, note, err := g.collaboratorSum("receivables", func() (decimal.Decimal, error) {
		return g.receivables.SumUnpaidBalances(scoped, scope.TenantId, effective.end)
	}, g.receivables != nil)
	if err != nil {
		return nil, nil, err
	}
	if note != nil {
		report.Provenance = append(report.Provenance, *note)
	}
	ap, note, err := g.collaboratorSum("payables", func() (decimal.Decimal, error) {
		return g.payables.SumPendingPayables(scoped, scope.TenantId, effective.end)
	}, g.payables != nil)
	if err != nil {
		return nil, nil, err
	}
	if note != nil {
		report.Provenance = append(report.Provenance, *note)
	}
	report.AccountsReceivable = ar
	report.AccountsPayable = ap
	solveBalance(report)

	if !report.Balanced {
		// unreachable once equity is clamped
		return nil, nil, &utils.InternalError{
			Invariant: "balance sheet identity",
			Detail:    fmt.Sprintf("tenant %s as of %s: balance check %s", scope.TenantId, report.AsOf, report.BalanceCheck),
		}
	}
	report.Formatted = formatted(symbol, map[string]decimal.Decimal{
		"cash":                report.Cash,
		"accounts_receivable": report.AccountsReceivable,
		"total_assets":        report.TotalAssets,
		"accounts_payable":    report.AccountsPayable,
		"total_liabilities":   report.TotalLiabilities,
		"owner_equity":        report.OwnerEquity,
		"retained_earnings":   report.RetainedEarnings,
	})

	stored, err := g.store(ctx, scope, models.ReportKindBalanceSheet, nil, effective.end, report.GeneratedAt, report)
	if err != nil {
		return nil, nil, err
	}
	g.logSlowReport(ctx, "balance_sheet", scope, started, map[string]any{"as_of": report.AsOf})
	return report, stored, nil
}
