package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
)

type IncomeStatementReport struct {
	ReportKind     models.ReportKind `json:"report_kind"`
	TenantId       string            `json:"tenant_id"`
	Currency       string            `json:"currency"`
	CurrencyCode   string            `json:"currency_code"`
	Period         string            `json:"period"`
	StartDate      string            `json:"start_date"`
	EndDate        string            `json:"end_date"`
	DateAdjusted   bool              `json:"date_adjusted"`
	OriginalPeriod string            `json:"original_period"`
	AdjustedPeriod *string           `json:"adjusted_period"`
	Income         decimal.Decimal   `json:"income"`
	Expenses       decimal.Decimal   `json:"expenses"`
	NetIncome      decimal.Decimal   `json:"net_income"`
	Counts         map[string]int    `json:"counts"`
	Formatted      map[string]string `json:"formatted"`
	Provenance     []Provenance      `json:"provenance"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// IncomeStatement sums the non-void transactions dated in [start, end] by kind.
// An empty window is widened to the tenant's transaction span (see adaptiveSum).
func (g *Generator) IncomeStatement(ctx context.Context, scope models.Scope, start time.Time, end time.Time) (_ *IncomeStatementReport, _ *models.FinancialReport, err error) {
	ctx, span := g.startSpan(ctx, "reports.IncomeStatement", scope, models.ReportKindIncomeStatement)
	defer func() { endSpan(span, err) }()
	started := time.Now()

	tenant, err := g.directory.Authorize(ctx, scope, models.ActionReportGenerate)
	if err != nil {
		return nil, nil, err
	}
	if start.IsZero() || end.IsZero() {
		return nil, nil, fmt.Errorf("%w: start and end dates are required", utils.ErrInvalidInput)
	}
	requested := window{start: utils.DateOnly(start), end: utils.DateOnly(end)}
	if requested.end.Before(requested.start) {
		return nil, nil, fmt.Errorf("%w: period %s ends before it starts", utils.ErrInvalidInput, requested)
	}

	symbol, code, provenance := g.currency(tenant)
	sums, effective, adjusted, err := g.adaptiveSum(scope.Context(ctx), scope.TenantId, symbol, requested)
	if err != nil {
		return nil, nil, err
	}

	report := &IncomeStatementReport{
		ReportKind:     models.ReportKindIncomeStatement,
		TenantId:       scope.TenantId,
		Currency:       symbol,
		CurrencyCode:   code,
		Period:         effective.String(),
		StartDate:      utils.FormatDate(effective.start),
		EndDate:        utils.FormatDate(effective.end),
		DateAdjusted:   adjusted,
		OriginalPeriod: requested.String(),
		Income:         sums.income,
		Expenses:       sums.expenses,
		NetIncome:      sums.income.Sub(sums.expenses),
		Counts:         sums.countsJSON(),
		Provenance:     []Provenance{},
		GeneratedAt:    time.Now().UTC(),
	}
	if adjusted {
		period := effective.String()
		report.AdjustedPeriod = &period
		report.Provenance = append(report.Provenance, Provenance{
			Kind:   ProvenanceDateWidened,
			Detail: fmt.Sprintf("no transactions in %s; widened to %s", requested, effective),
		})
	}
	report.Provenance = append(report.Provenance, provenance...)
	report.Provenance = append(report.Provenance, foreignStampNote(sums, symbol)...)
	report.Formatted = formatted(symbol, map[string]decimal.Decimal{
		"income":     report.Income,
		"expenses":   report.Expenses,
		"net_income": report.NetIncome,
	})

	startDate := effective.start
	stored, err := g.store(ctx, scope, models.ReportKindIncomeStatement, &startDate, effective.end, report.GeneratedAt, report)
	if err != nil {
		return nil, nil, err
	}
	g.logSlowReport(ctx, "income_statement", scope, started, map[string]any{"period": report.Period})
	return report, stored, nil
}
