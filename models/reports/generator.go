// Package reports builds income statements and balance sheets from a tenant's transactions
// and stores every run as an immutable FinancialReport.
package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/money"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provenance kinds recorded on report payloads.
const (
	ProvenanceDateWidened          = "date_widened"
	ProvenanceCollaboratorMissing  = "collaborator_missing"
	ProvenanceCollaboratorFailed   = "collaborator_failed"
	ProvenanceCurrencySubstitution = "currency_substitution"
)

type Provenance struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Archiver stores a serialized report outside the database and returns its URL.
type Archiver interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// GCSArchiver writes report payloads to a Cloud Storage bucket.
type GCSArchiver struct {
	Bucket string
}

func (a GCSArchiver) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	return utils.UploadBytesToGCS(ctx, a.Bucket, objectName, data, contentType)
}

type Generator struct {
	db          *gorm.DB
	directory   models.Directory
	receivables models.Receivables
	payables    models.Payables
	archiver    Archiver
	settings    config.Settings
	tracer      trace.Tracer
	logger      *logrus.Logger
}

// NewGenerator wires the report generator. Either collaborator may be nil; its figure is then
// reported as zero with a provenance note.
func NewGenerator(db *gorm.DB, directory models.Directory, receivables models.Receivables, payables models.Payables) *Generator {
	return &Generator{
		db:          db,
		directory:   directory,
		receivables: receivables,
		payables:    payables,
		settings:    config.LoadSettings(),
		tracer:      otel.Tracer("reports"),
		logger:      config.GetLogger(),
	}
}

func (g *Generator) WithSettings(settings config.Settings) *Generator {
	g.settings = settings
	return g
}

// WithArchiver makes every generated report archived before it is stored.
func (g *Generator) WithArchiver(archiver Archiver) *Generator {
	g.archiver = archiver
	return g
}

// window is an inclusive range of calendar days. A zero start means unbounded.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) String() string {
	if w.start.IsZero() {
		return "as of " + utils.FormatDate(w.end)
	}
	return utils.FormatDate(w.start) + " to " + utils.FormatDate(w.end)
}

type totals struct {
	income        decimal.Decimal
	expenses      decimal.Decimal
	counts        map[models.TransactionKind]int
	foreignStamps int
}

func (t totals) empty() bool {
	return t.counts[models.TransactionKindIncome]+t.counts[models.TransactionKindExpense] == 0
}

func (t totals) countsJSON() map[string]int {
	return map[string]int{
		string(models.TransactionKindIncome):  t.counts[models.TransactionKindIncome],
		string(models.TransactionKindExpense): t.counts[models.TransactionKindExpense],
	}
}

// sumWindow totals the non-void transactions dated inside w.
func (g *Generator) sumWindow(ctx context.Context, tenantId string, symbol string, w window) (totals, error) {
	q := g.db.WithContext(ctx).
		Select("kind", "net_amount", "currency_symbol").
		Where("tenant_id = ? AND is_void = ? AND transaction_date < ?", tenantId, false, w.end.AddDate(0, 0, 1))
	if !w.start.IsZero() {
		q = q.Where("transaction_date >= ?", w.start)
	}
	var rows []models.Transaction
	if err := q.Find(&rows).Error; err != nil {
		return totals{}, err
	}
	result := totals{income: decimal.Zero, expenses: decimal.Zero, counts: map[models.TransactionKind]int{}}
	for _, r := range rows {
		switch r.Kind {
		case models.TransactionKindIncome:
			result.income = result.income.Add(r.NetAmount)
		case models.TransactionKindExpense:
			result.expenses = result.expenses.Add(r.NetAmount)
		}
		result.counts[r.Kind]++
		if r.CurrencySymbol != symbol {
			result.foreignStamps++
		}
	}
	return result, nil
}

// adaptiveSum totals w and, when w holds no transactions but the tenant has some, widens it to
// cover the tenant's transaction span and totals again.
func (g *Generator) adaptiveSum(ctx context.Context, tenantId string, symbol string, w window) (totals, window, bool, error) {
	result, err := g.sumWindow(ctx, tenantId, symbol, w)
	if err != nil || !result.empty() {
		return result, w, false, err
	}
	first, last, found, err := models.TransactionSpan(ctx, g.db, tenantId)
	if err != nil || !found {
		return result, w, false, err
	}
	widened := w
	if !w.start.IsZero() && first.Before(w.start) {
		widened.start = first
	}
	if last.After(w.end) {
		widened.end = last
	}
	if widened == w {
		return result, w, false, nil
	}
	result, err = g.sumWindow(ctx, tenantId, symbol, widened)
	return result, widened, true, err
}

// currency resolves the display symbol and code of the tenant.
func (g *Generator) currency(tenant *models.Tenant) (string, string, []Provenance) {
	symbol, code := tenant.CurrencySymbol, tenant.CurrencyCode
	if symbol != "" {
		return symbol, code, nil
	}
	symbol = g.settings.DefaultCurrencySymbol
	code, _ = money.CodeForSymbol(symbol)
	return symbol, code, []Provenance{{
		Kind:   ProvenanceCurrencySubstitution,
		Detail: fmt.Sprintf("tenant has no currency; reported in %s", symbol),
	}}
}

func foreignStampNote(t totals, symbol string) []Provenance {
	if t.foreignStamps == 0 {
		return nil
	}
	return []Provenance{{
		Kind:   ProvenanceCurrencySubstitution,
		Detail: fmt.Sprintf("%d transactions stamped in another currency are reported in %s without conversion", t.foreignStamps, symbol),
	}}
}

// collaboratorSum asks an AR/AP collaborator for a figure. Missing collaborators and upstream
// failures yield zero and a provenance note; other errors are returned.
func (g *Generator) collaboratorSum(name string, fn func() (decimal.Decimal, error), wired bool) (decimal.Decimal, *Provenance, error) {
	if !wired {
		return decimal.Zero, &Provenance{Kind: ProvenanceCollaboratorMissing, Detail: name + " is not wired; reported as zero"}, nil
	}
	value, err := fn()
	if err != nil {
		if utils.KindOf(err) == "Upstream" {
			config.LogError(g.logger, "Reports", "collaboratorSum", name, nil, err)
			return decimal.Zero, &Provenance{Kind: ProvenanceCollaboratorFailed, Detail: name + " failed; reported as zero: " + err.Error()}, nil
		}
		return decimal.Zero, nil, err
	}
	return money.Round(value), nil, nil
}

func (g *Generator) startSpan(ctx context.Context, name string, scope models.Scope, kind models.ReportKind) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("tenant_id", scope.TenantId),
		attribute.String("report_kind", string(kind)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// store archives (when configured) and persists one report run.
func (g *Generator) store(ctx context.Context, scope models.Scope, kind models.ReportKind, start *time.Time, end time.Time, generatedAt time.Time, payload any) (*models.FinancialReport, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	report := &models.FinancialReport{
		ID:          uuid.NewString(),
		TenantId:    scope.TenantId,
		ReportKind:  kind,
		StartDate:   start,
		EndDate:     end,
		GeneratedBy: scope.ActorId,
		GeneratedAt: generatedAt,
		Payload:     datatypes.JSON(data),
	}
	if g.archiver != nil {
		if err := g.Archive(ctx, report); err != nil {
			config.LogError(g.logger, "Reports", "store", "archive report", report.ID, err)
		}
	}
	if err := models.CreateFinancialReport(g.db.WithContext(scope.Context(ctx)), report); err != nil {
		return nil, err
	}
	return report, nil
}

// Archive uploads the payload of a report that has not been stored yet and records its URL.
func (g *Generator) Archive(ctx context.Context, report *models.FinancialReport) error {
	if g.archiver == nil {
		return nil
	}
	objectName := fmt.Sprintf("%s/reports/%s/%s.json", report.TenantId, report.ReportKind, report.ID)
	url, err := g.archiver.Put(ctx, objectName, report.Payload, "application/json")
	if err != nil {
		return err
	}
	report.ArchiveURL = &url
	return nil
}

// GetReport returns a stored report. Reports are immutable, so reads are cached.
func (g *Generator) GetReport(ctx context.Context, scope models.Scope, id string) (*models.FinancialReport, error) {
	if _, err := g.directory.Authorize(ctx, scope, models.ActionReportRead); err != nil {
		return nil, err
	}
	key := reportCacheKey(scope.TenantId, id)
	var cached models.FinancialReport
	if ok, err := cacheGet(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}
	report, err := models.GetFinancialReport(scope.Context(ctx), g.db, scope.TenantId, id)
	if err != nil {
		return nil, err
	}
	cacheSet(ctx, scope.TenantId, key, report, g.settings.LedgerCacheTTL)
	return report, nil
}

// ListReports lists stored reports, newest first; kind nil lists every kind.
func (g *Generator) ListReports(ctx context.Context, scope models.Scope, kind *models.ReportKind) ([]models.FinancialReport, error) {
	if _, err := g.directory.Authorize(ctx, scope, models.ActionReportRead); err != nil {
		return nil, err
	}
	return models.ListFinancialReports(scope.Context(ctx), g.db, scope.TenantId, kind)
}

func formatted(symbol string, values map[string]decimal.Decimal) map[string]string {
	display := money.DisplayCurrency(symbol)
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = money.Format(v, display)
	}
	return out
}
