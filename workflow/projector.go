package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Outcome string

const (
	OutcomeProjected        Outcome = "projected"
	OutcomeSkippedExisting  Outcome = "skipped_existing"
	OutcomeSkippedPredicate Outcome = "skipped_predicate"
	OutcomeRepaired         Outcome = "repaired"
	OutcomeRetracted        Outcome = "retracted"
	OutcomeNotProjected     Outcome = "not_projected"
)

const syncLockTTL = 10 * time.Minute

// Sources are the upstream collaborators the projector reads. A nil source is treated as
// not wired: sync skips its kind and notifications for it are rejected.
type Sources struct {
	Invoices  models.InvoiceSource
	Receipts  models.ReceiptSource
	JobOrders models.JobOrderSource
	Waybills  models.WaybillSource
}

// projection is the outcome of applying one rule to one upstream record.
type projection struct {
	kind      models.SourceKind
	ref       string
	tenantId  string
	qualifies bool
	input     *models.NewTransaction
}

func label(number string, id string) string {
	if number != "" {
		return number
	}
	return id
}

func projectedInput(txKind models.TransactionKind, source models.SourceKind, ref string, amount decimal.Decimal, date time.Time, title string) *models.NewTransaction {
	return &models.NewTransaction{
		Kind:            txKind,
		Amount:          amount,
		Tax:             decimal.Zero,
		Discount:        decimal.Zero,
		SourceKind:      source,
		SourceRef:       &ref,
		TransactionDate: utils.DateOnly(date),
		Title:           title,
	}
}

func invoiceRule(rec models.InvoiceRecord) projection {
	input := projectedInput(models.TransactionKindIncome, models.SourceKindInvoice, rec.ID, rec.GrandTotal, rec.UpdatedAt,
		"Invoice Payment - "+label(rec.Number, rec.ID))
	input.Tax = rec.TotalTax
	input.Discount = rec.TotalDiscount
	return projection{
		kind:      models.SourceKindInvoice,
		ref:       rec.ID,
		tenantId:  rec.TenantId,
		qualifies: rec.Status == models.InvoiceStatusPaid && rec.GrandTotal.IsPositive(),
		input:     input,
	}
}

func receiptRule(rec models.ReceiptRecord) projection {
	return projection{
		kind:      models.SourceKindReceipt,
		ref:       rec.ID,
		tenantId:  rec.TenantId,
		qualifies: rec.AmountReceived.IsPositive(),
		input: projectedInput(models.TransactionKindIncome, models.SourceKindReceipt, rec.ID, rec.AmountReceived, rec.DateReceived,
			"Receipt - "+label(rec.Number, rec.ID)),
	}
}

func jobOrderRule(rec models.JobOrderRecord) projection {
	date := rec.CreatedDate
	if rec.CompletedDate != nil && !rec.CompletedDate.IsZero() {
		date = *rec.CompletedDate
	}
	return projection{
		kind:      models.SourceKindJobOrder,
		ref:       rec.ID,
		tenantId:  rec.TenantId,
		qualifies: rec.Status == models.JobOrderStatusComplete && rec.TotalCost.IsPositive(),
		input: projectedInput(models.TransactionKindExpense, models.SourceKindJobOrder, rec.ID, rec.TotalCost, date,
			"Job Order - "+label(rec.Number, rec.ID)),
	}
}

func waybillRule(rec models.WaybillRecord) projection {
	date := rec.CreatedDate
	if rec.DeliveryDate != nil && !rec.DeliveryDate.IsZero() {
		date = *rec.DeliveryDate
	}
	return projection{
		kind:      models.SourceKindWaybill,
		ref:       rec.ID,
		tenantId:  rec.TenantId,
		qualifies: rec.Status == models.WaybillStatusDelivered && rec.TotalAmount.IsPositive(),
		input: projectedInput(models.TransactionKindIncome, models.SourceKindWaybill, rec.ID, rec.TotalAmount, date,
			"Waybill - "+label(rec.Number, rec.ID)),
	}
}

// Projector turns upstream lifecycle events into idempotent transaction writes.
type Projector struct {
	store   *models.TransactionStore
	sources Sources
	logger  *logrus.Logger
}

func NewProjector(store *models.TransactionStore, sources Sources) *Projector {
	return &Projector{store: store, sources: sources, logger: config.GetLogger()}
}

func (p *Projector) Store() *models.TransactionStore {
	return p.store
}

func (p *Projector) Sources() Sources {
	return p.sources
}

func (p *Projector) ProjectInvoice(ctx context.Context, scope models.Scope, rec models.InvoiceRecord) (Outcome, error) {
	return p.project(ctx, scope, invoiceRule(rec), false)
}

func (p *Projector) ProjectReceipt(ctx context.Context, scope models.Scope, rec models.ReceiptRecord) (Outcome, error) {
	return p.project(ctx, scope, receiptRule(rec), false)
}

func (p *Projector) ProjectJobOrder(ctx context.Context, scope models.Scope, rec models.JobOrderRecord) (Outcome, error) {
	return p.project(ctx, scope, jobOrderRule(rec), false)
}

func (p *Projector) ProjectWaybill(ctx context.Context, scope models.Scope, rec models.WaybillRecord) (Outcome, error) {
	return p.project(ctx, scope, waybillRule(rec), false)
}

// project applies one rule. The existence check is repeated inside the insert's transaction
// and backed by the unique identity index, so a concurrent projection of the same event
// surfaces as ErrDuplicateSource and is reported as already done.
func (p *Projector) project(ctx context.Context, scope models.Scope, pr projection, force bool) (Outcome, error) {
	if pr.tenantId == "" {
		return "", fmt.Errorf("%w: %s %s has no tenant linkage", utils.ErrInvalidInput, pr.kind, pr.ref)
	}
	if pr.tenantId != scope.TenantId {
		return "", fmt.Errorf("%w: %s %s belongs to another tenant", utils.ErrForbidden, pr.kind, pr.ref)
	}
	if !pr.qualifies {
		return OutcomeSkippedPredicate, nil
	}
	if force {
		_, created, err := p.store.RepairFromSource(ctx, scope, pr.input)
		if err != nil {
			return "", err
		}
		if created {
			return OutcomeProjected, nil
		}
		return OutcomeRepaired, nil
	}

	existing, err := p.store.FindActiveBySource(ctx, scope, pr.kind, pr.ref)
	if err != nil && !utils.IsNotFound(err) {
		return "", err
	}
	if existing != nil {
		return OutcomeSkippedExisting, nil
	}
	if _, err := p.store.Insert(ctx, scope, pr.input); err != nil {
		if errors.Is(err, utils.ErrDuplicateSource) {
			return OutcomeSkippedExisting, nil
		}
		return "", err
	}
	return OutcomeProjected, nil
}

// RecordManual inserts a user-entered transaction. Manual entries carry no source identity
// and are never deduplicated.
func (p *Projector) RecordManual(ctx context.Context, scope models.Scope, input *models.NewTransaction) (*models.Transaction, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: transaction input is required", utils.ErrInvalidInput)
	}
	manual := *input
	manual.SourceKind = models.SourceKindManual
	manual.SourceRef = nil
	return p.store.Insert(ctx, scope, &manual)
}

// Retract voids the active projection of a source event that no longer qualifies.
func (p *Projector) Retract(ctx context.Context, scope models.Scope, kind models.SourceKind, ref string) (Outcome, error) {
	if !kind.IsProjected() {
		return "", fmt.Errorf("%w: %s events are not projected", utils.ErrInvalidInput, kind)
	}
	row, err := p.store.VoidBySource(ctx, scope, kind, ref)
	if err != nil {
		return "", err
	}
	if row == nil {
		return OutcomeNotProjected, nil
	}
	p.logger.WithFields(logrus.Fields{
		"tenant_id":      scope.TenantId,
		"source":         models.SourceKeyFor(kind, ref),
		"transaction_id": row.ID,
	}).Info("projection retracted")
	return OutcomeRetracted, nil
}

// SyncResult counts a bulk sync run. Failed counts records (and collaborator listings) that
// errored; they are logged and never abort the run.
type SyncResult struct {
	TenantId  string                                `json:"tenant_id"`
	Projected int                                   `json:"projected"`
	Existing  int                                   `json:"skipped_existing"`
	Skipped   int                                   `json:"skipped_predicate"`
	Repaired  int                                   `json:"repaired"`
	Failed    int                                   `json:"failed"`
	ByKind    map[models.SourceKind]map[Outcome]int `json:"by_kind"`
}

func (r *SyncResult) record(kind models.SourceKind, outcome Outcome) {
	if r.ByKind[kind] == nil {
		r.ByKind[kind] = map[Outcome]int{}
	}
	r.ByKind[kind][outcome]++
	switch outcome {
	case OutcomeProjected:
		r.Projected++
	case OutcomeSkippedExisting:
		r.Existing++
	case OutcomeSkippedPredicate:
		r.Skipped++
	case OutcomeRepaired:
		r.Repaired++
	}
}

// SyncKinds are the source kinds with a projection rule, in sync order.
var SyncKinds = []models.SourceKind{
	models.SourceKindInvoice,
	models.SourceKindReceipt,
	models.SourceKindJobOrder,
	models.SourceKindWaybill,
}

// SyncAll re-projects every qualifying upstream record of the tenant, for one source kind or
// all of them. With force the projection is realigned with the source instead of skipped.
func (p *Projector) SyncAll(ctx context.Context, scope models.Scope, kind *models.SourceKind, force bool) (SyncResult, error) {
	result := SyncResult{TenantId: scope.TenantId, ByKind: map[models.SourceKind]map[Outcome]int{}}
	if _, err := p.store.Directory().Authorize(ctx, scope, models.ActionProjectionSync); err != nil {
		return result, err
	}
	kinds := SyncKinds
	if kind != nil {
		if !slices.Contains(SyncKinds, *kind) {
			return result, fmt.Errorf("%w: no projection rule for %q", utils.ErrInvalidInput, *kind)
		}
		kinds = []models.SourceKind{*kind}
	}

	release, err := utils.TenantLock(ctx, scope.TenantId, "ProjectionSync", syncLockTTL, "Projector", "SyncAll")
	if err != nil {
		return result, err
	}
	defer release()

	for _, k := range kinds {
		rules, err := p.listRules(ctx, scope.TenantId, k)
		if err != nil {
			config.LogError(p.logger, "Projector", "SyncAll", "list "+string(k), scope.TenantId, err)
			result.Failed++
			continue
		}
		for _, pr := range rules {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			outcome, err := p.project(ctx, scope, pr, force)
			if err != nil {
				config.LogError(p.logger, "Projector", "SyncAll", "project", models.SourceKeyFor(pr.kind, pr.ref), err)
				result.Failed++
				continue
			}
			result.record(k, outcome)
		}
	}
	p.logger.WithFields(logrus.Fields{
		"tenant_id": result.TenantId,
		"projected": result.Projected,
		"existing":  result.Existing,
		"skipped":   result.Skipped,
		"repaired":  result.Repaired,
		"failed":    result.Failed,
		"force":     force,
	}).Info("projection sync finished")
	return result, nil
}

func (p *Projector) listRules(ctx context.Context, tenantId string, kind models.SourceKind) ([]projection, error) {
	var rules []projection
	switch kind {
	case models.SourceKindInvoice:
		if p.sources.Invoices == nil {
			return nil, nil
		}
		records, err := p.sources.Invoices.ListPaid(ctx, tenantId)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			rules = append(rules, invoiceRule(rec))
		}
	case models.SourceKindReceipt:
		if p.sources.Receipts == nil {
			return nil, nil
		}
		records, err := p.sources.Receipts.ListCreated(ctx, tenantId)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			rules = append(rules, receiptRule(rec))
		}
	case models.SourceKindJobOrder:
		if p.sources.JobOrders == nil {
			return nil, nil
		}
		records, err := p.sources.JobOrders.ListCompleted(ctx, tenantId)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			rules = append(rules, jobOrderRule(rec))
		}
	case models.SourceKindWaybill:
		if p.sources.Waybills == nil {
			return nil, nil
		}
		records, err := p.sources.Waybills.ListDelivered(ctx, tenantId)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			rules = append(rules, waybillRule(rec))
		}
	}
	return rules, nil
}
