package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func notFoundOr(collaborator string, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", utils.ErrNotFound, collaborator, id)
	}
	return utils.NewUpstreamError(collaborator, err)
}

func endOfDay(t time.Time) time.Time {
	return utils.DateOnly(t).AddDate(0, 0, 1)
}

type InvoiceRepository struct {
	db *gorm.DB
}

var (
	_ models.InvoiceSource = (*InvoiceRepository)(nil)
	_ models.Receivables   = (*InvoiceRepository)(nil)
)

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (inv *Invoice) toRecord() models.InvoiceRecord {
	return models.InvoiceRecord{
		ID:            inv.ID,
		TenantId:      utils.DereferencePtr(inv.TenantId),
		Number:        inv.InvoiceNumber,
		Status:        inv.Status,
		GrandTotal:    inv.GrandTotal,
		TotalTax:      inv.TotalTax,
		TotalDiscount: inv.TotalDiscount,
		BalanceDue:    inv.BalanceDue,
		UpdatedAt:     inv.UpdatedAt,
	}
}

func (r *InvoiceRepository) ListPaid(ctx context.Context, tenantId string) ([]models.InvoiceRecord, error) {
	var rows []Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantId, models.InvoiceStatusPaid).
		Order("updated_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, utils.NewUpstreamError("invoices", err)
	}
	out := make([]models.InvoiceRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*models.InvoiceRecord, error) {
	var row Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFoundOr("invoices", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// SumUnpaidBalances adds the balance due of unpaid and partially paid invoices dated on or before asOf.
func (r *InvoiceRepository) SumUnpaidBalances(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error) {
	var rows []Invoice
	err := r.db.WithContext(ctx).Select("balance_due").
		Where("tenant_id = ? AND status IN ? AND invoice_date < ?", tenantId,
			[]string{models.InvoiceStatusUnpaid, models.InvoiceStatusPartial}, endOfDay(asOf)).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, utils.NewUpstreamError("invoices", err)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.BalanceDue)
	}
	return total, nil
}

type ReceiptRepository struct {
	db *gorm.DB
}

var (
	_ models.ReceiptSource   = (*ReceiptRepository)(nil)
	_ models.PendingReceipts = (*ReceiptRepository)(nil)
)

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (rc *Receipt) toRecord() models.ReceiptRecord {
	return models.ReceiptRecord{
		ID:             rc.ID,
		TenantId:       utils.DereferencePtr(rc.TenantId),
		Number:         rc.ReceiptNumber,
		Status:         rc.Status,
		AmountReceived: rc.AmountReceived,
		DateReceived:   rc.DateReceived,
	}
}

func (r *ReceiptRepository) ListCreated(ctx context.Context, tenantId string) ([]models.ReceiptRecord, error) {
	var rows []Receipt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantId).
		Order("date_received").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, utils.NewUpstreamError("receipts", err)
	}
	out := make([]models.ReceiptRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*models.ReceiptRecord, error) {
	var row Receipt
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFoundOr("receipts", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// SumPendingReceipts adds receipts still in pending status received on or before asOf.
func (r *ReceiptRepository) SumPendingReceipts(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error) {
	var rows []Receipt
	err := r.db.WithContext(ctx).Select("amount_received").
		Where("tenant_id = ? AND status = ? AND date_received < ?", tenantId, models.ReceiptStatusPending, endOfDay(asOf)).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, utils.NewUpstreamError("receipts", err)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.AmountReceived)
	}
	return total, nil
}

type JobOrderRepository struct {
	db *gorm.DB
}

var _ models.JobOrderSource = (*JobOrderRepository)(nil)

func NewJobOrderRepository(db *gorm.DB) *JobOrderRepository {
	return &JobOrderRepository{db: db}
}

func (jo *JobOrder) toRecord() models.JobOrderRecord {
	return models.JobOrderRecord{
		ID:            jo.ID,
		TenantId:      utils.DereferencePtr(jo.TenantId),
		Number:        jo.OrderNumber,
		Status:        jo.Status,
		TotalCost:     jo.TotalCost,
		CompletedDate: jo.CompletedDate,
		CreatedDate:   jo.CreatedAt,
	}
}

func (r *JobOrderRepository) ListCompleted(ctx context.Context, tenantId string) ([]models.JobOrderRecord, error) {
	var rows []JobOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantId, models.JobOrderStatusComplete).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, utils.NewUpstreamError("job_orders", err)
	}
	out := make([]models.JobOrderRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (r *JobOrderRepository) GetByID(ctx context.Context, id string) (*models.JobOrderRecord, error) {
	var row JobOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFoundOr("job_orders", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

type WaybillRepository struct {
	db *gorm.DB
}

var _ models.WaybillSource = (*WaybillRepository)(nil)

func NewWaybillRepository(db *gorm.DB) *WaybillRepository {
	return &WaybillRepository{db: db}
}

func (w *Waybill) toRecord() models.WaybillRecord {
	return models.WaybillRecord{
		ID:           w.ID,
		TenantId:     utils.DereferencePtr(w.TenantId),
		Number:       w.WaybillNumber,
		Status:       w.Status,
		TotalAmount:  w.TotalAmount,
		DeliveryDate: w.DeliveryDate,
		CreatedDate:  w.CreatedAt,
	}
}

func (r *WaybillRepository) ListDelivered(ctx context.Context, tenantId string) ([]models.WaybillRecord, error) {
	var rows []Waybill
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantId, models.WaybillStatusDelivered).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, utils.NewUpstreamError("waybills", err)
	}
	out := make([]models.WaybillRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (r *WaybillRepository) GetByID(ctx context.Context, id string) (*models.WaybillRecord, error) {
	var row Waybill
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFoundOr("waybills", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

type PayableRepository struct {
	db *gorm.DB
}

var _ models.Payables = (*PayableRepository)(nil)

func NewPayableRepository(db *gorm.DB) *PayableRepository {
	return &PayableRepository{db: db}
}

// SumPendingPayables adds unpaid and pending obligations created on or before asOf.
func (r *PayableRepository) SumPendingPayables(ctx context.Context, tenantId string, asOf time.Time) (decimal.Decimal, error) {
	var rows []Payable
	err := r.db.WithContext(ctx).Select("amount").
		Where("tenant_id = ? AND status IN ? AND created_at < ?", tenantId,
			[]string{PayableStatusUnpaid, PayableStatusPending}, endOfDay(asOf)).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, utils.NewUpstreamError("payables", err)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total, nil
}

// Sources bundles every collaborator adapter over one database.
type Sources struct {
	Invoices  *InvoiceRepository
	Receipts  *ReceiptRepository
	JobOrders *JobOrderRepository
	Waybills  *WaybillRepository
	Payables  *PayableRepository
}

func NewSources(db *gorm.DB) Sources {
	return Sources{
		Invoices:  NewInvoiceRepository(db),
		Receipts:  NewReceiptRepository(db),
		JobOrders: NewJobOrderRepository(db),
		Waybills:  NewWaybillRepository(db),
		Payables:  NewPayableRepository(db),
	}
}
