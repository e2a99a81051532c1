package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/testsupport"
	"github.com/mmdatafocus/backoffice/upstream"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

func newDispatcher(t *testing.T) (*Dispatcher, *gorm.DB) {
	t.Helper()
	db := testsupport.OpenDB(t)
	testsupport.SeedTenant(t, db, "T", "$")
	directory := models.NewTenantDirectory(db)
	store := models.NewTransactionStore(db, directory).WithSettings(testsupport.Settings())
	sources := upstream.NewSources(db)
	projector := NewProjector(store, Sources{
		Invoices:  sources.Invoices,
		Receipts:  sources.Receipts,
		JobOrders: sources.JobOrders,
		Waybills:  sources.Waybills,
	})
	return NewDispatcher(projector), db
}

func message(t *testing.T, n Notification) []byte {
	t.Helper()
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func countActive(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Transaction{}).Where("tenant_id = ? AND is_void = ?", "T", false).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestShouldRedeliver(t *testing.T) {
	cases := []struct {
		err      error
		expected bool
	}{
		{fmt.Errorf("%w: bad", utils.ErrInvalidInput), false},
		{fmt.Errorf("%w: invoice x", utils.ErrNotFound), false},
		{fmt.Errorf("%w: foreign", utils.ErrForbidden), false},
		{fmt.Errorf("%w: busy", utils.ErrConflict), true},
		{utils.NewUpstreamError("invoices", errors.New("timeout")), true},
		{context.DeadlineExceeded, true},
		{errors.New("driver: bad connection"), true},
	}
	for _, tc := range cases {
		if got := shouldRedeliver(tc.err); got != tc.expected {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.expected, got)
		}
	}
}

func TestHandleMessage_ProjectsAndRetractsInvoice(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := context.Background()
	tenant := "T"
	testsupport.SeedInvoice(t, db, upstream.Invoice{
		ID:            "INV-7",
		TenantId:      &tenant,
		InvoiceNumber: "INV-7",
		Status:        models.InvoiceStatusPaid,
		GrandTotal:    testsupport.Dec("80"),
		CreatedAt:     testsupport.Date("2025-01-02"),
		UpdatedAt:     testsupport.Date("2025-01-05"),
	})
	n := Notification{Event: EventInvoiceStatusChanged, TenantId: "T", RecordId: "INV-7"}

	if !d.HandleMessage(ctx, "m1", message(t, n)) {
		t.Fatal("expected ack for projected invoice")
	}
	if !d.HandleMessage(ctx, "m2", message(t, n)) {
		t.Fatal("expected ack for duplicate delivery")
	}
	if got := countActive(t, db); got != 1 {
		t.Fatalf("expected 1 active transaction, got %d", got)
	}

	if err := db.Model(&upstream.Invoice{}).Where("id = ?", "INV-7").Update("status", models.InvoiceStatusUnpaid).Error; err != nil {
		t.Fatal(err)
	}
	outcome, err := d.Handle(ctx, n)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeRetracted {
		t.Fatalf("expected retracted, got %s", outcome)
	}
	if got := countActive(t, db); got != 0 {
		t.Fatalf("expected no active transaction, got %d", got)
	}
}

func TestHandleMessage_AcksUnrecoverableMessages(t *testing.T) {
	d, db := newDispatcher(t)
	ctx := context.Background()

	cases := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("{not json")},
		{"unknown event", message(t, Notification{Event: "invoice.deleted", TenantId: "T", RecordId: "x"})},
		{"missing record id", message(t, Notification{Event: EventReceiptCreated, TenantId: "T"})},
		{"unknown record", message(t, Notification{Event: EventWaybillDelivered, TenantId: "T", RecordId: "nope"})},
		{"unknown tenant", message(t, Notification{Event: EventCurrencyChanged, TenantId: "ghost", CurrencySymbol: "€"})},
	}
	for _, tc := range cases {
		if !d.HandleMessage(ctx, tc.name, tc.data) {
			t.Fatalf("%s: expected ack", tc.name)
		}
	}
	if got := countActive(t, db); got != 0 {
		t.Fatalf("expected no transactions, got %d", got)
	}
}

func TestHandleMessage_LogsSkipsWithCorrelationId(t *testing.T) {
	d, _ := newDispatcher(t)
	logger, hook := test.NewNullLogger()
	d.logger = logger
	ctx := context.Background()

	n := Notification{Event: EventReceiptCreated, TenantId: "T", RecordId: "RC-404", CorrelationId: "corr-1"}
	if !d.HandleMessage(ctx, "m1", message(t, n)) {
		t.Fatal("expected ack for missing receipt")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "notification skipped" {
		t.Fatalf("expected a skipped warning, got %+v", entry)
	}
	data, _ := entry.Data["data"].(logrus.Fields)
	if data["correlation_id"] != "corr-1" || data["kind"] != "NotFound" {
		t.Fatalf("unexpected log data %v", entry.Data)
	}

	hook.Reset()
	n.CorrelationId = ""
	if !d.HandleMessage(ctx, "m2", message(t, n)) {
		t.Fatal("expected ack for missing receipt")
	}
	data, _ = hook.LastEntry().Data["data"].(logrus.Fields)
	if id, _ := data["correlation_id"].(string); id == "" || id == "m2" {
		t.Fatalf("expected a generated correlation id, got %q", id)
	}
}

func TestHandle_JobOrderWithoutTenantIsSkipped(t *testing.T) {
	d, db := newDispatcher(t)
	completed := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	testsupport.Seed(t, db, &upstream.JobOrder{
		ID:            "JO-9",
		OrderNumber:   "JO-9",
		Status:        models.JobOrderStatusComplete,
		TotalCost:     testsupport.Dec("10"),
		CompletedDate: &completed,
		CreatedAt:     completed,
	})
	_, err := d.Handle(context.Background(), Notification{Event: EventJobOrderCompleted, TenantId: "T", RecordId: "JO-9"})
	if !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if shouldRedeliver(err) {
		t.Fatal("missing tenant linkage must not be redelivered")
	}
}

func TestHandle_CurrencyChanged(t *testing.T) {
	d, db := newDispatcher(t)
	outcome, err := d.Handle(context.Background(), Notification{Event: EventCurrencyChanged, TenantId: "T", CurrencySymbol: "€"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeRepaired {
		t.Fatalf("expected repaired, got %s", outcome)
	}
	var tenant models.Tenant
	if err := db.Take(&tenant, "id = ?", "T").Error; err != nil {
		t.Fatal(err)
	}
	if tenant.CurrencySymbol != "€" || tenant.CurrencyCode != "EUR" {
		t.Fatalf("expected €/EUR, got %s/%s", tenant.CurrencySymbol, tenant.CurrencyCode)
	}
}
