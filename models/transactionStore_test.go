package models_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/testsupport"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	directory *models.TenantDirectory
	store     *models.TransactionStore
	ledgers   *models.LedgerAggregator
	owner     models.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	testsupport.SeedTenant(t, db, "t1", "$")
	testsupport.SeedActor(t, db, "alice", "t1", models.ActorRoleOwner)
	directory := models.NewTenantDirectory(db)
	return &fixture{
		db:        db,
		directory: directory,
		store:     models.NewTransactionStore(db, directory).WithSettings(testsupport.Settings()),
		ledgers:   models.NewLedgerAggregator(db, directory, nil, nil).WithSettings(testsupport.Settings()),
		owner:     models.NewScope("t1", "alice"),
	}
}

func (f *fixture) ledger(t *testing.T, year int, month time.Month) *models.Ledger {
	t.Helper()
	row, err := f.ledgers.Get(context.Background(), f.owner, year, month)
	if err != nil {
		t.Fatalf("get ledger %d-%d: %v", year, month, err)
	}
	return row
}

func income(amount string, date string) *models.NewTransaction {
	return &models.NewTransaction{
		Kind:            models.TransactionKindIncome,
		Amount:          testsupport.Dec(amount),
		SourceKind:      models.SourceKindManual,
		TransactionDate: testsupport.Date(date),
		Title:           "manual income",
	}
}

func expense(amount string, date string) *models.NewTransaction {
	in := income(amount, date)
	in.Kind = models.TransactionKindExpense
	in.Title = "manual expense"
	return in
}

func assertDec(t *testing.T, what string, got decimal.Decimal, expected string) {
	t.Helper()
	if !got.Equal(testsupport.Dec(expected)) {
		t.Fatalf("%s: expected %s, got %s", what, expected, got)
	}
}

func TestInsert_ComputesNetAmountAndRebuildsMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := income("1000", "2025-03-15")
	in.Tax = testsupport.Dec("50")
	in.Discount = testsupport.Dec("20.005")
	tx, err := f.store.Insert(ctx, f.owner, in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if tx.ID == "" {
		t.Fatalf("expected generated id")
	}
	if tx.CurrencySymbol != "$" {
		t.Fatalf("expected tenant currency stamp, got %q", tx.CurrencySymbol)
	}
	assertDec(t, "discount rounded half-even", tx.Discount, "20")
	assertDec(t, "net amount", tx.NetAmount, "1030")

	if _, err := f.store.Insert(ctx, f.owner, expense("200.50", "2025-03-31")); err != nil {
		t.Fatalf("insert expense: %v", err)
	}
	if _, err := f.store.Insert(ctx, f.owner, expense("99", "2025-04-01")); err != nil {
		t.Fatalf("insert april expense: %v", err)
	}

	march := f.ledger(t, 2025, time.March)
	assertDec(t, "march income", march.TotalIncome, "1030")
	assertDec(t, "march expense", march.TotalExpense, "200.50")
	assertDec(t, "march net", march.NetProfit, "829.50")
	if march.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions in march, got %d", march.TransactionCount)
	}
	april := f.ledger(t, 2025, time.April)
	assertDec(t, "april expense", april.TotalExpense, "99")
	assertDec(t, "april net", april.NetProfit, "-99")

	stored, err := f.store.Get(ctx, f.owner, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertDec(t, "stored net", stored.NetAmount, "1030")
	if got := utils.FormatDate(stored.TransactionDate); got != "2025-03-15" {
		t.Fatalf("expected calendar day 2025-03-15, got %s", got)
	}
}

func TestInsert_ExplicitCurrencySymbolIsKept(t *testing.T) {
	f := newFixture(t)
	in := income("10", "2025-01-02")
	in.CurrencySymbol = "€"
	tx, err := f.store.Insert(context.Background(), f.owner, in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if tx.CurrencySymbol != "€" {
		t.Fatalf("expected caller symbol, got %q", tx.CurrencySymbol)
	}
}

func TestInsert_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	neg := income("-1", "2025-01-01")
	if _, err := f.store.Insert(ctx, f.owner, neg); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("negative amount: expected ErrInvalidInput, got %v", err)
	}
	negTax := income("1", "2025-01-01")
	negTax.Tax = testsupport.Dec("-0.01")
	if _, err := f.store.Insert(ctx, f.owner, negTax); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("negative tax: expected ErrInvalidInput, got %v", err)
	}
	huge := income("1000000000.01", "2025-01-01")
	if _, err := f.store.Insert(ctx, f.owner, huge); !errors.Is(err, utils.ErrOutOfRange) {
		t.Fatalf("huge amount: expected ErrOutOfRange, got %v", err)
	}
	noDate := income("1", "2025-01-01")
	noDate.TransactionDate = time.Time{}
	if _, err := f.store.Insert(ctx, f.owner, noDate); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("missing date: expected ErrInvalidInput, got %v", err)
	}
	badKind := income("1", "2025-01-01")
	badKind.Kind = "transfer"
	if _, err := f.store.Insert(ctx, f.owner, badKind); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("bad kind: expected ErrInvalidInput, got %v", err)
	}

	rows, err := f.store.Query(ctx, f.owner, models.TransactionFilter{IncludeVoid: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("rejected inputs must not persist, found %d rows", len(rows))
	}
}

func TestInsert_DuplicateSourceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	projected := &models.NewTransaction{
		Kind:            models.TransactionKindIncome,
		Amount:          testsupport.Dec("1000"),
		SourceKind:      models.SourceKindInvoice,
		SourceRef:       testsupport.Ptr("INV-100"),
		TransactionDate: testsupport.Date("2025-03-15"),
	}
	first, err := f.store.Insert(ctx, f.owner, projected)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := f.store.Insert(ctx, f.owner, projected); !errors.Is(err, utils.ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}

	found, err := f.store.FindActiveBySource(ctx, f.owner, models.SourceKindInvoice, "INV-100")
	if err != nil {
		t.Fatalf("find by source: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, found.ID)
	}

	// the same reference under another kind is a different source event
	other := *projected
	other.SourceKind = models.SourceKindWaybill
	if _, err := f.store.Insert(ctx, f.owner, &other); err != nil {
		t.Fatalf("waybill with same ref should insert: %v", err)
	}

	// manual entries never collide
	for i := 0; i < 2; i++ {
		if _, err := f.store.Insert(ctx, f.owner, income("5", "2025-03-15")); err != nil {
			t.Fatalf("manual insert %d: %v", i, err)
		}
	}
	assertDec(t, "march income", f.ledger(t, 2025, time.March).TotalIncome, "2010")
}

func TestInsert_ConcurrentSameSourceKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.store.Insert(ctx, f.owner, &models.NewTransaction{
				Kind:            models.TransactionKindIncome,
				Amount:          testsupport.Dec("10"),
				SourceKind:      models.SourceKindReceipt,
				SourceRef:       testsupport.Ptr("RC-1"),
				TransactionDate: testsupport.Date("2025-05-05"),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, utils.ErrDuplicateSource):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful insert, got %d", ok)
	}
	assertDec(t, "may income", f.ledger(t, 2025, time.May).TotalIncome, "10")
}

func TestVoid_ExcludesFromLedgerAndUnvoidRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := &models.NewTransaction{
		Kind:            models.TransactionKindIncome,
		Amount:          testsupport.Dec("1000"),
		Tax:             testsupport.Dec("50"),
		SourceKind:      models.SourceKindInvoice,
		SourceRef:       testsupport.Ptr("INV-7"),
		TransactionDate: testsupport.Date("2025-03-15"),
	}
	tx, err := f.store.Insert(ctx, f.owner, in)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Insert(ctx, f.owner, expense("100", "2025-03-20")); err != nil {
		t.Fatal(err)
	}
	before := f.ledger(t, 2025, time.March)

	voided, err := f.store.Void(ctx, f.owner, tx.ID)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if !voided.IsVoid {
		t.Fatalf("expected void flag")
	}
	after := f.ledger(t, 2025, time.March)
	assertDec(t, "income after void", after.TotalIncome, "0")
	assertDec(t, "net after void", after.NetProfit, "-100")
	if after.TotalIncome.GreaterThan(before.TotalIncome) || after.TotalExpense.GreaterThan(before.TotalExpense) {
		t.Fatalf("void must never increase totals")
	}

	// voiding twice is a no-op
	if _, err := f.store.Void(ctx, f.owner, tx.ID); err != nil {
		t.Fatalf("second void: %v", err)
	}

	// the source is free again: a new projection may be written
	reprojected, err := f.store.Insert(ctx, f.owner, in)
	if err != nil {
		t.Fatalf("re-project after void: %v", err)
	}
	if _, err := f.store.Unvoid(ctx, f.owner, tx.ID); !errors.Is(err, utils.ErrDuplicateSource) {
		t.Fatalf("unvoid with a newer projection: expected ErrDuplicateSource, got %v", err)
	}
	if _, err := f.store.Void(ctx, f.owner, reprojected.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Unvoid(ctx, f.owner, tx.ID); err != nil {
		t.Fatalf("unvoid: %v", err)
	}
	assertDec(t, "income after unvoid", f.ledger(t, 2025, time.March).TotalIncome, "1050")

	if _, err := f.store.Void(ctx, f.owner, "missing"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_MovesAcrossMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.store.Insert(ctx, f.owner, income("300", "2025-01-31"))
	if err != nil {
		t.Fatal(err)
	}
	newDate := testsupport.Date("2025-02-01")
	newTax := testsupport.Dec("30")
	updated, err := f.store.Update(ctx, f.owner, tx.ID, models.TransactionPatch{
		TransactionDate: &newDate,
		Tax:             &newTax,
		Title:           testsupport.Ptr("moved"),
		IsReconciled:    utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	assertDec(t, "net recomputed", updated.NetAmount, "330")
	if !updated.IsReconciled || updated.Title != "moved" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	assertDec(t, "january emptied", f.ledger(t, 2025, time.January).TotalIncome, "0")
	assertDec(t, "february filled", f.ledger(t, 2025, time.February).TotalIncome, "330")

	negative := testsupport.Dec("-5")
	if _, err := f.store.Update(ctx, f.owner, tx.ID, models.TransactionPatch{Discount: &negative}); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	assertDec(t, "failed update leaves month", f.ledger(t, 2025, time.February).TotalIncome, "330")
}

func TestQuery_FiltersOrderAndTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testsupport.SeedTenant(t, f.db, "t2", "₦")
	testsupport.SeedActor(t, f.db, "bob", "t2", models.ActorRoleOwner)
	other := models.NewScope("t2", "bob")

	a := income("10", "2025-01-10")
	a.Title = "Coffee beans"
	b := expense("20", "2025-02-10")
	b.Notes = "rent for FEBRUARY"
	c := income("30", "2025-02-10")
	c.Description = "consulting"
	for _, in := range []*models.NewTransaction{a, b, c} {
		if _, err := f.store.Insert(ctx, f.owner, in); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.store.Insert(ctx, other, income("999", "2025-02-10")); err != nil {
		t.Fatal(err)
	}

	all, err := f.store.Query(ctx, f.owner, models.TransactionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows for t1, got %d", len(all))
	}
	for _, row := range all {
		if row.TenantId != "t1" {
			t.Fatalf("tenant leak: %+v", row)
		}
	}
	if utils.FormatDate(all[0].TransactionDate) != "2025-02-10" || utils.FormatDate(all[2].TransactionDate) != "2025-01-10" {
		t.Fatalf("expected newest first, got %v, %v", all[0].TransactionDate, all[2].TransactionDate)
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) && !all[0].CreatedAt.Equal(all[1].CreatedAt) {
		t.Fatalf("same-day rows must be ordered by created_at desc")
	}

	kind := models.TransactionKindExpense
	rows, _ := f.store.Query(ctx, f.owner, models.TransactionFilter{Kind: &kind})
	if len(rows) != 1 || !rows[0].Amount.Equal(testsupport.Dec("20")) {
		t.Fatalf("kind filter: %+v", rows)
	}
	rows, _ = f.store.Query(ctx, f.owner, models.TransactionFilter{Search: "february"})
	if len(rows) != 1 || rows[0].Kind != models.TransactionKindExpense {
		t.Fatalf("notes search: %+v", rows)
	}
	rows, _ = f.store.Query(ctx, f.owner, models.TransactionFilter{Search: "COFFEE"})
	if len(rows) != 1 {
		t.Fatalf("title search: %+v", rows)
	}
	from, to := testsupport.Date("2025-02-01"), testsupport.Date("2025-02-10")
	rows, _ = f.store.Query(ctx, f.owner, models.TransactionFilter{FromDate: &from, ToDate: &to})
	if len(rows) != 2 {
		t.Fatalf("inclusive date range: expected 2, got %d", len(rows))
	}
	minAmount := testsupport.Dec("15")
	maxAmount := testsupport.Dec("25")
	rows, _ = f.store.Query(ctx, f.owner, models.TransactionFilter{MinAmount: &minAmount, MaxAmount: &maxAmount})
	if len(rows) != 1 {
		t.Fatalf("amount range: expected 1, got %d", len(rows))
	}
	rows, _ = f.store.Query(ctx, f.owner, models.TransactionFilter{IsReconciled: utils.NewTrue()})
	if len(rows) != 0 {
		t.Fatalf("reconciled filter: expected 0, got %d", len(rows))
	}

	if _, err := f.store.Get(ctx, other, all[0].ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("cross-tenant get must not see the row, got %v", err)
	}
	if _, err := f.store.Get(ctx, models.NewScope("t1", "bob"), all[0].ID); !errors.Is(err, utils.ErrForbidden) {
		t.Fatalf("foreign actor: expected ErrForbidden, got %v", err)
	}
}

func TestRepairFromSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := &models.NewTransaction{
		Kind:            models.TransactionKindExpense,
		Amount:          testsupport.Dec("400"),
		SourceKind:      models.SourceKindJobOrder,
		SourceRef:       testsupport.Ptr("JO-1"),
		TransactionDate: testsupport.Date("2025-06-30"),
		Title:           "Job Order - JO-1",
	}
	row, created, err := f.store.RepairFromSource(ctx, f.owner, in)
	if err != nil || !created {
		t.Fatalf("repair on empty should insert: created=%v err=%v", created, err)
	}

	in.Amount = testsupport.Dec("450")
	in.TransactionDate = testsupport.Date("2025-07-01")
	repaired, created, err := f.store.RepairFromSource(ctx, f.owner, in)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if created || repaired.ID != row.ID {
		t.Fatalf("repair must update the existing projection")
	}
	assertDec(t, "june expense", f.ledger(t, 2025, time.June).TotalExpense, "0")
	assertDec(t, "july expense", f.ledger(t, 2025, time.July).TotalExpense, "450")

	rows, _ := f.store.Query(ctx, f.owner, models.TransactionFilter{IncludeVoid: true})
	if len(rows) != 1 {
		t.Fatalf("repair must not duplicate, got %d rows", len(rows))
	}

	if _, _, err := f.store.RepairFromSource(ctx, f.owner, income("1", "2025-01-01")); !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("manual repair: expected ErrInvalidInput, got %v", err)
	}
}
