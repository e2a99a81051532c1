package models

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/backoffice/utils"
)

type TransactionKind string

const (
	TransactionKindIncome  TransactionKind = "income"
	TransactionKindExpense TransactionKind = "expense"
)

func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindIncome, TransactionKindExpense:
		return true
	}
	return false
}

func ParseTransactionKind(s string) (TransactionKind, error) {
	k := TransactionKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid transaction kind %q", utils.ErrInvalidInput, s)
	}
	return k, nil
}

// SourceKind names the upstream module a Transaction was projected from.
type SourceKind string

const (
	SourceKindManual    SourceKind = "manual"
	SourceKindInvoice   SourceKind = "invoice"
	SourceKindReceipt   SourceKind = "receipt"
	SourceKindJobOrder  SourceKind = "job_order"
	SourceKindWaybill   SourceKind = "waybill"
	SourceKindInventory SourceKind = "inventory"
	SourceKindExpense   SourceKind = "expense"
)

func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindManual, SourceKindInvoice, SourceKindReceipt, SourceKindJobOrder,
		SourceKindWaybill, SourceKindInventory, SourceKindExpense:
		return true
	}
	return false
}

// IsProjected reports whether rows of this kind carry a source identity.
func (k SourceKind) IsProjected() bool {
	return k.IsValid() && k != SourceKindManual
}

func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid source kind %q", utils.ErrInvalidInput, s)
	}
	return k, nil
}

type ActorRole string

const (
	ActorRoleOwner      ActorRole = "owner"
	ActorRoleAccountant ActorRole = "accountant"
	ActorRoleClerk      ActorRole = "clerk"
	ActorRoleViewer     ActorRole = "viewer"
)

// Action is checked by the tenant directory before every engine operation.
type Action string

const (
	ActionTransactionWrite Action = "transaction.write"
	ActionTransactionVoid  Action = "transaction.void"
	ActionLedgerRebuild    Action = "ledger.rebuild"
	ActionProjectionSync   Action = "projection.sync"
	ActionReportGenerate   Action = "report.generate"
	ActionReportRead       Action = "report.read"
	ActionCurrencyRestamp  Action = "currency.restamp"
)

var rolePermissions = map[ActorRole]map[Action]bool{
	ActorRoleOwner: {
		ActionTransactionWrite: true,
		ActionTransactionVoid:  true,
		ActionLedgerRebuild:    true,
		ActionProjectionSync:   true,
		ActionReportGenerate:   true,
		ActionReportRead:       true,
		ActionCurrencyRestamp:  true,
	},
	ActorRoleAccountant: {
		ActionTransactionWrite: true,
		ActionTransactionVoid:  true,
		ActionLedgerRebuild:    true,
		ActionProjectionSync:   true,
		ActionReportGenerate:   true,
		ActionReportRead:       true,
	},
	ActorRoleClerk: {
		ActionTransactionWrite: true,
		ActionReportGenerate:   true,
		ActionReportRead:       true,
	},
	ActorRoleViewer: {
		ActionReportRead: true,
	},
}

type ReportKind string

const (
	ReportKindIncomeStatement ReportKind = "income_statement"
	ReportKindBalanceSheet    ReportKind = "balance_sheet"
	ReportKindCashFlow        ReportKind = "cash_flow"
	ReportKindTrialBalance    ReportKind = "trial_balance"
	ReportKindCustom          ReportKind = "custom"
)

func (k ReportKind) IsValid() bool {
	switch k {
	case ReportKindIncomeStatement, ReportKindBalanceSheet, ReportKindCashFlow, ReportKindTrialBalance, ReportKindCustom:
		return true
	}
	return false
}

func ParseReportKind(s string) (ReportKind, error) {
	k := ReportKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid report kind %q", utils.ErrInvalidInput, s)
	}
	return k, nil
}
