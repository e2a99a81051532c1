package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionStore persists transactions and keeps the monthly ledger in lockstep:
// every mutation and the rebuild of each month it touches commit in one database transaction.
type TransactionStore struct {
	db        *gorm.DB
	directory Directory
	settings  config.Settings
}

func NewTransactionStore(db *gorm.DB, directory Directory) *TransactionStore {
	return &TransactionStore{db: db, directory: directory, settings: config.LoadSettings()}
}

func (s *TransactionStore) WithSettings(settings config.Settings) *TransactionStore {
	s.settings = settings
	return s
}

func (s *TransactionStore) DB() *gorm.DB {
	return s.db
}

func (s *TransactionStore) Directory() Directory {
	return s.directory
}

func (s *TransactionStore) mutate(ctx context.Context, scope Scope, fn func(tx *gorm.DB) error) error {
	err := RunSerialized(scope.Context(ctx), s.db, s.settings.TxRetries, fn)
	if err == nil {
		InvalidateLedgerCache(ctx, scope.TenantId)
	}
	return err
}

// Insert writes a new transaction. Projected rows whose source event already has an active
// transaction fail with utils.ErrDuplicateSource.
func (s *TransactionStore) Insert(ctx context.Context, scope Scope, input *NewTransaction) (*Transaction, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: transaction input is required", utils.ErrInvalidInput)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	tenant, err := s.directory.Authorize(ctx, scope, ActionTransactionWrite)
	if err != nil {
		return nil, err
	}
	row := input.toTransaction(uuid.NewString(), tenant.ID, scope.ActorId, tenant.CurrencySymbol)
	err = s.mutate(ctx, scope, func(tx *gorm.DB) error {
		return insertTransaction(tx, row)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func insertTransaction(tx *gorm.DB, row *Transaction) error {
	if err := row.normalize(); err != nil {
		return err
	}
	if err := lockLedgerMonths(tx, row.TenantId, row.YearMonth()); err != nil {
		return err
	}
	if row.SourceKey != nil {
		existing, err := findActiveByKey(tx, row.TenantId, *row.SourceKey, false)
		if err != nil && !utils.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s is transaction %s", utils.ErrDuplicateSource, *row.SourceKey, existing.ID)
		}
	}
	if err := tx.Create(row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %s", utils.ErrDuplicateSource, utils.DereferencePtr(row.SourceKey))
		}
		return err
	}
	return touchMonths(tx, row.TenantId, row.YearMonth())
}

func findActiveByKey(tx *gorm.DB, tenantId string, key string, forUpdate bool) (*Transaction, error) {
	q := tx.Where("tenant_id = ? AND source_key = ? AND is_void = ?", tenantId, key, false)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var result Transaction
	if err := q.Take(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction for %s", utils.ErrNotFound, key)
		}
		return nil, err
	}
	return &result, nil
}

func lockTransaction(tx *gorm.DB, tenantId string, id string) (*Transaction, error) {
	var result Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &result, nil
}

// saveAndTouch persists row and rebuilds its old and new months.
func saveAndTouch(tx *gorm.DB, row *Transaction, before utils.YearMonth) error {
	if err := row.normalize(); err != nil {
		return err
	}
	after := row.YearMonth()
	if err := lockLedgerMonths(tx, row.TenantId, before, after); err != nil {
		return err
	}
	if err := tx.Save(row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %s", utils.ErrDuplicateSource, utils.DereferencePtr(row.SourceKey))
		}
		return err
	}
	return touchMonths(tx, row.TenantId, before, after)
}

// Update applies patch, recomputes the net amount and rebuilds the old and new months.
func (s *TransactionStore) Update(ctx context.Context, scope Scope, id string, patch TransactionPatch) (*Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionTransactionWrite); err != nil {
		return nil, err
	}
	var result *Transaction
	err := s.mutate(ctx, scope, func(tx *gorm.DB) error {
		row, err := lockTransaction(tx, scope.TenantId, id)
		if err != nil {
			return err
		}
		before := row.YearMonth()
		if err := patch.apply(row); err != nil {
			return err
		}
		if err := saveAndTouch(tx, row, before); err != nil {
			return err
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Void retracts a transaction from every aggregate. Voiding a void row is a no-op.
func (s *TransactionStore) Void(ctx context.Context, scope Scope, id string) (*Transaction, error) {
	return s.setVoid(ctx, scope, id, true)
}

// Unvoid restores a voided transaction. It fails with utils.ErrDuplicateSource when another
// active transaction has since been projected from the same source event.
func (s *TransactionStore) Unvoid(ctx context.Context, scope Scope, id string) (*Transaction, error) {
	return s.setVoid(ctx, scope, id, false)
}

func (s *TransactionStore) setVoid(ctx context.Context, scope Scope, id string, void bool) (*Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionTransactionVoid); err != nil {
		return nil, err
	}
	var result *Transaction
	err := s.mutate(ctx, scope, func(tx *gorm.DB) error {
		row, err := lockTransaction(tx, scope.TenantId, id)
		if err != nil {
			return err
		}
		result = row
		if row.IsVoid == void {
			return nil
		}
		row.IsVoid = void
		if key := row.identityKey(); key != nil {
			other, err := findActiveByKey(tx, row.TenantId, *key, false)
			if err != nil && !utils.IsNotFound(err) {
				return err
			}
			if other != nil && other.ID != row.ID {
				return fmt.Errorf("%w: %s is transaction %s", utils.ErrDuplicateSource, *key, other.ID)
			}
		}
		return saveAndTouch(tx, row, row.YearMonth())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VoidBySource voids the active projection of a source event inside the caller's transaction.
// It returns nil, nil when nothing is projected.
func VoidBySource(tx *gorm.DB, tenantId string, kind SourceKind, ref string) (*Transaction, error) {
	row, err := findActiveByKey(tx, tenantId, SourceKeyFor(kind, ref), true)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	row.IsVoid = true
	if err := saveAndTouch(tx, row, row.YearMonth()); err != nil {
		return nil, err
	}
	return row, nil
}

// VoidBySource is the scoped, standalone form of the package function.
func (s *TransactionStore) VoidBySource(ctx context.Context, scope Scope, kind SourceKind, ref string) (*Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionTransactionVoid); err != nil {
		return nil, err
	}
	var result *Transaction
	err := s.mutate(ctx, scope, func(tx *gorm.DB) error {
		row, err := VoidBySource(tx, scope.TenantId, kind, ref)
		result = row
		return err
	})
	return result, err
}

func (s *TransactionStore) Get(ctx context.Context, scope Scope, id string) (*Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return nil, err
	}
	var result Transaction
	err := s.db.WithContext(scope.Context(ctx)).
		Where("tenant_id = ? AND id = ?", scope.TenantId, id).
		Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &result, nil
}

// FindActiveBySource returns the non-void projection of (kind, ref) or utils.ErrNotFound.
func (s *TransactionStore) FindActiveBySource(ctx context.Context, scope Scope, kind SourceKind, ref string) (*Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return nil, err
	}
	return findActiveByKey(s.db.WithContext(scope.Context(ctx)), scope.TenantId, SourceKeyFor(kind, ref), false)
}

// Query lists the tenant's transactions, newest first.
func (s *TransactionStore) Query(ctx context.Context, scope Scope, filter TransactionFilter) ([]Transaction, error) {
	if _, err := s.directory.Authorize(ctx, scope, ActionReportRead); err != nil {
		return nil, err
	}
	q := s.db.WithContext(scope.Context(ctx)).Where("tenant_id = ?", scope.TenantId)
	q = scopeTransactionFilter(q, filter)
	var rows []Transaction
	err := q.Order("transaction_date DESC").Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// RepairFromSource realigns the active projection of a source event with the source values
// (money, date, kind, title), inserting it when missing. Used by forced re-syncs.
func (s *TransactionStore) RepairFromSource(ctx context.Context, scope Scope, input *NewTransaction) (*Transaction, bool, error) {
	if input == nil {
		return nil, false, fmt.Errorf("%w: transaction input is required", utils.ErrInvalidInput)
	}
	if err := input.validate(); err != nil {
		return nil, false, err
	}
	if !input.SourceKind.IsProjected() || input.SourceRef == nil {
		return nil, false, fmt.Errorf("%w: repair needs a projected source identity", utils.ErrInvalidInput)
	}
	tenant, err := s.directory.Authorize(ctx, scope, ActionTransactionWrite)
	if err != nil {
		return nil, false, err
	}
	var (
		result  *Transaction
		created bool
	)
	err = s.mutate(ctx, scope, func(tx *gorm.DB) error {
		key := SourceKeyFor(input.SourceKind, *input.SourceRef)
		row, err := findActiveByKey(tx, tenant.ID, key, true)
		if err != nil && !utils.IsNotFound(err) {
			return err
		}
		if row == nil {
			row = input.toTransaction(uuid.NewString(), tenant.ID, scope.ActorId, tenant.CurrencySymbol)
			created = true
			result = row
			return insertTransaction(tx, row)
		}
		before := row.YearMonth()
		row.Kind = input.Kind
		row.Amount = input.Amount
		row.Tax = input.Tax
		row.Discount = input.Discount
		row.TransactionDate = input.TransactionDate
		row.Title = input.Title
		row.ActorId = scope.ActorId
		result = row
		return saveAndTouch(tx, row, before)
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}
