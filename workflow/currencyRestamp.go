package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/money"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const restampLockTTL = 5 * time.Minute

type RestampResult struct {
	TenantId      string `json:"tenant_id"`
	Symbol        string `json:"symbol"`
	Code          string `json:"code"`
	TenantChanged bool   `json:"tenant_changed"`
	RowsUpdated   int64  `json:"rows_updated"`
}

// RestampCurrency sets the tenant's display currency and stamps its symbol on every
// transaction of the tenant in one database transaction. Amounts are never touched.
//
// An empty symbol re-applies the tenant's current currency, which repairs rows stamped
// before an out-of-band currency change. An empty code is derived from the symbol.
func RestampCurrency(ctx context.Context, db *gorm.DB, directory models.Directory, scope models.Scope, symbol string, code string) (RestampResult, error) {
	result := RestampResult{TenantId: scope.TenantId}
	tenant, err := directory.Authorize(ctx, scope, models.ActionCurrencyRestamp)
	if err != nil {
		return result, err
	}

	symbol = strings.TrimSpace(symbol)
	code = strings.ToUpper(strings.TrimSpace(code))
	if symbol == "" {
		symbol = tenant.CurrencySymbol
		if code == "" {
			code = tenant.CurrencyCode
		}
	}
	if code == "" {
		if derived, ok := money.CodeForSymbol(symbol); ok {
			code = derived
		} else if symbol == tenant.CurrencySymbol {
			code = tenant.CurrencyCode
		}
	}
	if symbol == "" || len(symbol) > 16 || len(code) > 8 {
		return result, fmt.Errorf("%w: currency symbol %q code %q", utils.ErrInvalidInput, symbol, code)
	}
	result.Symbol = symbol
	result.Code = code

	release, err := utils.TenantLock(ctx, scope.TenantId, "CurrencyRestamp", restampLockTTL, "Currency", "RestampCurrency")
	if err != nil {
		return result, err
	}
	defer release()

	err = models.RunSerialized(scope.Context(ctx), db, config.LoadSettings().TxRetries, func(tx *gorm.DB) error {
		changed, err := models.SetTenantCurrency(tx, scope.TenantId, symbol, code)
		if err != nil {
			return err
		}
		// bulk column update; row hooks would re-normalize an empty model
		res := tx.Session(&gorm.Session{SkipHooks: true}).
			Model(&models.Transaction{}).
			Where("tenant_id = ? AND currency_symbol <> ?", scope.TenantId, symbol).
			Update("currency_symbol", symbol)
		if res.Error != nil {
			return res.Error
		}
		result.TenantChanged = changed
		result.RowsUpdated = res.RowsAffected
		return nil
	})
	if err != nil {
		return RestampResult{TenantId: scope.TenantId, Symbol: symbol, Code: code}, err
	}

	if err := models.RemoveTenantRedis(ctx, scope.TenantId); err != nil {
		config.LogError(config.GetLogger(), "Currency", "RestampCurrency", "remove tenant cache", scope.TenantId, err)
	}
	models.InvalidateLedgerCache(ctx, scope.TenantId)

	config.GetLogger().WithFields(logrus.Fields{
		"tenant_id":    scope.TenantId,
		"symbol":       symbol,
		"code":         code,
		"rows_updated": result.RowsUpdated,
	}).Info("currency restamped")
	return result, nil
}
