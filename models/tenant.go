package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/utils"
	"gorm.io/gorm"
)

// SystemActorId is the principal used by scheduled jobs and the operator CLI.
const SystemActorId = "system"

type Tenant struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CurrencySymbol string    `gorm:"size:16;not null" json:"currency_symbol"`
	CurrencyCode   string    `gorm:"size:8;not null" json:"currency_code"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Actor struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	TenantId  string    `gorm:"size:64;not null;index" json:"tenant_id"`
	Name      string    `gorm:"size:255" json:"name"`
	Role      ActorRole `gorm:"size:32;not null" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Scope is the (tenant, actor) pair carried by every engine call.
type Scope struct {
	TenantId string
	ActorId  string
}

func NewScope(tenantId string, actorId string) Scope {
	return Scope{TenantId: strings.TrimSpace(tenantId), ActorId: strings.TrimSpace(actorId)}
}

// SystemScope is the operator/job scope for a tenant.
func SystemScope(tenantId string) Scope {
	return NewScope(tenantId, SystemActorId)
}

// Context stamps the scope onto ctx so the tenant guard and logs can see it.
func (s Scope) Context(ctx context.Context) context.Context {
	ctx = utils.SetTenantIdInContext(ctx, s.TenantId)
	return utils.SetActorIdInContext(ctx, s.ActorId)
}

// Directory is the tenant and identity contract consulted before every engine operation.
type Directory interface {
	TenantOf(ctx context.Context, actorId string) (*Tenant, error)
	Currency(ctx context.Context, tenantId string) (symbol string, code string, err error)
	IsAuthorized(ctx context.Context, actor *Actor, action Action) bool
	Authorize(ctx context.Context, scope Scope, action Action) (*Tenant, error)
}

// TenantDirectory reads tenants and actors from the database, caching tenants in redis.
type TenantDirectory struct {
	db *gorm.DB
}

var _ Directory = (*TenantDirectory)(nil)

func NewTenantDirectory(db *gorm.DB) *TenantDirectory {
	return &TenantDirectory{db: db}
}

func tenantCacheKey(tenantId string) string {
	return "Tenant:" + tenantId
}

func (t *Tenant) StoreRedis(ctx context.Context) error {
	return config.SetRedisObject(ctx, tenantCacheKey(t.ID), t, 0)
}

func RemoveTenantRedis(ctx context.Context, tenantId string) error {
	return config.RemoveRedisKey(ctx, tenantCacheKey(tenantId))
}

func (d *TenantDirectory) GetTenant(ctx context.Context, tenantId string) (*Tenant, error) {
	if tenantId == "" {
		return nil, fmt.Errorf("%w: tenant id is required", utils.ErrInvalidInput)
	}
	var result Tenant
	exists, err := config.GetRedisObject(ctx, tenantCacheKey(tenantId), &result)
	if err != nil {
		config.LogError(config.GetLogger(), "TenantDirectory", "GetTenant", "redis read", tenantId, err)
		exists = false
	}
	if !exists {
		err := d.db.WithContext(ctx).Where("id = ?", tenantId).First(&result).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", utils.ErrTenantNotFound, tenantId)
			}
			return nil, err
		}
		if err := result.StoreRedis(ctx); err != nil {
			config.LogError(config.GetLogger(), "TenantDirectory", "GetTenant", "redis write", tenantId, err)
		}
	}
	return &result, nil
}

// ListTenantIds returns every active tenant, used by operator runs over all tenants.
func (d *TenantDirectory) ListTenantIds(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).Model(&Tenant{}).
		Where("is_active = ?", true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (d *TenantDirectory) getActor(ctx context.Context, actorId string) (*Actor, error) {
	var actor Actor
	// actors are looked up across tenants so a foreign actor is reported as Forbidden
	err := d.db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Where("id = ?", actorId).First(&actor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: actor %s", utils.ErrNotFound, actorId)
		}
		return nil, err
	}
	return &actor, nil
}

func (d *TenantDirectory) TenantOf(ctx context.Context, actorId string) (*Tenant, error) {
	if actorId == SystemActorId {
		return nil, fmt.Errorf("%w: system actor is not bound to a tenant", utils.ErrInvalidInput)
	}
	actor, err := d.getActor(ctx, actorId)
	if err != nil {
		return nil, err
	}
	return d.GetTenant(ctx, actor.TenantId)
}

func (d *TenantDirectory) Currency(ctx context.Context, tenantId string) (string, string, error) {
	tenant, err := d.GetTenant(ctx, tenantId)
	if err != nil {
		return "", "", err
	}
	return tenant.CurrencySymbol, tenant.CurrencyCode, nil
}

func (d *TenantDirectory) IsAuthorized(_ context.Context, actor *Actor, action Action) bool {
	if actor == nil {
		return false
	}
	if actor.ID == SystemActorId {
		return true
	}
	if actor.IsActive != nil && !*actor.IsActive {
		return false
	}
	return rolePermissions[actor.Role][action]
}

// Authorize resolves the scope's tenant and checks the actor may perform action on it.
// Unknown tenants fail with ErrNotFound; foreign, unknown or under-privileged actors with ErrForbidden.
func (d *TenantDirectory) Authorize(ctx context.Context, scope Scope, action Action) (*Tenant, error) {
	if scope.TenantId == "" || scope.ActorId == "" {
		return nil, fmt.Errorf("%w: tenant and actor are required", utils.ErrInvalidInput)
	}
	tenant, err := d.GetTenant(ctx, scope.TenantId)
	if err != nil {
		return nil, err
	}
	if tenant.IsActive != nil && !*tenant.IsActive {
		return nil, fmt.Errorf("%w: tenant %s is inactive", utils.ErrForbidden, tenant.ID)
	}
	if scope.ActorId == SystemActorId {
		return tenant, nil
	}
	actor, err := d.getActor(ctx, scope.ActorId)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, fmt.Errorf("%w: unknown actor %s", utils.ErrForbidden, scope.ActorId)
		}
		return nil, err
	}
	if actor.TenantId != tenant.ID {
		return nil, fmt.Errorf("%w: actor %s does not belong to tenant %s", utils.ErrForbidden, actor.ID, tenant.ID)
	}
	if !d.IsAuthorized(ctx, actor, action) {
		return nil, fmt.Errorf("%w: %s may not %s", utils.ErrForbidden, actor.Role, action)
	}
	return tenant, nil
}

// SetTenantCurrency updates the display currency inside the caller's transaction.
// Returns whether the stored values changed.
func SetTenantCurrency(tx *gorm.DB, tenantId string, symbol string, code string) (bool, error) {
	res := tx.Model(&Tenant{}).
		Where("id = ? AND (currency_symbol <> ? OR currency_code <> ?)", tenantId, symbol, code).
		Updates(map[string]interface{}{"currency_symbol": symbol, "currency_code": code})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
