package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/backoffice/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "tenant_id"

// TenantGuardPlugin adds `tenant_id = <ctx tenant>` to queries, updates and deletes on
// tenant-owned tables whose WHERE clause does not mention tenant_id. Raw SQL is not guarded.
// appctx.ContextKeySkipTenantScope disables it for one statement.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name     string
		register func(name string, fn func(*gorm.DB)) error
	}{
		{"tenant_guard:query", cb.Query().Before("gorm:query").Register},
		{"tenant_guard:row", cb.Row().Before("gorm:row").Register},
		{"tenant_guard:update", cb.Update().Before("gorm:update").Register},
		{"tenant_guard:delete", cb.Delete().Before("gorm:delete").Register},
	}
	for _, h := range hooks {
		if err := h.register(h.name, scopeToTenant); err != nil {
			return err
		}
	}
	return nil
}

func scopeToTenant(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	tenantId := guardedTenant(ctx)
	if tenantId == "" || db.Statement.Schema.LookUpField(tenantColumn) == nil {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && mentionsTenant(where.Exprs...) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: tenantId},
	}})
}

// guardedTenant is the tenant the statement is scoped to, or "" when unscoped or bypassed.
func guardedTenant(ctx context.Context) string {
	if skip, _ := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); skip {
		return ""
	}
	tenantId, _ := ctx.Value(appctx.ContextKeyTenantId).(string)
	return tenantId
}

func mentionsTenant(exprs ...clause.Expression) bool {
	for _, e := range exprs {
		var hit bool
		switch v := e.(type) {
		case clause.Eq:
			hit = isTenantColumn(v.Column)
		case clause.Neq:
			hit = isTenantColumn(clause.Eq(v).Column)
		case clause.Gt:
			hit = isTenantColumn(clause.Eq(v).Column)
		case clause.Gte:
			hit = isTenantColumn(clause.Eq(v).Column)
		case clause.Lt:
			hit = isTenantColumn(clause.Eq(v).Column)
		case clause.Lte:
			hit = isTenantColumn(clause.Eq(v).Column)
		case clause.IN:
			hit = isTenantColumn(v.Column)
		case clause.AndConditions:
			hit = mentionsTenant(v.Exprs...)
		case clause.OrConditions:
			hit = mentionsTenant(v.Exprs...)
		case clause.Expr:
			// raw fragments such as "tenant_id = ? AND is_void = ?"
			hit = strings.Contains(strings.ToLower(v.SQL), tenantColumn)
		case clause.NamedExpr:
			hit = strings.Contains(strings.ToLower(v.SQL), tenantColumn)
		}
		if hit {
			return true
		}
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
