package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/sirupsen/logrus"
)

func reportCacheKey(tenantId string, id string) string {
	return "Report:" + tenantId + ":" + id
}

func (g *Generator) logSlowReport(ctx context.Context, name string, scope models.Scope, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d < g.settings.ReportSlowThreshold {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	g.logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"tenant_id":      scope.TenantId,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

func cacheGet[T any](ctx context.Context, key string, dest *T) (bool, error) {
	return utils.GetCachedObject(ctx, key, dest)
}

func cacheSet(ctx context.Context, tenantId string, key string, obj any, ttl time.Duration) {
	if err := utils.CacheTenantObject(ctx, tenantId, key, obj, ttl); err != nil {
		config.LogError(config.GetLogger(), "Reports", "cacheSet", "redis set", key, err)
	}
}
