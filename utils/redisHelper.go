package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/backoffice/config"
	"github.com/sirupsen/logrus"
)

// ErrLockNotObtained is returned when another worker holds the tenant lock.
var ErrLockNotObtained = errors.New("could not obtain lock for tenant")

func tenantCacheSetKey(tenantId string) string {
	return "CacheKeys:Tenant:" + tenantId
}

// CacheTenantObject stores obj under key and remembers the key in the tenant's key set,
// so InvalidateTenantCache can drop every derived entry of the tenant at once.
func CacheTenantObject(ctx context.Context, tenantId string, key string, obj any, ttl time.Duration) error {
	if err := config.SetRedisObject(ctx, key, obj, ttl); err != nil {
		return err
	}
	return config.AddRedisSet(ctx, tenantCacheSetKey(tenantId), key)
}

func GetCachedObject[T any](ctx context.Context, key string, dest *T) (bool, error) {
	return config.GetRedisObject(ctx, key, dest)
}

// InvalidateTenantCache removes every cached entry registered for the tenant.
func InvalidateTenantCache(ctx context.Context, tenantId string) error {
	setKey := tenantCacheSetKey(tenantId)
	keys, err := config.GetRedisSetMembers(ctx, setKey)
	if err != nil {
		return err
	}
	keys = append(keys, setKey)
	return config.RemoveRedisKey(ctx, keys...)
}

// TenantLock obtains a redis lock for (lockType, tenantId) and returns its release func.
// Without redis the lock is a no-op; the database row locks remain the real guard.
func TenantLock(ctx context.Context, tenantId string, lockType string, ttl time.Duration, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, tenantId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for tenant", tenantId, err)
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, lockKey)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for tenant", tenantId, err)
		return nil, err
	}
	return func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{"lock": lockKey}).Warn(rerr.Error())
		}
	}, nil
}
