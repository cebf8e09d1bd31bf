package monitoring

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/core/ports"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddStoreCheck adds a whitelist store health check
func (h *HealthChecker) AddStoreCheck(store ports.Store, interval, timeout time.Duration) {
	h.AddCheck("store", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		// A cheap aggregate query doubles as a connectivity probe.
		if _, err := store.CountEntries(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
