package services

import (
	"context"
	"fmt"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	tenantKeyPrefix = "tenant:"
	purgeTimeout    = 5 * time.Second
)

// TenantKey is the render-cache tag covering every page of a tenant
func TenantKey(tenantID uuid.UUID) string {
	return tenantKeyPrefix + tenantID.String()
}

// TenantKeys returns every cache key that depends on the tenant's current state
func TenantKeys(tenant *models.Tenant) []string {
	keys := []string{TenantKey(tenant.ID)}
	if username := tenant.UsernameValue(); username != "" {
		keys = append(keys, cache.UsernameKey(username))
	}
	if domain := tenant.DomainValue(); domain != "" {
		keys = append(keys, cache.DomainKey(domain))
	}
	return keys
}

// InvalidationCoordinator removes stale entries from the resolved-host cache
// and the render cache after a directory or entitlement change
type InvalidationCoordinator struct {
	hostCache   cache.HostCache
	purger      PagePurger
	broadcaster InvalidationBroadcaster
	metrics     *metrics.Metrics
}

// NewInvalidationCoordinator creates a coordinator. purger and broadcaster may be nil.
func NewInvalidationCoordinator(hostCache cache.HostCache, purger PagePurger, broadcaster InvalidationBroadcaster, m *metrics.Metrics) *InvalidationCoordinator {
	return &InvalidationCoordinator{
		hostCache:   hostCache,
		purger:      purger,
		broadcaster: broadcaster,
		metrics:     m,
	}
}

// Invalidate drops keys from the host cache before returning. A failed host
// cache delete is returned to the caller; render purge and replica fan-out
// failures are only logged.
func (c *InvalidationCoordinator) Invalidate(ctx context.Context, keys ...string) error {
	keys = dedupeKeys(keys)
	if len(keys) == 0 {
		return nil
	}

	if err := c.dropLocal(ctx, keys); err != nil {
		return err
	}

	if c.purger != nil {
		purgeCtx, cancel := context.WithTimeout(ctx, purgeTimeout)
		if err := c.purger.Purge(purgeCtx, keys); err != nil {
			log.Warn().Err(err).Strs("keys", keys).Msg("Failed to purge render cache")
		} else {
			c.metrics.Invalidated("tags", "render", len(keys))
		}
		cancel()
	}

	if c.broadcaster != nil {
		if err := c.broadcaster.Broadcast(ctx, keys); err != nil {
			log.Warn().Err(err).Strs("keys", keys).Msg("Failed to broadcast invalidation")
		} else {
			c.metrics.Invalidated("keys", "broadcast", len(keys))
		}
	}

	log.Debug().Strs("keys", keys).Msg("Cache keys invalidated")
	return nil
}

// InvalidateTenant drops every key belonging to the tenant
func (c *InvalidationCoordinator) InvalidateTenant(ctx context.Context, tenant *models.Tenant) error {
	return c.Invalidate(ctx, TenantKeys(tenant)...)
}

// ApplyRemote drops keys announced by another replica without re-broadcasting
func (c *InvalidationCoordinator) ApplyRemote(ctx context.Context, keys []string) error {
	return c.dropLocal(ctx, dedupeKeys(keys))
}

func (c *InvalidationCoordinator) dropLocal(ctx context.Context, keys []string) error {
	hostKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if cache.IsHostKey(key) {
			hostKeys = append(hostKeys, key)
		}
	}
	if len(hostKeys) == 0 {
		return nil
	}

	if err := c.hostCache.Delete(ctx, hostKeys...); err != nil {
		return fmt.Errorf("failed to invalidate host cache: %w", err)
	}
	c.metrics.Invalidated("keys", "host_cache", len(hostKeys))
	return nil
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
