package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/repository"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const lookupTimeout = 5 * time.Second

// HostResolver maps an inbound Host header to the tenant whose portfolio it serves.
// It reads the host cache and the directory only; providers are never called.
type HostResolver struct {
	primary     string
	tenants     TenantStore
	hostCache   cache.HostCache
	group       singleflight.Group
	positiveTTL time.Duration
	negativeTTL time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewHostResolver creates a new host resolver
func NewHostResolver(cfg *config.Config, tenants TenantStore, hostCache cache.HostCache, m *metrics.Metrics) *HostResolver {
	return &HostResolver{
		primary:     NormalizeHost(cfg.Platform.PrimaryDomain),
		tenants:     tenants,
		hostCache:   hostCache,
		positiveTTL: cfg.Cache.TTL,
		negativeTTL: cfg.Cache.NegativeTTL,
		metrics:     m,
		now:         time.Now,
	}
}

// Resolve classifies host and finds its tenant. An unknown host, or a custom
// domain whose owner is not entitled right now, resolves with Found=false.
func (r *HostResolver) Resolve(ctx context.Context, host string) (*models.Resolution, error) {
	host = NormalizeHost(host)

	if host == r.primary || host == "www."+r.primary {
		r.metrics.ObserveResolution(string(models.HostPrimary), "found")
		return &models.Resolution{Host: host, Classification: models.HostPrimary, Found: true}, nil
	}

	if label, ok := strings.CutSuffix(host, "."+r.primary); ok {
		return r.resolveSubdomain(ctx, host, label)
	}
	return r.resolveCustom(ctx, host)
}

func (r *HostResolver) resolveSubdomain(ctx context.Context, host, label string) (*models.Resolution, error) {
	absent := &models.Resolution{Host: host, Classification: models.HostSubdomain}
	if strings.Contains(label, ".") || ValidateUsername(label) != nil {
		r.metrics.ObserveResolution(string(models.HostSubdomain), "absent")
		return absent, nil
	}

	username := NormalizeUsername(label)
	entry, err := r.lookup(ctx, cache.UsernameKey(username), models.HostSubdomain, func(ctx context.Context) (*models.Tenant, error) {
		return r.tenants.GetByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	if !entry.Found {
		r.metrics.ObserveResolution(string(models.HostSubdomain), "absent")
		return absent, nil
	}

	r.metrics.ObserveResolution(string(models.HostSubdomain), "found")
	return found(host, models.HostSubdomain, entry), nil
}

func (r *HostResolver) resolveCustom(ctx context.Context, host string) (*models.Resolution, error) {
	absent := &models.Resolution{Host: host, Classification: models.HostCustom}
	domain := NormalizeDomain(host)
	if domain == "" {
		r.metrics.ObserveResolution(string(models.HostCustom), "absent")
		return absent, nil
	}

	entry, err := r.lookup(ctx, cache.DomainKey(domain), models.HostCustom, func(ctx context.Context) (*models.Tenant, error) {
		return r.tenants.GetByCustomDomain(ctx, domain)
	})
	if err != nil {
		return nil, err
	}
	if !entry.Found {
		r.metrics.ObserveResolution(string(models.HostCustom), "absent")
		return absent, nil
	}
	if !entry.EntitledAt(r.now()) {
		r.metrics.ObserveResolution(string(models.HostCustom), "not_entitled")
		return absent, nil
	}

	r.metrics.ObserveResolution(string(models.HostCustom), "found")
	return found(host, models.HostCustom, entry), nil
}

// lookup reads key from the host cache and falls back to one directory query,
// shared by all concurrent misses on the same key
func (r *HostResolver) lookup(ctx context.Context, key string, class models.HostClassification, query func(context.Context) (*models.Tenant, error)) (*models.ResolvedHost, error) {
	entry, err := r.hostCache.Get(ctx, key)
	if err == nil {
		r.metrics.CacheHit()
		return entry, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Host cache read failed, falling back to directory")
	}
	r.metrics.CacheMiss()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// shared by every collapsed caller, so it is not bound to the first caller's request
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		r.metrics.DirectoryLookup()

		// read before the directory so a delete in between is detected at write time
		gen, genErr := r.hostCache.Generation(ctx, key)
		if genErr != nil {
			log.Warn().Err(genErr).Str("key", key).Msg("Host cache generation read failed, result will not be cached")
		}

		tenant, err := query(ctx)
		if err != nil && !errors.Is(err, repository.ErrTenantNotFound) {
			return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
		}

		entry := &models.ResolvedHost{Host: key, Classification: class}
		ttl := r.negativeTTL
		if tenant != nil {
			entry.Found = true
			entry.TenantID = tenant.ID
			entry.Username = tenant.UsernameValue()
			entry.Domain = tenant.DomainValue()
			entry.EntitledUntil = tenant.EntitledUntil()
			ttl = r.positiveTTL
		}

		if genErr == nil {
			stored, err := r.hostCache.SetIfGeneration(ctx, key, entry, ttl, gen)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("key", key).Msg("Failed to cache resolved host")
			case !stored:
				log.Debug().Str("key", key).Msg("Host invalidated during lookup, result not cached")
			}
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ResolvedHost), nil
}

func found(host string, class models.HostClassification, entry *models.ResolvedHost) *models.Resolution {
	tenantID := entry.TenantID
	return &models.Resolution{
		Host:           host,
		Classification: class,
		Found:          true,
		TenantID:       &tenantID,
		Username:       entry.Username,
	}
}
