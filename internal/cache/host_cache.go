package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-host-service/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

const (
	usernamePrefix   = "username:"
	domainPrefix     = "domain:"
	generationPrefix = "gen:"

	// generationTTL must exceed the longest directory lookup
	generationTTL = 24 * time.Hour
)

// HostCache stores resolved-host entries keyed by UsernameKey or DomainKey.
// Delete bumps a per-key generation; SetIfGeneration only writes when the
// generation still matches, so a lookup that read the directory before a
// delete cannot repopulate the key after it.
type HostCache interface {
	Get(ctx context.Context, key string) (*models.ResolvedHost, error)
	Set(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Generation(ctx context.Context, key string) (int64, error)
	SetIfGeneration(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration, gen int64) (bool, error)
}

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1]
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if (current or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// UsernameKey is the cache key for a username subdomain lookup
func UsernameKey(username string) string {
	return usernamePrefix + username
}

// DomainKey is the cache key for a normalized custom domain lookup
func DomainKey(domain string) string {
	return domainPrefix + domain
}

// IsHostKey reports whether key addresses a resolved-host entry
func IsHostKey(key string) bool {
	return strings.HasPrefix(key, usernamePrefix) || strings.HasPrefix(key, domainPrefix)
}

// RedisHostCache implements HostCache on a shared Redis instance
type RedisHostCache struct {
	client *redis.Client
	prefix string
}

// NewRedisHostCache creates a Redis backed host cache
func NewRedisHostCache(client *redis.Client, prefix string) *RedisHostCache {
	return &RedisHostCache{client: client, prefix: prefix}
}

// Get returns ErrCacheMiss when the key is absent or unreadable
func (c *RedisHostCache) Get(ctx context.Context, key string) (*models.ResolvedHost, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read host cache: %w", err)
	}

	var entry models.ResolvedHost
	if err := json.Unmarshal(val, &entry); err != nil {
		// A corrupt entry is treated like an expired one
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Set stores an entry with the given TTL
func (c *RedisHostCache) Set(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write host cache: %w", err)
	}
	return nil
}

// Delete removes the keys and bumps their generations in one transaction
func (c *RedisHostCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefix + k
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, c.generationKey(k))
			pipe.Expire(ctx, c.generationKey(k), generationTTL)
		}
		pipe.Del(ctx, prefixed...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete host cache keys: %w", err)
	}
	return nil
}

// Generation returns how many times key has been deleted, 0 if never
func (c *RedisHostCache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read host cache generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration stores the entry unless key was deleted since gen was read
func (c *RedisHostCache) SetIfGeneration(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration, gen int64) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.generationKey(key), c.prefix + key},
		gen, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write host cache: %w", err)
	}
	return stored == 1, nil
}

func (c *RedisHostCache) generationKey(key string) string {
	return c.prefix + generationPrefix + key
}

// Ping checks the Redis connection
func (c *RedisHostCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
