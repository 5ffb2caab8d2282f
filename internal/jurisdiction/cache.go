package jurisdiction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tax/internal/obs"
	"github.com/noah-isme/toko-tax/internal/tax"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedConfig configures a Cached resolver.
type CachedConfig struct {
	Next   tax.Resolver
	Cache  *Cache
	Logger zerolog.Logger
}

// Cached memoises another resolver in Redis, including lookups that found
// no jurisdiction. Redis failures fall through to the wrapped resolver.
type Cached struct {
	next   tax.Resolver
	cache  *Cache
	logger zerolog.Logger
}

// NewCached wraps cfg.Next.
func NewCached(cfg CachedConfig) *Cached {
	return &Cached{next: cfg.Next, cache: cfg.Cache, logger: cfg.Logger}
}

type cachedJurisdiction struct {
	Found        bool              `json:"found"`
	Jurisdiction *tax.Jurisdiction `json:"jurisdiction,omitempty"`
}

// CacheKey returns the Redis key for a store and country.
func CacheKey(storeCode, country string) string {
	return "tax:jurisdiction:" + storeCode + ":" + strings.ToUpper(strings.TrimSpace(country))
}

// Resolve implements tax.Resolver.
func (c *Cached) Resolve(ctx context.Context, storeCode string, addr *tax.Address) (*tax.Jurisdiction, error) {
	if addr == nil {
		return nil, nil
	}
	key := CacheKey(storeCode, addr.Country)

	var entry cachedJurisdiction
	ok, err := c.cache.GetJSON(ctx, key, &entry)
	switch {
	case err != nil:
		countCache("error")
		c.logger.Warn().Err(err).Str("key", key).Msg("read jurisdiction cache")
	case ok:
		countCache("hit")
		if !entry.Found {
			return nil, nil
		}
		return entry.Jurisdiction, nil
	default:
		countCache("miss")
	}

	j, err := c.next.Resolve(ctx, storeCode, addr)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, cachedJurisdiction{Found: j != nil, Jurisdiction: j}); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("write jurisdiction cache")
	}
	return j, nil
}

func countCache(result string) {
	if obs.JurisdictionCacheTotal != nil {
		obs.JurisdictionCacheTotal.WithLabelValues(result).Inc()
	}
}
