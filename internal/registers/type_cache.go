package registers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	typeCacheKey       = "cf:cache:registers:types"
	localCacheSize     = 256
	defaultTypeListTTL = 5 * time.Minute
)

// TypeRef is the cached projection of a register used for type lookups.
type TypeRef struct {
	ID        uuid.UUID `json:"id" msgpack:"id"`
	Type      string    `json:"type" msgpack:"type"`
	Prefix    string    `json:"prefix" msgpack:"prefix"`
	IsDefault bool      `json:"is_default" msgpack:"is_default"`
}

// TypeLoader reads the authoritative register list.
type TypeLoader func(ctx context.Context) ([]TypeRef, error)

// TypeCache keeps the register type list in a local TinyLFU cache, backed by
// Redis when a client is given.
type TypeCache struct {
	cache *cache.Cache
	ttl   time.Duration
	key   string
}

// NewTypeCache builds the cache. rdb may be nil for a process-local cache.
func NewTypeCache(rdb *goredis.Client, ttl time.Duration) *TypeCache {
	if ttl < time.Second {
		ttl = defaultTypeListTTL
	}
	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(localCacheSize, ttl),
	}
	if rdb != nil {
		opts.Redis = rdb
	}
	return &TypeCache{cache: cache.New(opts), ttl: ttl, key: typeCacheKey}
}

// Types returns the cached list, calling load on a miss. Concurrent misses
// share a single load.
func (c *TypeCache) Types(ctx context.Context, load TypeLoader) ([]TypeRef, error) {
	if load == nil {
		return nil, errors.New("type loader required")
	}
	var refs []TypeRef
	err := c.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   c.key,
		Value: &refs,
		TTL:   c.ttl,
		Do: func(item *cache.Item) (interface{}, error) {
			return load(item.Context())
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load register types: %w", err)
	}
	return refs, nil
}

// Invalidate drops the cached list from both tiers.
func (c *TypeCache) Invalidate(ctx context.Context) error {
	if err := c.cache.Delete(ctx, c.key); err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	return nil
}
