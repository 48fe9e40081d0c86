package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zcloop/rbac"
)

// RedisSessionCache persists effective permission sets in Redis so cached
// evaluation mode survives process restarts. Entries are JSON encoded under
// rbac:{key}.
type RedisSessionCache struct {
	client *redis.Client
	keyFmt string
	ttl    time.Duration
}

// NewRedisSessionCache builds a cache with the given TTL; ttl <= 0 means
// entries live until explicitly invalidated.
func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSessionCache{client: client, keyFmt: "rbac:%s", ttl: ttl}
}

func (c *RedisSessionCache) key(k string) string {
	return fmt.Sprintf(c.keyFmt, k)
}

func (c *RedisSessionCache) Get(ctx context.Context, key string) ([]rbac.Permission, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var perms []rbac.Permission
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return perms, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, key string, perms []rbac.Permission) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, c.ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

var _ rbac.SessionCache = (*RedisSessionCache)(nil)
