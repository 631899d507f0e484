package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is the distributed monthly-usage Counter, for deployments
// running more than one API replica (spec.md §9 Open Question #2). Each
// tenant's usage lives at a key scoped to the current calendar month, so
// a month boundary is a fresh key rather than a read-modify-write reset;
// the key's TTL is set to expire shortly after the window closes so a
// quiet tenant's key does not live forever. Construction follows the
// teacher pack's redis.NewClient(&redis.Options{...}) idiom.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "pierre:ratelimit:"}
}

func (c *RedisCounter) Increment(ctx context.Context, tenantID string, now time.Time, delta int64) (int64, error) {
	key := c.key(tenantID, now)

	used, err := c.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("authn: redis_incrby: %w", err)
	}

	if used == delta {
		ttl := time.Until(nextMonthUTC(now)) + 24*time.Hour
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("authn: redis_expire: %w", err)
		}
	}

	return used, nil
}

func (c *RedisCounter) key(tenantID string, now time.Time) string {
	return c.prefix + tenantID + ":" + now.UTC().Format("2006-01")
}
