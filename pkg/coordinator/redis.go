package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs Client with a single shared Redis connection, the
// primary coordinator transport.
type RedisClient struct {
	rdb       *redis.Client
	namespace string
}

// RedisConfig configures a RedisClient.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// NewRedisClient dials Redis and returns a Client. It does not ping eagerly;
// the first coordinator call surfaces a connection error.
func NewRedisClient(cfg RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisClient{rdb: rdb, namespace: cfg.Namespace}
}

func (c *RedisClient) ns(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.ns(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coordinator get %s: %w", key, err)
	}
	return v, true, nil
}

func (c *RedisClient) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, c.ns(key), value, 0).Err(); err != nil {
		return fmt.Errorf("coordinator set %s: %w", key, err)
	}
	return nil
}

// Acquire maps directly to SET key value NX EX ttl.
func (c *RedisClient) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.ns(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("coordinator acquire %s: %w", key, err)
	}
	return ok, nil
}

// Swap maps to GETSET, which is atomic and clears any existing TTL on the
// key; the lock protocol re-applies the TTL with Refresh after a swap.
func (c *RedisClient) Swap(ctx context.Context, key, newValue string) (string, bool, error) {
	old, err := c.rdb.GetSet(ctx, c.ns(key), newValue).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coordinator swap %s: %w", key, err)
	}
	return old, true, nil
}

func (c *RedisClient) Refresh(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.ns(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("coordinator refresh %s: %w", key, err)
	}
	return nil
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.ns(key)).Err(); err != nil {
		return fmt.Errorf("coordinator delete %s: %w", key, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
