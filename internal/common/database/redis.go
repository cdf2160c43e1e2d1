// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"lead-funnel/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the counter store backing the rate limiter.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis keeps read/write timeouts short: a slow counter store must not
// stall the request path.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	return &RedisClient{Client: rdb}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
