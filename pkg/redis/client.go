package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/aegis/consult/pkg/config"
)

// connectTimeout bounds the startup ping
const connectTimeout = 5 * time.Second

// minPoolSize covers the API, scheduler and cache traffic of an idle service
const minPoolSize = 10

// Client is the shared Redis connection behind evaluator rate limits,
// the instance cache and the redis snapshot backend.
// A disabled client turns every helper into a no-op.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb *redis.Client
}

// New connects when REDIS_ENABLED=true and returns a disabled client otherwise
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{}, nil
	}

	opts := options(cfg)
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", opts.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// options sizes the pool to the dispatch concurrency:
// every in-flight evaluation takes a rate-limit slot and writes a snapshot.
func options(cfg *config.Config) *redis.Options {
	pool := cfg.Consult.MaxConcurrent + 4 // 스케줄러/API 여유분
	if pool < minPoolSize {
		pool = minPoolSize
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: pool,
	}
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled reports whether a connection is configured
func (c *Client) Enabled() bool {
	return c.rdb != nil
}

// Redis returns the underlying client for the cache, limiter and snapshot helpers
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
