package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"folioagent/internal/adapters/config"
	"folioagent/pkg/errors"
)

// Connection limits for the token-bucket round trips
const (
	dialTimeout  = 2 * time.Second
	ioTimeout    = 500 * time.Millisecond
	poolSize     = 10
	pingDeadline = 3 * time.Second
)

// Client holds the connection backing the shared LLM rate limit
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings Redis
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, pingDeadline)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "redis at %s: %v", cfg.Addr(), err)
	}

	return &Client{rdb: rdb}, nil
}

// Client returns the go-redis client for the rate limiter and pool metrics
func (c *Client) Client() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings Redis; used by the readiness probe
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
