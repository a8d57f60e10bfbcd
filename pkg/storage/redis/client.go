package redis

import (
	"context"
	"fmt"
	"time"

	"cryptomirror/config"

	goredis "github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *goredis.Client
}

// NewClient connects and pings the server.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
