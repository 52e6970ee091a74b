package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/config"
)

const pingTimeout = 5 * time.Second

// Client wraps the redis connection used for consumer dedup bookkeeping.
// Dedup is an optimization only, so the retry policy stays short; consumers
// fall back to idempotent handling when redis is unreachable.
type Client struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	var rdb redis.UniversalClient

	if cfg.ClusterMode {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addresses,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Addresses[0],
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed",
			zap.Strings("addresses", cfg.Addresses),
			zap.Bool("cluster_mode", cfg.ClusterMode),
			zap.Error(err),
		)
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis",
		zap.Strings("addresses", cfg.Addresses),
		zap.Bool("cluster_mode", cfg.ClusterMode),
	)

	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Client() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Warn("failed to close redis connection", zap.Error(err))
		return err
	}
	return nil
}
