package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/storage"
)

const (
	connectTimeout = 5 * time.Second
	pingTimeout    = 2 * time.Second
)

// Client 成员目录缓存使用的 Redis 连接
type Client struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

// Connect 建立连接并 Ping 一次，失败时不保留连接
func Connect(ctx context.Context, cfg *config.RedisConfig, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// 目录只有一个缓存键，小连接池足够
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}

	log.Info("member cache connected", zap.String("address", cfg.Address), zap.Int("db", cfg.DB))
	return &Client{rdb: rdb, ttl: cfg.CacheTTL, log: log}, nil
}

// MemberCache 用这个连接包装成员目录
func (c *Client) MemberCache(next storage.MemberRepository) *MemberCache {
	return NewMemberCache(next, c.rdb, c.ttl, c.log)
}

// Close 关闭连接
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Health 就绪检查
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
