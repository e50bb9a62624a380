// Package app 组装服务端和命令行工具共用的存储与服务。
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/storage"
	"repaircafe/backend/internal/storage/memory"
	"repaircafe/backend/internal/storage/redis"
	"repaircafe/backend/internal/storage/sheets"
	sqlstore "repaircafe/backend/internal/storage/sql"
)

// Stores 启动时选定的存储组合
type Stores struct {
	Members   storage.MemberRepository
	Guestbook storage.GuestbookRepository // sheets 后端下为空
	Health    map[string]storage.HealthChecker
	closers   []storage.Closer
}

// Close 关闭全部底层连接
func (s *Stores) Close(log *zap.Logger) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}
}

// OpenStores 根据 members.storage 选择目录后端，设置了 Redis 地址时在外层加缓存
func OpenStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	stores := &Stores{Health: map[string]storage.HealthChecker{}}

	switch cfg.Members.Storage {
	case "sql":
		store, err := sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			return nil, fmt.Errorf("open sql store: %w", err)
		}
		stores.Members = store
		stores.Guestbook = store
		stores.Health["database"] = store
		stores.closers = append(stores.closers, store)
		log.Info("using database storage", zap.String("type", cfg.Database.Type))

	case "sheets":
		store, err := sheets.NewStore(ctx, cfg.Sheets)
		if err != nil {
			return nil, fmt.Errorf("open sheets store: %w", err)
		}
		stores.Members = store
		log.Info("using Google Sheets storage", zap.String("spreadsheet_id", cfg.Sheets.SpreadsheetID))
		log.Warn("guestbook is disabled with sheets storage")

	default:
		store := memory.NewStore()
		if cfg.Members.SeedFile != "" {
			n, err := store.LoadSeed(cfg.Members.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("load seed file: %w", err)
			}
			log.Info("member seed loaded", zap.String("file", cfg.Members.SeedFile), zap.Int("members", n))
		}
		stores.Members = store
		stores.Guestbook = store
		stores.Health["memory"] = store
		log.Info("using memory storage (development mode)")
	}

	if cfg.Redis.Address != "" {
		client, err := redis.Connect(ctx, &cfg.Redis, log.Named("cache"))
		if err != nil {
			stores.Close(log)
			return nil, err
		}
		stores.Members = client.MemberCache(stores.Members)
		stores.Health["redis"] = client
		stores.closers = append(stores.closers, client)
	}

	return stores, nil
}
