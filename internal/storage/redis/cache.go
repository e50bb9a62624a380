package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

const (
	// membersKey 成员列表缓存键
	membersKey = "repaircafe:members"
	// DefaultTTL 默认缓存时长
	DefaultTTL = 5 * time.Minute
)

// MemberCache 为成员目录加一层 Redis 读缓存。
// 写操作先落到底层存储再清除缓存；Redis 不可用时直接读底层存储。
type MemberCache struct {
	next   storage.MemberRepository
	client *goredis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewMemberCache 创建成员缓存装饰器
func NewMemberCache(next storage.MemberRepository, client *goredis.Client, ttl time.Duration, log *zap.Logger) *MemberCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemberCache{next: next, client: client, ttl: ttl, log: log}
}

// ListMembers 优先读取缓存
func (c *MemberCache) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	data, err := c.client.Get(ctx, membersKey).Bytes()
	switch {
	case err == nil:
		var members []*domain.Member
		if jsonErr := json.Unmarshal(data, &members); jsonErr == nil {
			return members, nil
		}
		c.log.Warn("discarding corrupt member cache")
	case errors.Is(err, goredis.Nil):
	default:
		c.log.Warn("member cache unavailable", zap.Error(err))
	}

	members, err := c.next.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(members); err == nil {
		if err := c.client.Set(ctx, membersKey, data, c.ttl).Err(); err != nil {
			c.log.Debug("failed to fill member cache", zap.Error(err))
		}
	}
	return members, nil
}

// GetMember 单条查询直接走底层存储
func (c *MemberCache) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	return c.next.GetMember(ctx, id)
}

// InsertMember 新增后清除缓存
func (c *MemberCache) InsertMember(ctx context.Context, member *domain.Member) error {
	if err := c.next.InsertMember(ctx, member); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// ReplaceMember 替换后清除缓存
func (c *MemberCache) ReplaceMember(ctx context.Context, member *domain.Member) error {
	if err := c.next.ReplaceMember(ctx, member); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// DeleteMember 删除后清除缓存
func (c *MemberCache) DeleteMember(ctx context.Context, id string) error {
	if err := c.next.DeleteMember(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *MemberCache) invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, membersKey).Err(); err != nil {
		c.log.Warn("failed to invalidate member cache", zap.Error(err))
	}
}
