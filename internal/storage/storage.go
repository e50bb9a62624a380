package storage

import (
	"context"
	"errors"

	"repaircafe/backend/internal/domain"
)

var (
	// ErrMemberNotFound 成员不存在
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberExists 成员 ID 已存在
	ErrMemberExists = errors.New("member already exists")
	// ErrGuestbookDisabled 未配置留言簿存储
	ErrGuestbookDisabled = errors.New("guestbook store not configured")
)

// MemberRepository 成员目录的存取操作，替换语义为整条覆盖。
type MemberRepository interface {
	ListMembers(ctx context.Context) ([]*domain.Member, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	InsertMember(ctx context.Context, member *domain.Member) error
	ReplaceMember(ctx context.Context, member *domain.Member) error
	DeleteMember(ctx context.Context, id string) error
}

// GuestbookRepository 留言簿条目的存取操作。
type GuestbookRepository interface {
	SaveGuestbookEntry(ctx context.Context, entry *domain.GuestbookEntry) error
	ListGuestbookEntries(ctx context.Context, approvedOnly bool) ([]*domain.GuestbookEntry, error)
}

// HealthChecker 可选的健康检查接口
type HealthChecker interface {
	Health() error
}

// Closer 可选的关闭接口
type Closer interface {
	Close() error
}

// CloneMember 返回深拷贝，避免调用方修改存储中的记录
func CloneMember(m *domain.Member) *domain.Member {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	return &c
}
