package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

// Store 使用内存保存成员目录与留言簿，主要用于开发验证。
type Store struct {
	mu        sync.RWMutex
	members   map[string]*domain.Member
	order     []string // 插入顺序
	guestbook []*domain.GuestbookEntry
	now       func() time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		members: make(map[string]*domain.Member),
		now:     time.Now,
	}
}

// seedFile YAML 种子文件结构
type seedFile struct {
	Members []*domain.Member `yaml:"members"`
}

// LoadSeed 从 YAML 文件导入成员，缺少 ID 的记录自动生成
func (s *Store) LoadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	return s.LoadSeedData(data)
}

// LoadSeedData 从 YAML 内容导入成员
func (s *Store) LoadSeedData(data []byte) (int, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	count := 0
	for _, m := range seed.Members {
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Tags = normalizeTags(m.Tags)
		if err := s.InsertMember(context.Background(), m); err != nil {
			return count, fmt.Errorf("seed member %s: %w", m.ID, err)
		}
		count++
	}
	return count, nil
}

// ListMembers 按插入顺序返回全部成员
func (s *Store) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Member, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, storage.CloneMember(s.members[id]))
	}
	return out, nil
}

// GetMember 获取单个成员
func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, storage.ErrMemberNotFound
	}
	return storage.CloneMember(m), nil
}

// InsertMember 新增成员
func (s *Store) InsertMember(ctx context.Context, member *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[member.ID]; exists {
		return storage.ErrMemberExists
	}

	now := s.now().UTC()
	c := storage.CloneMember(member)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.members[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

// ReplaceMember 整条覆盖已有成员
func (s *Store) ReplaceMember(ctx context.Context, member *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[member.ID]
	if !ok {
		return storage.ErrMemberNotFound
	}

	c := storage.CloneMember(member)
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now().UTC()
	s.members[c.ID] = c
	return nil
}

// DeleteMember 删除成员
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return storage.ErrMemberNotFound
	}
	delete(s.members, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SaveGuestbookEntry 保存留言
func (s *Store) SaveGuestbookEntry(ctx context.Context, entry *domain.GuestbookEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	s.guestbook = append(s.guestbook, &c)
	return nil
}

// ListGuestbookEntries 按时间倒序返回留言
func (s *Store) ListGuestbookEntries(ctx context.Context, approvedOnly bool) ([]*domain.GuestbookEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.GuestbookEntry, 0, len(s.guestbook))
	for _, e := range s.guestbook {
		if approvedOnly && !e.Approved {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Health 内存存储始终可用
func (s *Store) Health() error {
	return nil
}

// Stats 返回成员数与留言数
func (s *Store) Stats() (members, entries int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members), len(s.guestbook)
}

// normalizeTags 导入时去掉重复标签
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(t))
	}
	return out
}
