package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

// MemberService 封装会员目录的业务操作。
type MemberService struct {
	repo   storage.MemberRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewMemberService 创建会员目录服务。
func NewMemberService(repo storage.MemberRepository, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberService{repo: repo, logger: logger, now: time.Now}
}

// List 返回符合筛选条件的成员，保持存储顺序。
func (s *MemberService) List(ctx context.Context, filter domain.MemberFilter) ([]*domain.Member, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		s.logger.Error("Failed to list members", zap.Error(err))
		return nil, domain.NewInternalError(domain.MsgDirectoryFailed, err)
	}

	out := make([]*domain.Member, 0, len(members))
	for _, m := range members {
		if filter.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Recipients 返回符合条件且有邮箱的成员。
func (s *MemberService) Recipients(ctx context.Context, filter domain.MemberFilter) ([]*domain.Member, error) {
	members, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := members[:0]
	for _, m := range members {
		if m.Sendable() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Get 获取单个成员。
func (s *MemberService) Get(ctx context.Context, id string) (*domain.Member, error) {
	m, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return m, nil
}

// Create 校验输入并新增成员，ID 由服务端生成。
func (s *MemberService) Create(ctx context.Context, in domain.MemberInput) (*domain.Member, error) {
	if err := prepareMemberInput(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	member := &domain.Member{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.Apply(member)

	if err := s.repo.InsertMember(ctx, member); err != nil {
		return nil, s.mapError(err)
	}

	s.logger.Info("Member created", zap.String("member_id", member.ID))
	return member, nil
}

// Replace 整条替换已有成员。
func (s *MemberService) Replace(ctx context.Context, id string, in domain.MemberInput) (*domain.Member, error) {
	if err := prepareMemberInput(&in); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}

	in.Apply(existing)
	existing.UpdatedAt = s.now().UTC()
	if err := s.repo.ReplaceMember(ctx, existing); err != nil {
		return nil, s.mapError(err)
	}

	s.logger.Info("Member replaced", zap.String("member_id", id))
	return existing, nil
}

// Delete 删除成员。
func (s *MemberService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteMember(ctx, id); err != nil {
		return s.mapError(err)
	}
	s.logger.Info("Member deleted", zap.String("member_id", id))
	return nil
}

func (s *MemberService) mapError(err error) error {
	switch {
	case errors.Is(err, storage.ErrMemberNotFound):
		return domain.NewNotFoundError(domain.MsgMemberNotFound, err)
	case errors.Is(err, storage.ErrMemberExists):
		return domain.NewValidationError(domain.MsgMemberInvalid, map[string]string{"id": "duplicate"})
	default:
		s.logger.Error("Member repository failed", zap.Error(err))
		return domain.NewInternalError(domain.MsgDirectoryFailed, err)
	}
}

func prepareMemberInput(in *domain.MemberInput) error {
	in.FirstName = norm.NFC.String(in.FirstName)
	in.LastName = norm.NFC.String(in.LastName)
	in.Normalize()
	return in.Validate()
}
