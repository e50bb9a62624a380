package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repaircafe/backend/internal/antiabuse"
	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

// GuestbookInput 留言表单
type GuestbookInput struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	City    string `json:"city"`
}

// GuestbookService 处理公开留言簿提交。
type GuestbookService struct {
	repo   storage.GuestbookRepository
	guard  *antiabuse.Guard
	logger *zap.Logger
	now    func() time.Time
}

// NewGuestbookService 创建留言簿服务，repo 为空表示未配置存储。
func NewGuestbookService(repo storage.GuestbookRepository, guard *antiabuse.Guard, logger *zap.Logger) *GuestbookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuestbookService{repo: repo, guard: guard, logger: logger, now: time.Now}
}

// Submit 校验并保存一条待审核留言。
func (s *GuestbookService) Submit(ctx context.Context, sub domain.Submission, in GuestbookInput) (*domain.GuestbookEntry, error) {
	if s.repo == nil {
		return nil, domain.NewConfigurationError(domain.MsgGuestbookDisabled, storage.ErrGuestbookDisabled)
	}

	entry := &domain.GuestbookEntry{
		Name:    sanitizeInput(in.Name, domain.GuestbookNameMax),
		Message: sanitizeInput(in.Message, domain.GuestbookMessageMax),
		City:    sanitizeInput(in.City, domain.GuestbookCityMax),
	}

	err := s.guard.Check(sub, func() error {
		if domain.RuneLen(entry.Name) < domain.GuestbookNameMin {
			return domain.NewTooShortError(domain.MsgNameTooShort, "name")
		}
		if domain.RuneLen(entry.Message) < domain.GuestbookMessageMin {
			return domain.NewTooShortError(domain.MsgMessageTooShort, "message")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry.ID = uuid.NewString()
	entry.Approved = false
	entry.CreatedAt = s.now().UTC()

	if err := s.repo.SaveGuestbookEntry(ctx, entry); err != nil {
		s.logger.Error("Failed to save guestbook entry", zap.Error(err))
		return nil, domain.NewInternalError(domain.MsgGuestbookFailed, err)
	}

	s.logger.Info("Guestbook entry stored", zap.String("entry_id", entry.ID))
	return entry, nil
}

// Approved 返回已审核的留言
func (s *GuestbookService) Approved(ctx context.Context) ([]*domain.GuestbookEntry, error) {
	if s.repo == nil {
		return nil, domain.NewConfigurationError(domain.MsgGuestbookDisabled, storage.ErrGuestbookDisabled)
	}
	entries, err := s.repo.ListGuestbookEntries(ctx, true)
	if err != nil {
		return nil, domain.NewInternalError(domain.MsgGuestbookFailed, err)
	}
	return entries, nil
}
