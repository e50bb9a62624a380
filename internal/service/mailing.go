package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repaircafe/backend/internal/delivery"
	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/mailmerge"
)

// DefaultMaxAttachmentBytes 单批次附件总大小上限
const DefaultMaxAttachmentBytes int64 = 15 << 20

// ErrMailNotConfigured 没有可用的发送通道
var ErrMailNotConfigured = errors.New("mail transport not configured")

// SendRequest 群发请求。
// Recipients 非空时直接使用调用方渲染好的内容，否则由服务端按 Body 和筛选条件渲染。
type SendRequest struct {
	JobID       string                     `json:"jobId,omitempty"`
	FromName    string                     `json:"fromName"`
	FromEmail   string                     `json:"fromEmail"`
	ReplyTo     string                     `json:"replyTo"`
	Role        string                     `json:"role,omitempty"`
	OrgLine     string                     `json:"orgLine,omitempty"`
	Subject     string                     `json:"subject"`
	Body        string                     `json:"body,omitempty"`
	MemberIDs   []string                   `json:"memberIds,omitempty"`
	Tags        []string                   `json:"tags,omitempty"`
	OnlyMembers bool                       `json:"onlyMembers,omitempty"`
	Recipients  []domain.OutboundMessage   `json:"recipients,omitempty"`
	Attachments []domain.EncodedAttachment `json:"attachments,omitempty"`
}

// Draft 从请求中取出草稿
func (r *SendRequest) Draft() domain.Draft {
	return domain.Draft{
		Subject:   r.Subject,
		Body:      r.Body,
		FromName:  strings.TrimSpace(r.FromName),
		FromEmail: strings.TrimSpace(r.FromEmail),
		ReplyTo:   strings.TrimSpace(r.ReplyTo),
		Role:      strings.TrimSpace(r.Role),
		OrgLine:   strings.TrimSpace(r.OrgLine),
	}
}

// Filter 从请求中取出收件人筛选条件
func (r *SendRequest) Filter() domain.MemberFilter {
	return domain.MemberFilter{IDs: r.MemberIDs, Tags: r.Tags, OnlyMembers: r.OnlyMembers}
}

// SendResult 群发结果
type SendResult struct {
	JobID  string                 `json:"jobId"`
	Report *domain.DeliveryReport `json:"-"`
}

// Message 给调用方的摘要
func (r *SendResult) Message() string {
	return fmt.Sprintf("Versandt an %d Empfänger.", r.Report.Succeeded)
}

// ProgressFunc 收到带任务 ID 的单个发送结果
type ProgressFunc func(jobID string, index, total int, outcome domain.DeliveryOutcome)

// BatchFunc 批次通过校验、开始发送前调用
type BatchFunc func(recipients int, attachmentBytes int64)

// MailingService 编排个性化与发送。
type MailingService struct {
	dispatcher         *delivery.Dispatcher
	members            *MemberService
	maxAttachmentBytes int64
	progress           []ProgressFunc
	batches            []BatchFunc
	logger             *zap.Logger
}

// NewMailingService 创建群发服务，dispatcher 为空表示未配置发送通道。
func NewMailingService(dispatcher *delivery.Dispatcher, members *MemberService, maxAttachmentBytes int64, logger *zap.Logger) *MailingService {
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailingService{
		dispatcher:         dispatcher,
		members:            members,
		maxAttachmentBytes: maxAttachmentBytes,
		logger:             logger,
	}
}

// OnProgress 注册进度回调（推送、指标）
func (s *MailingService) OnProgress(fn ProgressFunc) {
	s.progress = append(s.progress, fn)
}

// OnBatch 注册批次回调
func (s *MailingService) OnBatch(fn BatchFunc) {
	s.batches = append(s.batches, fn)
}

// Configured 是否有可用的发送通道
func (s *MailingService) Configured() bool {
	return s.dispatcher != nil
}

// Render 生成每个收件人的邮件，不发送。
func (s *MailingService) Render(ctx context.Context, req *SendRequest) ([]domain.OutboundMessage, error) {
	if len(req.Recipients) > 0 {
		return req.Recipients, nil
	}

	if mailmerge.IsBlank(req.Body) {
		return nil, domain.NewValidationError(domain.MsgBodyRequired, map[string]string{"body": "required"})
	}
	if s.members == nil {
		return nil, domain.NewValidationError(domain.MsgNoRecipients, map[string]string{"recipients": "empty"})
	}

	members, err := s.members.Recipients(ctx, req.Filter())
	if err != nil {
		return nil, err
	}

	draft := req.Draft()
	return mailmerge.PersonalizeAll(&draft, members), nil
}

// Prepare 组装批次：渲染收件人并解码附件。
func (s *MailingService) Prepare(ctx context.Context, req *SendRequest) (*delivery.Batch, error) {
	messages, err := s.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	attachments, err := mailmerge.DecodeAttachments(req.Attachments, s.maxAttachmentBytes)
	if err != nil {
		if errors.Is(err, mailmerge.ErrAttachmentTooLarge) {
			return nil, domain.NewValidationError(domain.MsgAttachmentTooLarge, map[string]string{"attachments": "too_large"})
		}
		return nil, domain.NewValidationError(domain.MsgAttachmentInvalid, map[string]string{"attachments": err.Error()})
	}

	return &delivery.Batch{
		Draft:       req.Draft(),
		Messages:    messages,
		Attachments: attachments,
	}, nil
}

// Send 校验并发送整个批次。单个收件人失败只记录在报告中。
func (s *MailingService) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if s.dispatcher == nil {
		return nil, domain.NewTransportError(domain.MsgMailNotConfigured, ErrMailNotConfigured)
	}

	batch, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if len(s.progress) > 0 {
		batch.Observer = delivery.ObserverFunc(func(index, total int, outcome domain.DeliveryOutcome) {
			for _, fn := range s.progress {
				fn(jobID, index, total, outcome)
			}
		})
	}

	if err := s.dispatcher.Validate(batch); err != nil {
		return nil, err
	}
	if len(s.batches) > 0 {
		var size int64
		for i := range batch.Attachments {
			size += batch.Attachments[i].Size()
		}
		for _, fn := range s.batches {
			fn(len(batch.Messages), size)
		}
	}

	report, err := s.dispatcher.Dispatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	if report.AllFailed() {
		s.logger.Warn("Every recipient in batch failed",
			zap.String("job_id", jobID),
			zap.Int("total", len(report.Outcomes)),
		)
	}

	return &SendResult{JobID: jobID, Report: report}, nil
}
