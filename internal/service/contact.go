package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"repaircafe/backend/internal/antiabuse"
	"repaircafe/backend/internal/delivery"
	"repaircafe/backend/internal/domain"
)

// ContactOptions 联系表单转发配置
type ContactOptions struct {
	Recipient string
	Subject   string
	From      string
	FromName  string
	MailerTag string
	Timeout   time.Duration
}

// ContactService 处理公开联系表单。
type ContactService struct {
	transport delivery.Transport
	guard     *antiabuse.Guard
	opts      ContactOptions
	logger    *zap.Logger
}

// NewContactService 创建联系表单服务，transport 为空表示邮件未配置。
func NewContactService(transport delivery.Transport, guard *antiabuse.Guard, opts ContactOptions, logger *zap.Logger) *ContactService {
	if opts.Subject == "" {
		opts.Subject = "Neue Nachricht über repair-leonberg.de"
	}
	if opts.FromName == "" {
		opts.FromName = domain.DefaultOrgLine
	}
	if opts.Timeout <= 0 {
		opts.Timeout = delivery.DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{transport: transport, guard: guard, opts: opts, logger: logger}
}

// Submit 校验提交并把消息转发到组织邮箱。
func (s *ContactService) Submit(ctx context.Context, sub domain.Submission, msg domain.ContactMessage) error {
	if s.transport == nil || s.opts.Recipient == "" {
		s.logger.Error("Contact form used without mail transport")
		return domain.NewConfigurationError(domain.MsgMailUnavailable, ErrMailNotConfigured)
	}

	msg.Name = sanitizeInput(msg.Name, 0)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Message = sanitizeInput(msg.Message, 0)

	err := s.guard.Check(sub, func() error {
		if msg.Name == "" || msg.Email == "" || msg.Message == "" {
			return domain.NewValidationError(domain.MsgMissingFields, missingContactFields(msg))
		}
		if !domain.ValidateEmail(msg.Email) {
			return domain.NewValidationError(domain.MsgInvalidEmail, map[string]string{"email": "invalid"})
		}
		return nil
	})
	if err != nil {
		return err
	}

	env := s.envelope(msg)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	id, err := s.transport.Send(ctx, env)
	if err != nil {
		s.logger.Error("Failed to send contact mail", zap.Error(err))
		return domain.NewTransportError(domain.MsgContactFailed, err)
	}

	s.logger.Info("Contact message forwarded",
		zap.String("message_id", id),
		zap.Bool("copy", msg.Copy),
	)
	return nil
}

func (s *ContactService) envelope(msg domain.ContactMessage) *delivery.Envelope {
	env := &delivery.Envelope{
		From:    delivery.Address{Name: s.opts.FromName, Email: s.opts.From},
		To:      delivery.Address{Email: s.opts.Recipient},
		ReplyTo: msg.Email,
		Subject: s.opts.Subject,
		Text:    ContactText(msg),
		Headers: map[string]string{},
	}
	if s.opts.MailerTag != "" {
		env.Headers[delivery.HeaderMailer] = s.opts.MailerTag
	}
	if msg.Copy {
		env.Cc = []string{msg.Email}
	}
	return env
}

// ContactText 生成转发邮件的正文
func ContactText(msg domain.ContactMessage) string {
	copyWanted := "Nein"
	if msg.Copy {
		copyWanted = "Ja"
	}
	return strings.Join([]string{
		fmt.Sprintf("Name: %s", msg.Name),
		fmt.Sprintf("Mail: %s", msg.Email),
		fmt.Sprintf("Kopie gewünscht: %s", copyWanted),
		"",
		"Nachricht:",
		msg.Message,
	}, "\n")
}

func missingContactFields(msg domain.ContactMessage) map[string]string {
	details := map[string]string{}
	if msg.Name == "" {
		details["name"] = "required"
	}
	if msg.Email == "" {
		details["email"] = "required"
	}
	if msg.Message == "" {
		details["message"] = "required"
	}
	return details
}
