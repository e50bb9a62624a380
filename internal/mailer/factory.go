package mailer

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/delivery"
)

// ErrNotConfigured 未配置任何发送通道
var ErrNotConfigured = errors.New("mail transport not configured")

// 传输类型
const (
	KindSMTP     = "smtp"
	KindSendGrid = "sendgrid"
	KindLog      = "log"
)

// NewTransport 按配置创建传输并套上限速
func NewTransport(cfg config.MailConfig, logger *zap.Logger) (delivery.Transport, error) {
	var transport delivery.Transport

	switch strings.ToLower(cfg.Transport) {
	case KindSMTP:
		if cfg.SMTPHost == "" {
			return nil, ErrNotConfigured
		}
		transport = NewSMTPTransport(SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			ImplicitTLS: cfg.SMTPSecure,
		}, logger.Named("smtp"))
	case KindSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, ErrNotConfigured
		}
		transport = NewSendGridTransport(cfg.SendGridAPIKey, "", logger.Named("sendgrid"))
	case KindLog:
		transport = NewLogTransport(logger.Named("mail-log"))
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}

	return NewThrottled(transport, cfg.SendRate), nil
}
