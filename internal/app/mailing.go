package app

import (
	"errors"

	"go.uber.org/zap"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/delivery"
	"repaircafe/backend/internal/mailer"
)

// Mail 发送通道与编排器，未配置时两者都为空
type Mail struct {
	Transport  delivery.Transport
	Dispatcher *delivery.Dispatcher
}

// Configured 是否有可用的发送通道
func (m *Mail) Configured() bool {
	return m.Transport != nil
}

// OpenMail 按配置创建发送通道。未配置视为正常情况，其余错误返回给调用方
func OpenMail(cfg config.MailConfig, log *zap.Logger) (*Mail, error) {
	transport, err := mailer.NewTransport(cfg, log)
	if errors.Is(err, mailer.ErrNotConfigured) {
		log.Warn("mail transport not configured, sending is disabled")
		return &Mail{}, nil
	}
	if err != nil {
		return nil, err
	}

	dispatcher := delivery.NewDispatcher(transport, delivery.Options{
		FromAddress: cfg.From,
		FromName:    cfg.FromName,
		Bcc:         cfg.BCC,
		MailerTag:   cfg.MailerTag,
		Timeout:     cfg.SendTimeout,
		Concurrency: cfg.Concurrency,
	}, log.Named("delivery"))

	log.Info("mail transport ready",
		zap.String("transport", cfg.Transport),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Float64("send_rate", cfg.SendRate),
	)
	return &Mail{Transport: transport, Dispatcher: dispatcher}, nil
}
