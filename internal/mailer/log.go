package mailer

import (
	"context"

	"go.uber.org/zap"

	"repaircafe/backend/internal/delivery"
)

// LogTransport 只记录日志不投递，用于本地开发
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport 创建日志传输
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// Send 记录信封摘要
func (t *LogTransport) Send(ctx context.Context, env *delivery.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := NewMessageID(env.From.Email)
	t.logger.Info("Mail logged instead of sent",
		zap.String("message_id", id),
		zap.String("subject", env.Subject),
		zap.Int("recipients", len(env.Recipients())),
		zap.Int("attachments", len(env.Attachments)),
		zap.Int("text_bytes", len(env.Text)),
	)
	return id, nil
}
