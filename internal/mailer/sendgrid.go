package mailer

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"repaircafe/backend/internal/delivery"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridTransport 通过 SendGrid HTTP API 发送
type SendGridTransport struct {
	client *sendgrid.Client
	logger *zap.Logger
}

// NewSendGridTransport 创建 SendGrid 传输，host 为空时使用官方地址
func NewSendGridTransport(apiKey, host string, logger *zap.Logger) *SendGridTransport {
	request := sendgrid.GetRequest(apiKey, sendGridEndpoint, host)
	request.Method = "POST"
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendGridTransport{client: &sendgrid.Client{Request: request}, logger: logger}
}

// Send 发送单封邮件，返回 X-Message-Id
func (t *SendGridTransport) Send(ctx context.Context, env *delivery.Envelope) (string, error) {
	response, err := t.client.SendWithContext(ctx, buildSendGridMail(env))
	if err != nil {
		return "", fmt.Errorf("sendgrid request: %w", err)
	}

	if response.StatusCode >= 300 {
		t.logger.Warn("SendGrid rejected message",
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body),
		)
		return "", fmt.Errorf("sendgrid status %d", response.StatusCode)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return NewMessageID(env.From.Email), nil
}

func buildSendGridMail(env *delivery.Envelope) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(env.From.Name, env.From.Email))
	m.Subject = env.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(env.To.Name, env.To.Email))
	for _, cc := range env.Cc {
		p.AddCCs(mail.NewEmail("", cc))
	}
	for _, bcc := range env.Bcc {
		p.AddBCCs(mail.NewEmail("", bcc))
	}
	m.AddPersonalizations(p)

	if env.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", env.ReplyTo))
	}

	// text/plain 必须在 text/html 之前
	if env.Text != "" {
		m.AddContent(mail.NewContent("text/plain", env.Text))
	}
	if env.HTML != "" {
		m.AddContent(mail.NewContent("text/html", env.HTML))
	}

	for name, value := range env.Headers {
		if value != "" {
			m.SetHeader(name, value)
		}
	}

	for _, att := range env.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}
