// Package mailer 提供发送单封邮件的传输实现：SMTP、SendGrid 和日志。
package mailer

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"repaircafe/backend/internal/delivery"
)

// NewMessageID 生成 <uuid@domain> 形式的邮件标识
func NewMessageID(from string) string {
	host := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		host = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}

// Build 用 enmime 构造 MIME 结构，Bcc 只用于投递不写入头部
func Build(env *delivery.Envelope, messageID string, date time.Time) (*enmime.Part, error) {
	b := enmime.Builder().
		From(env.From.Name, env.From.Email).
		To(env.To.Name, env.To.Email).
		Subject(env.Subject).
		Date(date)

	if env.ReplyTo != "" {
		b = b.ReplyTo("", env.ReplyTo)
	}
	if len(env.Cc) > 0 {
		b = b.CCAddrs(toAddrs(env.Cc))
	}
	if len(env.Bcc) > 0 {
		b = b.BCCAddrs(toAddrs(env.Bcc))
	}
	for name, value := range env.Headers {
		if value != "" {
			b = b.Header(name, value)
		}
	}
	if env.Text != "" {
		b = b.Text([]byte(env.Text))
	}
	if env.HTML != "" {
		b = b.HTML([]byte(env.HTML))
	}
	for _, att := range env.Attachments {
		b = b.AddAttachment(att.Content, att.ContentType, att.Filename)
	}

	root, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build mime: %w", err)
	}
	root.Header.Set("Message-ID", messageID)
	return root, nil
}

// Render 构造并编码为可直接投递的字节
func Render(env *delivery.Envelope, messageID string, date time.Time) ([]byte, error) {
	root, err := Build(env, messageID, date)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode mime: %w", err)
	}
	return buf.Bytes(), nil
}

func toAddrs(list []string) []mail.Address {
	out := make([]mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, mail.Address{Address: a})
	}
	return out
}
