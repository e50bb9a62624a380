package delivery

import (
	"context"

	"repaircafe/backend/internal/domain"
)

// 运维追踪头
const (
	HeaderMailer     = "X-RepairCafe-Mailer"
	HeaderReplyTo    = "X-Reply-To"
	HeaderMailerFrom = "X-Mailer-From"
)

// Address 带显示名的邮件地址
type Address struct {
	Name  string
	Email string
}

// Envelope 发给单个收件人的完整邮件
type Envelope struct {
	From        Address
	To          Address
	ReplyTo     string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Headers     map[string]string
	Attachments []domain.Attachment
}

// Recipients 信封上的全部投递地址
func (e *Envelope) Recipients() []string {
	out := make([]string, 0, 1+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To.Email)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

// Transport 发送单封邮件，成功时返回邮件标识
type Transport interface {
	Send(ctx context.Context, env *Envelope) (string, error)
}

// TransportFunc 函数适配器
type TransportFunc func(ctx context.Context, env *Envelope) (string, error)

// Send 调用函数本身
func (f TransportFunc) Send(ctx context.Context, env *Envelope) (string, error) {
	return f(ctx, env)
}

// Observer 在每个结果产生时收到通知，实现需要支持并发调用
type Observer interface {
	OnOutcome(index, total int, outcome domain.DeliveryOutcome)
}

// ObserverFunc 函数适配器
type ObserverFunc func(index, total int, outcome domain.DeliveryOutcome)

// OnOutcome 调用函数本身
func (f ObserverFunc) OnOutcome(index, total int, outcome domain.DeliveryOutcome) {
	f(index, total, outcome)
}

// Batch 一次群发的输入
type Batch struct {
	Draft       domain.Draft
	Messages    []domain.OutboundMessage
	Attachments []domain.Attachment
	Observer    Observer
}
