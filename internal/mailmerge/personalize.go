package mailmerge

import (
	"strings"

	"repaircafe/backend/internal/domain"
)

// 默认的称呼和结束语
const (
	DefaultGreetingPrefix = "Hallo"
	DefaultClosing        = "Viele Grüße"
)

// ResolveGreeting 成员未设置称呼（包括空串）时使用 "Hallo {名}"
func ResolveGreeting(m *domain.Member) string {
	if m.Greeting != "" {
		return m.Greeting
	}
	return DefaultGreetingPrefix + " " + m.FirstName
}

// ResolveClosing 成员未设置结束语（包括空串）时使用 "Viele Grüße"
func ResolveClosing(m *domain.Member) string {
	if m.Closing != "" {
		return m.Closing
	}
	return DefaultClosing
}

// Personalize 为单个成员生成富文本和纯文本两个版本
func Personalize(draft *domain.Draft, m *domain.Member) domain.OutboundMessage {
	rich := Substitute(draft.Body, Tokens{
		Greeting:  ResolveGreeting(m),
		Closing:   ResolveClosing(m),
		Signature: SignatureHTML(draft.Sender()),
	})

	return domain.OutboundMessage{
		RecipientID:    m.ID,
		RecipientEmail: strings.TrimSpace(m.Email),
		RecipientName:  m.FullName(),
		Text:           ToPlainText(rich),
		HTML:           rich,
	}
}

// PersonalizeAll 按输入顺序为所有可发送的成员生成邮件，没有邮箱的成员被跳过
func PersonalizeAll(draft *domain.Draft, members []*domain.Member) []domain.OutboundMessage {
	out := make([]domain.OutboundMessage, 0, len(members))
	for _, m := range members {
		if m == nil || !m.Sendable() {
			continue
		}
		out = append(out, Personalize(draft, m))
	}
	return out
}
