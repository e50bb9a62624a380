package domain

import "strings"

// 组织的固定落款行
const DefaultOrgLine = "Repair Café Leonberg"

// Sender 发件人信息
type Sender struct {
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Role    string `json:"role,omitempty" yaml:"role"`
	OrgLine string `json:"orgLine,omitempty" yaml:"orgLine"`
}

// Draft 一次群发共享的邮件内容与信封信息
type Draft struct {
	Subject   string `json:"subject" yaml:"subject"`
	Body      string `json:"body" yaml:"body"` // 富文本，可包含 {{Anrede}} {{Gruss}} {{Signatur}}
	FromName  string `json:"fromName" yaml:"fromName"`
	FromEmail string `json:"fromEmail" yaml:"fromEmail"`
	ReplyTo   string `json:"replyTo,omitempty" yaml:"replyTo"`
	Role      string `json:"role,omitempty" yaml:"role"`
	OrgLine   string `json:"orgLine,omitempty" yaml:"orgLine"`
}

// EffectiveReplyTo 未设置回复地址时使用发件地址
func (d *Draft) EffectiveReplyTo() string {
	if r := strings.TrimSpace(d.ReplyTo); r != "" {
		return r
	}
	return strings.TrimSpace(d.FromEmail)
}

// Sender 返回草稿对应的发件人
func (d *Draft) Sender() Sender {
	org := d.OrgLine
	if org == "" {
		org = DefaultOrgLine
	}
	return Sender{Name: d.FromName, Email: d.FromEmail, Role: d.Role, OrgLine: org}
}
