// Package mailmerge 负责群发邮件的个性化：占位符替换、纯文本投影和附件解码。
package mailmerge

import (
	"strings"

	"repaircafe/backend/internal/domain"
)

// 支持的占位符，其余 {{...}} 原样保留
const (
	PlaceholderGreeting  = "{{Anrede}}"
	PlaceholderClosing   = "{{Gruss}}"
	PlaceholderSignature = "{{Signatur}}"
)

// Tokens 单个收件人解析后的替换值
type Tokens struct {
	Greeting  string
	Closing   string
	Signature string
}

// Substitute 把正文中所有占位符替换为对应值。
// 单次扫描，替换值中的占位符不会被再次展开。
func Substitute(body string, tokens Tokens) string {
	r := strings.NewReplacer(
		PlaceholderGreeting, tokens.Greeting,
		PlaceholderClosing, tokens.Closing,
		PlaceholderSignature, tokens.Signature,
	)
	return r.Replace(body)
}

// SignatureLine 返回 "Name – Role" 或 "Name"
func SignatureLine(sender domain.Sender) string {
	name := strings.TrimSpace(sender.Name)
	if role := strings.TrimSpace(sender.Role); role != "" {
		return name + " – " + role
	}
	return name
}

// SignatureHTML 富文本签名：姓名行 + 换行 + 组织行
func SignatureHTML(sender domain.Sender) string {
	return SignatureLine(sender) + "<br />" + orgLine(sender)
}

// SignatureText 纯文本签名
func SignatureText(sender domain.Sender) string {
	return SignatureLine(sender) + "\n" + orgLine(sender)
}

func orgLine(sender domain.Sender) string {
	if sender.OrgLine != "" {
		return sender.OrgLine
	}
	return domain.DefaultOrgLine
}
