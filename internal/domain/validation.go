package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253

	MaxSubjectLength = 255
)

var (
	// 本地部分允许常见的 +、. 、_ 、- 字符
	localPartRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+$`)

	// 域名必须至少包含一个点
	domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
)

// EmailValidator 邮箱验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 完整验证邮箱地址，只接受裸地址，不接受 "Name <addr>" 形式
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)

	if email == "" {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if err := v.ValidateLocalPart(email[:at]); err != nil {
		return err
	}
	return v.ValidateDomain(email[at+1:])
}

// ValidateLocalPart 验证邮箱本地部分
func (v *EmailValidator) ValidateLocalPart(localPart string) error {
	if localPart == "" {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}
	if strings.HasPrefix(localPart, ".") || strings.HasSuffix(localPart, ".") || strings.Contains(localPart, "..") {
		return ErrInvalidLocalPart
	}
	return nil
}

// ValidateDomain 验证域名
func (v *EmailValidator) ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

var defaultValidator = NewEmailValidator()

// ValidateEmail 简化的验证函数
func ValidateEmail(email string) bool {
	return defaultValidator.ValidateEmail(email) == nil
}

// ValidateSubject 主题不能为空且不能包含控制字符
func ValidateSubject(subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" || utf8.RuneCountInString(subject) > MaxSubjectLength {
		return false
	}
	for _, r := range subject {
		if r < 32 {
			return false
		}
	}
	return true
}

// Truncate 按字符数截断，不会切断多字节字符
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// RuneLen 字符数
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
