package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 拒绝类别，决定对外的 HTTP 状态码
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"     // 缺失或格式错误的字段
	KindAuthentication ErrorKind = "authentication" // nonce、签名或时间校验失败，对外与校验错误一致
	KindRateLimit      ErrorKind = "rate_limit"
	KindConfiguration  ErrorKind = "configuration" // 依赖的外部能力未配置
	KindTransport      ErrorKind = "transport"
	KindTooShort       ErrorKind = "too_short"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal"
)

// 面向用户的提示文本
const (
	MsgInvalidPayload     = "Ungültige Nutzdaten"
	MsgMissingFields      = "Bitte alle Pflichtfelder ausfüllen."
	MsgInvalidEmail       = "Bitte eine gültige E-Mail-Adresse angeben."
	MsgSubmissionRejected = "Die Anfrage konnte nicht verarbeitet werden."
	MsgResubmit           = "Bitte senden Sie das Formular noch einmal."
	MsgNonceInvalid       = "Das Formular ist abgelaufen. Bitte laden Sie die Seite neu."
	MsgRateLimited        = "Bitte warten Sie einen Moment, bevor Sie es erneut versuchen."
	MsgMailUnavailable    = "E-Mail Versand ist aktuell nicht verfügbar. Bitte später erneut versuchen."
	MsgMailNotConfigured  = "E-Mail Versand ist nicht konfiguriert."
	MsgContactFailed      = "Die Nachricht konnte nicht gesendet werden."
	MsgGuestbookFailed    = "Der Eintrag konnte nicht gespeichert werden."
	MsgGuestbookDisabled  = "Das Gästebuch ist aktuell nicht verfügbar."
	MsgNameTooShort       = "Bitte einen Namen oder ein Pseudonym mit mindestens 2 Zeichen angeben."
	MsgMessageTooShort    = "Bitte eine Nachricht mit mindestens 10 Zeichen schreiben."
	MsgMemberInvalid      = "Bitte Vor- und Nachname sowie eine gültige E-Mail-Adresse angeben."
	MsgMemberNotFound     = "Kontakt nicht gefunden."
	MsgDirectoryFailed    = "Kontakte konnten nicht geladen werden."
	MsgSubjectRequired    = "Bitte einen Betreff angeben."
	MsgBodyRequired       = "Bitte einen Nachrichtentext angeben."
	MsgSenderInvalid      = "Absender- oder Antwortadresse ist ungültig."
	MsgNoRecipients       = "Keine Empfänger mit E-Mail-Adresse ausgewählt."
	MsgAttachmentInvalid  = "Anhang konnte nicht gelesen werden."
	MsgAttachmentTooLarge = "Die Anhänge sind zu groß."
	MsgUnauthorized       = "Nicht autorisiert."
	MsgInternal           = "Interner Fehler. Bitte später erneut versuchen."
)

// Error 带类别的业务错误
type Error struct {
	Kind    ErrorKind
	Message string            // 可直接展示给用户
	Details map[string]string // 字段级说明，仅在调试模式下对外输出
	Err     error             // 底层原因，不会出现在响应中
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError 创建校验错误
func NewValidationError(message string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// NewAuthenticationError 创建认证错误，cause 仅用于日志
func NewAuthenticationError(message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Err: cause}
}

// NewRateLimitError 创建限流错误
func NewRateLimitError() *Error {
	return &Error{Kind: KindRateLimit, Message: MsgRateLimited}
}

// NewConfigurationError 创建配置缺失错误
func NewConfigurationError(message string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: cause}
}

// NewTransportError 创建发送失败错误
func NewTransportError(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: cause}
}

// NewTooShortError 创建字段过短错误
func NewTooShortError(message, field string) *Error {
	return &Error{Kind: KindTooShort, Message: message, Details: map[string]string{field: "too_short"}}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: cause}
}

// NewInternalError 创建内部错误
func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf 返回错误类别，非业务错误视为内部错误
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind 判断错误链中是否包含指定类别
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
