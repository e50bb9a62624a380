// Package smtp 提供开发和测试用的 SMTP 收件槽：接收外发邮件并保存在内存中，不做任何转发。
package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
)

// DefaultCapacity 默认保留的邮件数量
const DefaultCapacity = 200

// ErrAuthFailed 认证失败
var ErrAuthFailed = errors.New("invalid credentials")

// CapturedMessage 收件槽中保存的一封邮件
type CapturedMessage struct {
	From        string              `json:"from"`
	Recipients  []string            `json:"recipients"`
	Subject     string              `json:"subject"`
	MessageID   string              `json:"messageId"`
	Text        string              `json:"text"`
	HTML        string              `json:"html"`
	Headers     map[string][]string `json:"headers"`
	Attachments []domain.Attachment `json:"attachments"`
	Raw         []byte              `json:"-"`
	ReceivedAt  time.Time           `json:"receivedAt"`
}

// Header 读取单个头部值
func (m *CapturedMessage) Header(name string) string {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Backend 实现 go-smtp 的 Backend 接口。
// 接受任意收件人，只把邮件放入内存环形缓冲区。
type Backend struct {
	mu       sync.RWMutex
	messages []*CapturedMessage
	capacity int
	username string
	password string
	limiter  *ConnectionLimiter
	logger   *zap.Logger
	notify   func(*CapturedMessage)
}

// BackendOptions 收件槽配置
type BackendOptions struct {
	Capacity int
	Username string // 设置后要求 AUTH PLAIN
	Password string
	Limiter  *ConnectionLimiter
	Logger   *zap.Logger
	Notify   func(*CapturedMessage) // 每收到一封邮件回调一次
}

// NewBackend 创建收件槽
func NewBackend(opts BackendOptions) *Backend {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Backend{
		capacity: opts.Capacity,
		username: opts.Username,
		password: opts.Password,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
		notify:   opts.Notify,
	}
}

// NewServer 用收件槽创建 go-smtp 服务器
func NewServer(be *Backend, addr, domainName string) *gosmtp.Server {
	s := gosmtp.NewServer(be)
	s.Addr = addr
	s.Domain = domainName
	s.AllowInsecureAuth = true
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	s.MaxMessageBytes = 25 * 1024 * 1024
	s.MaxRecipients = 50
	return s
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil {
		if err := b.limiter.Acquire(); err != nil {
			b.logger.Debug("sink connection refused", zap.Error(err))
			return nil, &gosmtp.SMTPError{
				Code:         421,
				EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
				Message:      err.Error() + ", try again later",
			}
		}
	}
	return &session{backend: b, authenticated: b.username == ""}, nil
}

// Messages 返回已接收邮件的副本，按接收顺序
func (b *Backend) Messages() []*CapturedMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*CapturedMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Last 最近一封邮件
func (b *Backend) Last() *CapturedMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.messages) == 0 {
		return nil
	}
	return b.messages[len(b.messages)-1]
}

// Reset 清空
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

func (b *Backend) store(msg *CapturedMessage) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.capacity; over > 0 {
		b.messages = b.messages[over:]
	}
	b.mu.Unlock()

	b.logger.Info("Mail captured",
		zap.String("message_id", msg.MessageID),
		zap.Int("recipients", len(msg.Recipients)),
		zap.Int("attachments", len(msg.Attachments)),
	)
	if b.notify != nil {
		b.notify(msg)
	}
}

type session struct {
	backend       *Backend
	authenticated bool
	fromAddress   string
	recipients    []string
}

// AuthMechanisms 只支持 PLAIN
func (s *session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth 校验 PLAIN 凭据
func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if s.backend.username != "" && (username != s.backend.username || password != s.backend.password) {
			return ErrAuthFailed
		}
		s.authenticated = true
		return nil
	}), nil
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	if !s.authenticated {
		return gosmtp.ErrAuthRequired
	}
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令，收件槽接受任何地址
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if !strings.Contains(addr, "@") {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 用 enmime 解析邮件内容。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, 25<<20))
	if err != nil {
		return err
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse email: %w", err)
	}

	msg := &CapturedMessage{
		From:       s.fromAddress,
		Recipients: append([]string(nil), s.recipients...),
		Subject:    env.GetHeader("Subject"),
		MessageID:  env.GetHeader("Message-ID"),
		Text:       env.Text,
		HTML:       env.HTML,
		Headers:    make(map[string][]string),
		Raw:        raw,
		ReceivedAt: time.Now(),
	}
	for _, key := range env.GetHeaderKeys() {
		msg.Headers[key] = env.GetHeaderValues(key)
	}
	for _, att := range env.Attachments {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}

	s.backend.store(msg)
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
