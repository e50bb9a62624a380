package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"repaircafe/backend/internal/delivery"
)

const defaultHeloName = "localhost"

// ErrAuthUnsupported 配置了账号但服务器未提供 AUTH
var ErrAuthUnsupported = errors.New("smtp server does not support AUTH")

// SMTPConfig SMTP 中继配置
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ImplicitTLS bool // 465 端口使用隐式 TLS，其余端口在支持时升级 STARTTLS
	HeloName    string
	TLSConfig   *tls.Config // 为空时按 Host 校验证书
}

// SMTPTransport 每封邮件一个连接的 SMTP 客户端
type SMTPTransport struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTPTransport 创建 SMTP 传输
func NewSMTPTransport(cfg SMTPConfig, logger *zap.Logger) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPTransport{cfg: cfg, logger: logger, now: time.Now}
}

// Send 渲染并投递单封邮件，返回 Message-ID
func (t *SMTPTransport) Send(ctx context.Context, env *delivery.Envelope) (string, error) {
	id := NewMessageID(env.From.Email)
	raw, err := Render(env, id, t.now())
	if err != nil {
		return "", err
	}
	if err := t.deliver(ctx, env.From.Email, env.Recipients(), raw); err != nil {
		return "", err
	}
	return id, nil
}

// deliver 与 enmime.Sender 的签名一致
func (t *SMTPTransport) deliver(ctx context.Context, reversePath string, recipients []string, msg []byte) error {
	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if t.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return ErrAuthUnsupported
		}
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.SendMail(reversePath, recipients, bytes.NewReader(msg)); err != nil {
		return err
	}

	if err := c.Quit(); err != nil {
		t.logger.Debug("SMTP quit failed", zap.String("host", t.cfg.Host), zap.Error(err))
	}
	return nil
}

// connect 建立会话。465 端口直接走 TLS；其余端口先用明文连接探测 EHLO，
// 服务器提供 STARTTLS 时重新连接并升级
func (t *SMTPTransport) connect(ctx context.Context) (*gosmtp.Client, error) {
	tlsConfig := t.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	if t.cfg.ImplicitTLS {
		return t.greet(gosmtp.NewClient(tls.Client(conn, tlsConfig)))
	}

	c, err := t.greet(gosmtp.NewClient(conn))
	if err != nil {
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, nil
	}
	_ = c.Quit()
	c.Close()

	if conn, err = t.dial(ctx); err != nil {
		return nil, err
	}
	c, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("starttls: %w", err)
	}
	// 握手在升级后的第一条命令时发生，EHLO 失败也归为 STARTTLS 失败
	if c, err = t.greet(c); err != nil {
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return c, nil
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// greet 发送 EHLO，未设置 HeloName 时使用 localhost
func (t *SMTPTransport) greet(c *gosmtp.Client) (*gosmtp.Client, error) {
	name := t.cfg.HeloName
	if name == "" {
		name = defaultHeloName
	}
	if err := c.Hello(name); err != nil {
		c.Close()
		return nil, fmt.Errorf("helo: %w", err)
	}
	return c, nil
}

// Sender 把传输适配为 enmime.Sender，供 MailBuilder.Send 使用
func (t *SMTPTransport) Sender(ctx context.Context) *EnmimeSender {
	return &EnmimeSender{ctx: ctx, transport: t}
}

// EnmimeSender 实现 enmime.Sender
type EnmimeSender struct {
	ctx       context.Context
	transport *SMTPTransport
}

// Send 投递已编码的邮件
func (s *EnmimeSender) Send(reversePath string, recipients []string, msg []byte) error {
	return s.transport.deliver(s.ctx, reversePath, recipients, msg)
}
