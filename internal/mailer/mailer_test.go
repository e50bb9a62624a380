package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/delivery"
	"repaircafe/backend/internal/domain"
	smtpsink "repaircafe/backend/internal/smtp"
)

func newEnvelope() *delivery.Envelope {
	return &delivery.Envelope{
		From:    delivery.Address{Name: "Repair Café Leonberg", Email: "info@repair-leonberg.de"},
		To:      delivery.Address{Name: "Max Muster", Email: "max@example.com"},
		ReplyTo: "vorstand@repair-leonberg.de",
		Bcc:     []string{"archiv@repair-leonberg.de"},
		Subject: "Einladung zum Repair Café",
		Text:    "Hallo Max,\n\nViele Grüße\nErika\nRepair Café Leonberg",
		HTML:    "<p>Hallo Max,</p><p>Viele Grüße<br />Erika<br />Repair Café Leonberg</p>",
		Headers: map[string]string{
			delivery.HeaderMailer:     "repaircafe-mailversand",
			delivery.HeaderReplyTo:    "vorstand@repair-leonberg.de",
			delivery.HeaderMailerFrom: "Erika",
		},
		Attachments: []domain.Attachment{{Filename: "flyer.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")}},
	}
}

func TestRender(t *testing.T) {
	raw, err := Render(newEnvelope(), "<id-1@repair-leonberg.de>", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Einladung zum Repair Café", env.GetHeader("Subject"))
	assert.Equal(t, "<id-1@repair-leonberg.de>", env.GetHeader("Message-ID"))
	assert.Equal(t, "repaircafe-mailversand", env.GetHeader("X-RepairCafe-Mailer"))
	assert.Equal(t, "vorstand@repair-leonberg.de", env.GetHeader("X-Reply-To"))
	assert.Equal(t, "Erika", env.GetHeader("X-Mailer-From"))
	assert.Contains(t, env.GetHeader("Reply-To"), "vorstand@repair-leonberg.de")
	assert.Empty(t, env.GetHeader("Bcc"), "密送地址不应写入头部")
	assert.Contains(t, env.Text, "Viele Grüße")
	assert.Contains(t, env.HTML, "<br />Erika")

	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "flyer.pdf", env.Attachments[0].FileName)
	assert.Equal(t, []byte("%PDF-1.4"), env.Attachments[0].Content)

	from, err := env.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "Repair Café Leonberg", from[0].Name)
	assert.Equal(t, "info@repair-leonberg.de", from[0].Address)
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("info@repair-leonberg.de")
	assert.Regexp(t, `^<[0-9a-f-]{36}@repair-leonberg\.de>$`, id)
	assert.Regexp(t, `@localhost>$`, NewMessageID("kaputt"))
	assert.NotEqual(t, id, NewMessageID("info@repair-leonberg.de"))
}

func startSink(t *testing.T, opts smtpsink.BackendOptions) (*smtpsink.Backend, string, int) {
	t.Helper()
	return startSinkWith(t, opts, nil, false)
}

// startSinkWith serverTLS 非空时收件槽提供 STARTTLS；implicit 为 true 时监听器直接走 TLS
func startSinkWith(t *testing.T, opts smtpsink.BackendOptions, serverTLS *tls.Config, implicit bool) (*smtpsink.Backend, string, int) {
	t.Helper()

	be := smtpsink.NewBackend(opts)
	srv := smtpsink.NewServer(be, "127.0.0.1:0", "localhost")
	srv.TLSConfig = serverTLS

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	if implicit {
		ln = tls.NewListener(ln, serverTLS)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return be, host, port
}

// testTLS 借用 httptest 的自签名证书（签发给 example.com 和 127.0.0.1），
// 客户端配置信任该证书并在握手完成时置位 handshakes
func testTLS(t *testing.T) (server, client *tls.Config, handshakes *atomic.Int32) {
	t.Helper()

	ts := httptest.NewUnstartedServer(http.NotFoundHandler())
	ts.StartTLS()
	defer ts.Close()

	pool := x509.NewCertPool()
	pool.AddCert(ts.Certificate())

	handshakes = &atomic.Int32{}
	server = &tls.Config{Certificates: ts.TLS.Certificates}
	client = &tls.Config{
		RootCAs:    pool,
		ServerName: "example.com",
		VerifyConnection: func(tls.ConnectionState) error {
			handshakes.Add(1)
			return nil
		},
	}
	return server, client, handshakes
}

func TestSMTPTransport(t *testing.T) {
	t.Run("投递到收件槽并包含密送", func(t *testing.T) {
		be, host, port := startSink(t, smtpsink.BackendOptions{})
		transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port}, zap.NewNop())

		id, err := transport.Send(context.Background(), newEnvelope())
		require.NoError(t, err)

		msg := be.Last()
		require.NotNil(t, msg)
		assert.Equal(t, id, msg.MessageID)
		assert.Equal(t, "info@repair-leonberg.de", msg.From)
		assert.Equal(t, []string{"max@example.com", "archiv@repair-leonberg.de"}, msg.Recipients)
		assert.Equal(t, "Erika", msg.Header("X-Mailer-From"))
		require.Len(t, msg.Attachments, 1)
	})

	t.Run("使用账号认证", func(t *testing.T) {
		be, host, port := startSink(t, smtpsink.BackendOptions{Username: "relay", Password: "geheim"})

		ok := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "relay", Password: "geheim"}, nil)
		_, err := ok.Send(context.Background(), newEnvelope())
		require.NoError(t, err)

		bad := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "relay", Password: "falsch"}, nil)
		_, err = bad.Send(context.Background(), newEnvelope())
		assert.Error(t, err)

		assert.Len(t, be.Messages(), 1)
	})

	t.Run("服务器提供 STARTTLS 时升级", func(t *testing.T) {
		serverTLS, clientTLS, handshakes := testTLS(t)
		be, host, port := startSinkWith(t, smtpsink.BackendOptions{Username: "relay", Password: "geheim"}, serverTLS, false)

		transport := NewSMTPTransport(SMTPConfig{
			Host:      host,
			Port:      port,
			Username:  "relay",
			Password:  "geheim",
			HeloName:  "mail.repair-leonberg.de",
			TLSConfig: clientTLS,
		}, nil)
		id, err := transport.Send(context.Background(), newEnvelope())
		require.NoError(t, err)

		assert.Equal(t, int32(1), handshakes.Load(), "应通过 STARTTLS 完成一次握手")
		require.Len(t, be.Messages(), 1)
		assert.Equal(t, id, be.Last().MessageID)
	})

	t.Run("证书不受信任时 STARTTLS 失败", func(t *testing.T) {
		serverTLS, _, _ := testTLS(t)
		be, host, port := startSinkWith(t, smtpsink.BackendOptions{}, serverTLS, false)

		transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port}, nil)
		_, err := transport.Send(context.Background(), newEnvelope())

		assert.ErrorContains(t, err, "starttls")
		assert.Empty(t, be.Messages())
	})

	t.Run("隐式 TLS", func(t *testing.T) {
		serverTLS, clientTLS, handshakes := testTLS(t)
		be, host, port := startSinkWith(t, smtpsink.BackendOptions{}, serverTLS, true)

		transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port, ImplicitTLS: true, TLSConfig: clientTLS}, nil)
		_, err := transport.Send(context.Background(), newEnvelope())
		require.NoError(t, err)

		assert.Equal(t, int32(1), handshakes.Load())
		assert.Len(t, be.Messages(), 1)
	})

	t.Run("连接失败返回错误", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().(*net.TCPAddr)
		require.NoError(t, ln.Close())

		transport := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: addr.Port}, nil)
		_, err = transport.Send(context.Background(), newEnvelope())
		assert.Error(t, err)
	})

	t.Run("enmime 构造器直接发送", func(t *testing.T) {
		be, host, port := startSink(t, smtpsink.BackendOptions{})
		transport := NewSMTPTransport(SMTPConfig{Host: host, Port: port}, nil)

		err := enmime.Builder().
			From("Repair Café Leonberg", "info@repair-leonberg.de").
			To("", "max@example.com").
			Subject("Test").
			Text([]byte("Hallo")).
			Send(transport.Sender(context.Background()))
		require.NoError(t, err)
		assert.Equal(t, "Test", be.Last().Subject)
	})
}

func TestSendGridTransport(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	transport := NewSendGridTransport("SG.test", srv.URL, zap.NewNop())
	id, err := transport.Send(context.Background(), newEnvelope())

	require.NoError(t, err)
	assert.Equal(t, "sg-123", id)
	assert.Equal(t, "Einladung zum Repair Café", received["subject"])

	content := received["content"].([]interface{})
	require.Len(t, content, 2)
	assert.Equal(t, "text/plain", content[0].(map[string]interface{})["type"])

	headers := received["headers"].(map[string]interface{})
	assert.Equal(t, "repaircafe-mailversand", headers[delivery.HeaderMailer])

	personalization := received["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Len(t, personalization["bcc"], 1)

	t.Run("错误状态码", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"message":"bad"}]}`))
		}))
		defer failing.Close()

		_, err := NewSendGridTransport("SG.test", failing.URL, nil).Send(context.Background(), newEnvelope())
		assert.ErrorContains(t, err, "status 400")
	})
}

func TestThrottled(t *testing.T) {
	calls := 0
	next := delivery.TransportFunc(func(ctx context.Context, env *delivery.Envelope) (string, error) {
		calls++
		return "<id>", nil
	})

	_, wrapped := NewThrottled(next, 0).(*Throttled)
	assert.False(t, wrapped, "不限速时直接返回原传输")

	throttled := NewThrottled(next, 1)
	_, err := throttled.Send(context.Background(), newEnvelope())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = throttled.Send(ctx, newEnvelope())
	assert.Error(t, err, "令牌耗尽且等待超过截止时间")
	assert.Equal(t, 1, calls)
}

func TestNewTransport(t *testing.T) {
	log := zap.NewNop()

	_, err := NewTransport(config.MailConfig{}, log)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTransport(config.MailConfig{Transport: "smtp"}, log)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTransport(config.MailConfig{Transport: "carrier-pigeon"}, log)
	assert.Error(t, err)

	tr, err := NewTransport(config.MailConfig{Transport: "smtp", SMTPHost: "smtp.example.org"}, log)
	require.NoError(t, err)
	assert.IsType(t, &SMTPTransport{}, tr)

	tr, err = NewTransport(config.MailConfig{Transport: "sendgrid", SendGridAPIKey: "SG.x", SendRate: 5}, log)
	require.NoError(t, err)
	assert.IsType(t, &Throttled{}, tr)

	tr, err = NewTransport(config.MailConfig{Transport: "log"}, log)
	require.NoError(t, err)
	id, err := tr.Send(context.Background(), newEnvelope())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
