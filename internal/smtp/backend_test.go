package smtp

import (
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawMail = "From: \"Repair Café Leonberg\" <info@repair-leonberg.de>\r\n" +
	"To: max@example.com\r\n" +
	"Subject: Update\r\n" +
	"Message-ID: <abc@repair-leonberg.de>\r\n" +
	"X-RepairCafe-Mailer: repaircafe-mailversand\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hallo Max,\r\n"

func startSink(t *testing.T, opts BackendOptions) (*Backend, string) {
	t.Helper()

	be := NewBackend(opts)
	srv := NewServer(be, "127.0.0.1:0", "localhost")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return be, ln.Addr().String()
}

// sendPlain 通过未加密连接投递，sink 不提供 STARTTLS
func sendPlain(t *testing.T, addr string, auth sasl.Client, to ...string) error {
	t.Helper()

	c, err := gosmtp.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.SendMail("info@repair-leonberg.de", to, strings.NewReader(rawMail)); err != nil {
		return err
	}
	return c.Quit()
}

func TestBackend_Capture(t *testing.T) {
	t.Run("接收并解析邮件", func(t *testing.T) {
		var notified int
		be, addr := startSink(t, BackendOptions{Notify: func(*CapturedMessage) { notified++ }})

		err := sendPlain(t, addr, nil, "max@example.com", "Archiv@Repair-Leonberg.de")
		require.NoError(t, err)

		msg := be.Last()
		require.NotNil(t, msg)
		assert.Equal(t, "info@repair-leonberg.de", msg.From)
		assert.Equal(t, []string{"max@example.com", "archiv@repair-leonberg.de"}, msg.Recipients)
		assert.Equal(t, "Update", msg.Subject)
		assert.Equal(t, "<abc@repair-leonberg.de>", msg.MessageID)
		assert.Equal(t, "repaircafe-mailversand", msg.Header("X-RepairCafe-Mailer"))
		assert.Contains(t, msg.Text, "Hallo Max,")
		assert.Equal(t, 1, notified)
	})

	t.Run("要求认证", func(t *testing.T) {
		be, addr := startSink(t, BackendOptions{Username: "relay", Password: "geheim"})

		err := sendPlain(t, addr, nil, "max@example.com")
		assert.Error(t, err)
		assert.Empty(t, be.Messages())

		err = sendPlain(t, addr, sasl.NewPlainClient("", "relay", "falsch"), "max@example.com")
		assert.Error(t, err)

		err = sendPlain(t, addr, sasl.NewPlainClient("", "relay", "geheim"), "max@example.com")
		require.NoError(t, err)
		assert.Len(t, be.Messages(), 1)
	})

	t.Run("超出容量时丢弃最旧的邮件", func(t *testing.T) {
		be, addr := startSink(t, BackendOptions{Capacity: 2})

		for i := 0; i < 3; i++ {
			require.NoError(t, sendPlain(t, addr, nil, "max@example.com"))
		}
		assert.Len(t, be.Messages(), 2)

		be.Reset()
		assert.Nil(t, be.Last())
	})
}

func TestConnectionLimiter(t *testing.T) {
	l := NewConnectionLimiter(2, 100)

	assert.NoError(t, l.Acquire())
	assert.NoError(t, l.Acquire())
	assert.ErrorIs(t, l.Acquire(), ErrTooManyConnections, "超过最大并发连接数")
	assert.Equal(t, 2, l.Current())

	l.Release()
	assert.NoError(t, l.Acquire())

	l.Release()
	l.Release()
	l.Release()
	assert.Equal(t, 0, l.Current())

	slow := NewConnectionLimiter(10, 1)
	assert.NoError(t, slow.Acquire())
	assert.ErrorIs(t, slow.Acquire(), ErrConnectionRate, "每秒只允许一个新会话")
}
