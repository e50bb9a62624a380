package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repaircafe/backend/internal/domain"
)

// MockTransport 模拟传输层
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, env *Envelope) (string, error) {
	args := m.Called(ctx, env)
	return args.String(0), args.Error(1)
}

func toAddress(addr string) interface{} {
	return mock.MatchedBy(func(env *Envelope) bool { return env.To.Email == addr })
}

func newBatch() *Batch {
	return &Batch{
		Draft: domain.Draft{
			Subject:   "Update",
			FromName:  "Erika Helfer",
			FromEmail: "erika@repair-leonberg.de",
			ReplyTo:   "vorstand@repair-leonberg.de",
		},
		Messages: []domain.OutboundMessage{
			{RecipientID: "1", RecipientEmail: "a@example.com", RecipientName: "A", Text: "Hallo A", HTML: "<p>Hallo A</p>"},
			{RecipientID: "2", RecipientEmail: "b@example.com", RecipientName: "B", Text: "Hallo B", HTML: "<p>Hallo B</p>"},
			{RecipientID: "3", RecipientEmail: "c@example.com", RecipientName: "C", Text: "Hallo C", HTML: "<p>Hallo C</p>"},
		},
	}
}

func newDispatcher(transport Transport, concurrency int) *Dispatcher {
	return NewDispatcher(transport, Options{
		FromAddress: "info@repair-leonberg.de",
		FromName:    "Repair Café Leonberg",
		Bcc:         "archiv@repair-leonberg.de",
		MailerTag:   "repaircafe-mailversand",
		Timeout:     time.Second,
		Concurrency: concurrency,
	}, zap.NewNop())
}

func TestDispatcher_Dispatch(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		concurrency := concurrency
		t.Run("第2个收件人失败不影响其他收件人", func(t *testing.T) {
			transport := new(MockTransport)
			transport.On("Send", mock.Anything, toAddress("a@example.com")).Return("<1@relay>", nil)
			transport.On("Send", mock.Anything, toAddress("b@example.com")).Return("", errors.New("550 mailbox unavailable"))
			transport.On("Send", mock.Anything, toAddress("c@example.com")).Return("<3@relay>", nil)

			report, err := newDispatcher(transport, concurrency).Dispatch(context.Background(), newBatch())
			require.NoError(t, err)

			expected := &domain.DeliveryReport{
				Outcomes: []domain.DeliveryOutcome{
					{RecipientID: "1", To: "a@example.com", MessageID: "<1@relay>"},
					{RecipientID: "2", To: "b@example.com", Error: "550 mailbox unavailable"},
					{RecipientID: "3", To: "c@example.com", MessageID: "<3@relay>"},
				},
				Succeeded: 2,
			}
			if diff := cmp.Diff(expected, report); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
			transport.AssertNumberOfCalls(t, "Send", 3)
		})
	}

	t.Run("传输层 panic 只影响当前收件人", func(t *testing.T) {
		for _, concurrency := range []int{1, 3} {
			transport := TransportFunc(func(_ context.Context, env *Envelope) (string, error) {
				if env.To.Email == "b@example.com" {
					panic("relay exploded")
				}
				return "<id@relay>", nil
			})

			report, err := newDispatcher(transport, concurrency).Dispatch(context.Background(), newBatch())
			require.NoError(t, err)

			require.Len(t, report.Outcomes, 3)
			assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"},
				[]string{report.Outcomes[0].To, report.Outcomes[1].To, report.Outcomes[2].To})
			assert.Empty(t, report.Outcomes[0].Error)
			assert.Contains(t, report.Outcomes[1].Error, "panic")
			assert.Contains(t, report.Outcomes[1].Error, "relay exploded")
			assert.Empty(t, report.Outcomes[2].Error)
			assert.Equal(t, 2, report.Succeeded)
		}
	})

	t.Run("全部失败仍返回报告", func(t *testing.T) {
		transport := new(MockTransport)
		transport.On("Send", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

		report, err := newDispatcher(transport, 1).Dispatch(context.Background(), newBatch())

		require.NoError(t, err)
		require.Len(t, report.Outcomes, 3)
		assert.True(t, report.AllFailed())
	})

	t.Run("信封包含追踪头和密送", func(t *testing.T) {
		var envs []*Envelope
		var mu sync.Mutex
		transport := TransportFunc(func(ctx context.Context, env *Envelope) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			envs = append(envs, env)
			return "<id>", nil
		})

		batch := newBatch()
		batch.Attachments = []domain.Attachment{{Filename: "flyer.pdf", ContentType: "application/pdf", Content: []byte("pdf")}}
		_, err := newDispatcher(transport, 1).Dispatch(context.Background(), batch)
		require.NoError(t, err)
		require.Len(t, envs, 3)

		env := envs[0]
		assert.Equal(t, Address{Name: "Repair Café Leonberg", Email: "info@repair-leonberg.de"}, env.From)
		assert.Equal(t, Address{Name: "A", Email: "a@example.com"}, env.To)
		assert.Equal(t, "vorstand@repair-leonberg.de", env.ReplyTo)
		assert.Equal(t, []string{"archiv@repair-leonberg.de"}, env.Bcc)
		assert.Equal(t, "repaircafe-mailversand", env.Headers[HeaderMailer])
		assert.Equal(t, "vorstand@repair-leonberg.de", env.Headers[HeaderReplyTo])
		assert.Equal(t, "Erika Helfer", env.Headers[HeaderMailerFrom])
		assert.Equal(t, []string{"a@example.com", "archiv@repair-leonberg.de"}, env.Recipients())
		for _, e := range envs {
			assert.Equal(t, batch.Attachments, e.Attachments)
		}
	})

	t.Run("单次发送超时记为失败", func(t *testing.T) {
		transport := TransportFunc(func(ctx context.Context, env *Envelope) (string, error) {
			if env.To.Email == "b@example.com" {
				time.Sleep(200 * time.Millisecond)
			}
			return "<ok>", nil
		})
		d := NewDispatcher(transport, Options{FromAddress: "info@repair-leonberg.de", Timeout: 20 * time.Millisecond}, nil)

		report, err := d.Dispatch(context.Background(), newBatch())
		require.NoError(t, err)

		assert.Equal(t, 2, report.Succeeded)
		assert.Contains(t, report.Outcomes[1].Error, ErrSendTimeout.Error())
		assert.True(t, report.Outcomes[2].Succeeded())
	})

	t.Run("取消后剩余收件人记为失败", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		transport := TransportFunc(func(_ context.Context, env *Envelope) (string, error) { return "<id>", nil })

		batch := newBatch()
		batch.Observer = ObserverFunc(func(index, total int, outcome domain.DeliveryOutcome) {
			if index == 0 {
				cancel()
			}
		})

		report, err := newDispatcher(transport, 1).Dispatch(ctx, batch)
		require.NoError(t, err)

		require.Len(t, report.Outcomes, 3)
		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, context.Canceled.Error(), report.Outcomes[1].Error)
		assert.Equal(t, context.Canceled.Error(), report.Outcomes[2].Error)
	})

	t.Run("观察者按结果收到通知", func(t *testing.T) {
		transport := TransportFunc(func(ctx context.Context, env *Envelope) (string, error) { return "<id>", nil })
		var seen []int
		batch := newBatch()
		batch.Observer = ObserverFunc(func(index, total int, outcome domain.DeliveryOutcome) {
			assert.Equal(t, 3, total)
			seen = append(seen, index)
		})

		_, err := newDispatcher(transport, 1).Dispatch(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, seen)
	})
}

func TestDispatcher_Validate(t *testing.T) {
	transport := new(MockTransport)
	d := newDispatcher(transport, 1)

	testCases := []struct {
		name   string
		mutate func(b *Batch)
		field  string
	}{
		{name: "发件地址无效", mutate: func(b *Batch) { b.Draft.FromEmail = "kein-mail" }, field: "fromEmail"},
		{name: "回复地址无效", mutate: func(b *Batch) { b.Draft.ReplyTo = "x@" }, field: "replyTo"},
		{name: "主题为空", mutate: func(b *Batch) { b.Draft.Subject = "   " }, field: "subject"},
		{name: "没有可发送的收件人", mutate: func(b *Batch) {
			for i := range b.Messages {
				b.Messages[i].RecipientEmail = ""
			}
		}, field: "recipients"},
		{name: "正文为空", mutate: func(b *Batch) {
			b.Messages[0].HTML = "<p><br></p>"
			b.Messages[0].Text = " "
		}, field: "body"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			batch := newBatch()
			tc.mutate(batch)

			report, err := d.Dispatch(context.Background(), batch)

			assert.Nil(t, report)
			var de *domain.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, domain.KindValidation, de.Kind)
			assert.Contains(t, de.Details, tc.field)
		})
	}

	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	t.Run("跳过没有邮箱的收件人", func(t *testing.T) {
		ok := TransportFunc(func(ctx context.Context, env *Envelope) (string, error) { return "<id>", nil })
		batch := newBatch()
		batch.Messages[1].RecipientEmail = ""

		report, err := newDispatcher(ok, 1).Dispatch(context.Background(), batch)
		require.NoError(t, err)
		assert.Len(t, report.Outcomes, 2)
	})

	t.Run("正文检查取第一个有邮箱的收件人", func(t *testing.T) {
		ok := TransportFunc(func(ctx context.Context, env *Envelope) (string, error) { return "<id>", nil })
		batch := newBatch()
		batch.Messages = append([]domain.OutboundMessage{{RecipientID: "0", RecipientEmail: "", HTML: "<p></p>"}}, batch.Messages...)

		report, err := newDispatcher(ok, 1).Dispatch(context.Background(), batch)
		require.NoError(t, err)
		require.Len(t, report.Outcomes, 3)
		assert.Equal(t, "1", report.Outcomes[0].RecipientID)
		assert.Equal(t, 3, report.Succeeded)
	})
}
