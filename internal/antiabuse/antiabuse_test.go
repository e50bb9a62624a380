package antiabuse

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repaircafe/backend/internal/domain"
)

var epoch = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newNonceService(t *testing.T, clock Clock) *NonceService {
	t.Helper()
	svc, err := NewNonceService("0123456789abcdef0123456789abcdef", DefaultNonceTTL, clock)
	require.NoError(t, err)
	return svc
}

func TestNonceService(t *testing.T) {
	const ua = "Mozilla/5.0 (X11; Linux x86_64)"

	t.Run("签发内容完整", func(t *testing.T) {
		svc := newNonceService(t, NewManualClock(epoch))
		issued, err := svc.Issue(ua)

		require.NoError(t, err)
		assert.True(t, issued.Success)
		assert.Len(t, issued.Nonce, 64)
		assert.Len(t, issued.Signature, 64)
		assert.Equal(t, epoch.UnixMilli(), issued.IssuedAt)
		assert.Equal(t, int64(600000), issued.TTLMs)
	})

	t.Run("有效期边界", func(t *testing.T) {
		clock := NewManualClock(epoch)
		svc := newNonceService(t, clock)
		issued, err := svc.Issue(ua)
		require.NoError(t, err)
		token := domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature}

		clock.Set(epoch.Add(DefaultNonceTTL - time.Millisecond))
		assert.NoError(t, svc.Verify(token, ua))

		clock.Set(epoch.Add(DefaultNonceTTL))
		assert.NoError(t, svc.Verify(token, ua))

		clock.Set(epoch.Add(DefaultNonceTTL + time.Millisecond))
		assert.ErrorIs(t, svc.Verify(token, ua), ErrNonceExpired)
	})

	t.Run("签发时间在未来", func(t *testing.T) {
		clock := NewManualClock(epoch)
		svc := newNonceService(t, clock)
		issued, err := svc.Issue(ua)
		require.NoError(t, err)

		clock.Set(epoch.Add(-time.Millisecond))
		err = svc.Verify(domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature}, ua)
		assert.ErrorIs(t, err, ErrNonceFuture)
	})

	t.Run("指纹不同校验失败", func(t *testing.T) {
		svc := newNonceService(t, NewManualClock(epoch))
		issued, err := svc.Issue("F1")
		require.NoError(t, err)

		err = svc.Verify(domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature}, "F2")
		assert.ErrorIs(t, err, ErrNonceSignature)
	})

	t.Run("篡改签发时间校验失败", func(t *testing.T) {
		svc := newNonceService(t, NewManualClock(epoch))
		issued, err := svc.Issue(ua)
		require.NoError(t, err)

		err = svc.Verify(domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt + 1, Signature: issued.Signature}, ua)
		assert.ErrorIs(t, err, ErrNonceSignature)
	})

	t.Run("缺少字段", func(t *testing.T) {
		svc := newNonceService(t, NewManualClock(epoch))
		assert.ErrorIs(t, svc.Verify(domain.NonceToken{Nonce: "x", IssuedAt: 1}, ua), ErrNonceMissing)
		assert.ErrorIs(t, svc.Verify(domain.NonceToken{}, ua), ErrNonceMissing)
	})

	t.Run("不同密钥互不承认", func(t *testing.T) {
		clock := NewManualClock(epoch)
		a := newNonceService(t, clock)
		b, err := NewNonceService("", 0, clock)
		require.NoError(t, err)

		issued, err := a.Issue(ua)
		require.NoError(t, err)
		err = b.Verify(domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature}, ua)
		assert.ErrorIs(t, err, ErrNonceSignature)
		assert.Equal(t, DefaultNonceTTL, b.TTL())
	})

	t.Run("有效期内可以重复校验", func(t *testing.T) {
		svc := newNonceService(t, NewManualClock(epoch))
		issued, err := svc.Issue(ua)
		require.NoError(t, err)
		token := domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature}

		assert.NoError(t, svc.Verify(token, ua))
		assert.NoError(t, svc.Verify(token, ua))
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("窗口内允许3次拒绝第4次，61秒后恢复", func(t *testing.T) {
		clock := NewManualClock(epoch)
		l := NewRateLimiter(time.Minute, 3, clock)

		for i := 0; i < 3; i++ {
			assert.True(t, l.Admit("1.2.3.4"), "第 %d 次应放行", i+1)
			clock.Advance(time.Second)
		}
		assert.False(t, l.Admit("1.2.3.4"))

		clock.Advance(61 * time.Second)
		assert.True(t, l.Admit("1.2.3.4"))
	})

	t.Run("不同标识互不影响", func(t *testing.T) {
		l := NewRateLimiter(time.Minute, 1, NewManualClock(epoch))
		assert.True(t, l.Admit("a"))
		assert.False(t, l.Admit("a"))
		assert.True(t, l.Admit("b"))
	})

	t.Run("被拒绝的请求不记录", func(t *testing.T) {
		clock := NewManualClock(epoch)
		l := NewRateLimiter(10*time.Second, 1, clock)

		assert.True(t, l.Admit("k"))
		clock.Advance(5 * time.Second)
		assert.False(t, l.Admit("k"))
		clock.Advance(5 * time.Second)
		assert.True(t, l.Admit("k"), "拒绝的请求不应延长窗口")
	})

	t.Run("恰好等于窗口长度的记录被剪除", func(t *testing.T) {
		clock := NewManualClock(epoch)
		l := NewRateLimiter(time.Minute, 1, clock)

		assert.True(t, l.Admit("k"))
		clock.Advance(time.Minute)
		assert.True(t, l.Admit("k"))
	})

	t.Run("清理过期的桶", func(t *testing.T) {
		clock := NewManualClock(epoch)
		l := NewRateLimiter(time.Minute, 3, clock)
		l.Admit("a")
		clock.Advance(30 * time.Second)
		l.Admit("b")

		clock.Advance(40 * time.Second)
		assert.Equal(t, 1, l.Sweep())
		assert.Equal(t, 1, l.Len())
	})

	t.Run("并发请求不会超过上限", func(t *testing.T) {
		l := NewRateLimiter(time.Minute, 3, NewManualClock(epoch))

		var admitted int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Admit("shared") {
					atomic.AddInt32(&admitted, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(3), admitted)
	})
}

func TestClientKey(t *testing.T) {
	testCases := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{name: "转发头第一跳", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.1", "X-Real-IP": "9.9.9.9"}, expected: "1.2.3.4"},
		{name: "真实IP", headers: map[string]string{"X-Real-IP": "9.9.9.9", "CF-Connecting-IP": "8.8.8.8"}, expected: "9.9.9.9"},
		{name: "CDN头", headers: map[string]string{"CF-Connecting-IP": "8.8.8.8"}, expected: "8.8.8.8"},
		{name: "转发头为空", headers: map[string]string{"X-Forwarded-For": " , 10.0.0.1", "CF-Connecting-IP": "8.8.8.8"}, expected: "8.8.8.8"},
		{name: "无头部", headers: map[string]string{}, expected: AnonymousKey},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tc.expected, ClientKey(h))
		})
	}
}

func TestGuard(t *testing.T) {
	const ua = "test-agent"

	setup := func(t *testing.T) (*Guard, *ManualClock, domain.Submission) {
		clock := NewManualClock(epoch)
		nonces := newNonceService(t, clock)
		issued, err := nonces.Issue(ua)
		require.NoError(t, err)

		guard := NewGuard(nonces, NewRateLimiter(time.Minute, 3, clock), clock, GuardConfig{RequireNonce: true})
		clock.Advance(5 * time.Second)

		sub := domain.Submission{
			NonceToken:  domain.NonceToken{Nonce: issued.Nonce, IssuedAt: issued.IssuedAt, Signature: issued.Signature},
			SubmittedAt: epoch.UnixMilli(),
			Fingerprint: ua,
			ClientKey:   "1.2.3.4",
		}
		return guard, clock, sub
	}

	t.Run("合法提交通过", func(t *testing.T) {
		guard, _, sub := setup(t)
		assert.NoError(t, guard.Check(sub, nil))
	})

	t.Run("蜜罐命中返回认证错误", func(t *testing.T) {
		guard, _, sub := setup(t)
		sub.Honeypot = "x"

		err := guard.Check(sub, func() error { return nil })
		assert.True(t, domain.IsKind(err, domain.KindAuthentication))
		assert.ErrorIs(t, err, ErrHoneypot)
	})

	t.Run("填写过快", func(t *testing.T) {
		guard, clock, sub := setup(t)
		sub.SubmittedAt = clock.Now().Add(-time.Second).UnixMilli()

		err := guard.Check(sub, nil)
		assert.ErrorIs(t, err, ErrTooFast)

		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, domain.MsgResubmit, de.Message)
	})

	t.Run("缺少 nonce", func(t *testing.T) {
		guard, _, sub := setup(t)
		sub.NonceToken = domain.NonceToken{}

		err := guard.Check(sub, nil)
		assert.ErrorIs(t, err, ErrNonceMissing)
	})

	t.Run("字段校验在限流之前", func(t *testing.T) {
		guard, _, sub := setup(t)
		tooShort := domain.NewTooShortError(domain.MsgNameTooShort, "name")

		for i := 0; i < 5; i++ {
			assert.Equal(t, tooShort, guard.Check(sub, func() error { return tooShort }))
		}
		assert.NoError(t, guard.Check(sub, nil), "校验失败的请求不占用限流额度")
	})

	t.Run("第4次提交被限流", func(t *testing.T) {
		guard, _, sub := setup(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, guard.Check(sub, nil))
		}
		err := guard.Check(sub, nil)
		assert.True(t, domain.IsKind(err, domain.KindRateLimit))
	})

	t.Run("未要求 nonce 时允许缺省", func(t *testing.T) {
		clock := NewManualClock(epoch)
		guard := NewGuard(newNonceService(t, clock), nil, clock, GuardConfig{})
		assert.NoError(t, guard.Check(domain.Submission{}, nil))
	})
}
