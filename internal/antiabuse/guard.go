package antiabuse

import (
	"errors"
	"strings"
	"time"

	"repaircafe/backend/internal/domain"
)

// DefaultMinElapsed 表单加载到提交的最短时间
const DefaultMinElapsed = 1200 * time.Millisecond

// ErrHoneypot 蜜罐字段被填写
var (
	ErrHoneypot = errors.New("honeypot field filled")
	ErrTooFast  = errors.New("form submitted too fast")
)

// GuardConfig 守卫配置
type GuardConfig struct {
	RequireNonce bool
	MinElapsed   time.Duration
	// RejectMessage 蜜罐命中时返回给客户端的模糊提示
	RejectMessage string
}

// Guard 按固定顺序执行公开表单的检查：
// nonce、蜜罐、最短填写时间、字段校验、限流
type Guard struct {
	nonces  *NonceService
	limiter *RateLimiter
	clock   Clock
	cfg     GuardConfig
}

// NewGuard 创建守卫，nonces 为空时跳过 nonce 检查
func NewGuard(nonces *NonceService, limiter *RateLimiter, clock Clock, cfg GuardConfig) *Guard {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.MinElapsed <= 0 {
		cfg.MinElapsed = DefaultMinElapsed
	}
	if cfg.RejectMessage == "" {
		cfg.RejectMessage = domain.MsgSubmissionRejected
	}
	return &Guard{nonces: nonces, limiter: limiter, clock: clock, cfg: cfg}
}

// Check 执行全部检查，validate 在时间检查之后、限流之前调用
func (g *Guard) Check(sub domain.Submission, validate func() error) error {
	if err := g.Screen(sub); err != nil {
		return err
	}
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}
	return g.Admit(sub.ClientKey)
}

// Screen 执行 nonce、蜜罐和时间检查
func (g *Guard) Screen(sub domain.Submission) error {
	if g.nonces != nil && (g.cfg.RequireNonce || sub.Nonce != "") {
		if err := g.nonces.Verify(sub.NonceToken, sub.Fingerprint); err != nil {
			return domain.NewAuthenticationError(domain.MsgNonceInvalid, err)
		}
	}

	if strings.TrimSpace(sub.Honeypot) != "" {
		return domain.NewAuthenticationError(g.cfg.RejectMessage, ErrHoneypot)
	}

	// 未携带 submittedAt 时不做时间检查
	if sub.SubmittedAt > 0 {
		elapsed := g.clock.Now().UnixMilli() - sub.SubmittedAt
		if elapsed < g.cfg.MinElapsed.Milliseconds() {
			return domain.NewAuthenticationError(domain.MsgResubmit, ErrTooFast)
		}
	}
	return nil
}

// Admit 限流检查
func (g *Guard) Admit(clientKey string) error {
	if g.limiter == nil {
		return nil
	}
	if clientKey == "" {
		clientKey = AnonymousKey
	}
	if !g.limiter.Admit(clientKey) {
		return domain.NewRateLimitError()
	}
	return nil
}

// Limiter 返回守卫使用的限流器
func (g *Guard) Limiter() *RateLimiter {
	return g.limiter
}
