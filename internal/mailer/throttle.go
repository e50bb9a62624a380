package mailer

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"repaircafe/backend/internal/delivery"
)

// Throttled 限制对中继的调用速率
type Throttled struct {
	next    delivery.Transport
	limiter *rate.Limiter
}

// NewThrottled perSecond <= 0 时不限速
func NewThrottled(next delivery.Transport, perSecond float64) delivery.Transport {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send 等待令牌后发送，等待受 ctx 约束
func (t *Throttled) Send(ctx context.Context, env *delivery.Envelope) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("throttle: %w", err)
	}
	return t.next.Send(ctx, env)
}
