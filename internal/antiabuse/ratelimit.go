package antiabuse

import (
	"sync"
	"time"
)

// 默认窗口与上限
const (
	DefaultRateWindow = time.Minute
	DefaultRateMax    = 3
)

// RateLimiter 按客户端标识的滑动窗口限流器，状态只在本进程内
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	window  time.Duration
	max     int
	clock   Clock
}

// NewRateLimiter 创建限流器
//
// 参数:
//   - window: 滑动窗口长度
//   - max: 窗口内允许的最大请求数
//   - clock: 时钟，为空时使用系统时间
func NewRateLimiter(window time.Duration, max int, clock Clock) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMax
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &RateLimiter{
		buckets: make(map[string][]time.Time),
		window:  window,
		max:     max,
		clock:   clock,
	}
}

// Admit 剪除窗口外的记录后，未达到上限则记录本次请求并放行；被拒绝的请求不记录
func (l *RateLimiter) Admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	fresh := l.prune(l.buckets[key], now)

	if len(fresh) >= l.max {
		l.buckets[key] = fresh
		return false
	}

	l.buckets[key] = append(fresh, now)
	return true
}

// Sweep 删除已经没有有效记录的桶，返回删除数量
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, entries := range l.buckets {
		fresh := l.prune(entries, now)
		if len(fresh) == 0 {
			delete(l.buckets, key)
			removed++
			continue
		}
		l.buckets[key] = fresh
	}
	return removed
}

// Len 当前桶数量
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// prune 时间戳有序，从头部丢弃 now-ts >= window 的记录
func (l *RateLimiter) prune(entries []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(entries) && now.Sub(entries[i]) >= l.window {
		i++
	}
	return entries[i:]
}
