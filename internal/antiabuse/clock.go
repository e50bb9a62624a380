// Package antiabuse 实现公开表单的防滥用协议：签名 nonce、蜜罐、最短填写时间和滑动窗口限流。
package antiabuse

import (
	"sync"
	"time"
)

// Clock 可注入的时钟
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统时间
type SystemClock struct{}

// Now 当前时间
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock 手动推进的时钟，用于测试和命令行回放
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建手动时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now 当前时间
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 前进 d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set 设置为指定时间
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
