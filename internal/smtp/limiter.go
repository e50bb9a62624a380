package smtp

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

var (
	// ErrTooManyConnections 并发连接已满
	ErrTooManyConnections = errors.New("too many concurrent connections")
	// ErrConnectionRate 新建连接过快
	ErrConnectionRate = errors.New("connection rate exceeded")
)

// ConnectionLimiter 收件槽的连接准入：并发上限加每秒新建连接数
type ConnectionLimiter struct {
	mu      sync.Mutex
	open    int
	maxOpen int
	arrival *rate.Limiter
}

// NewConnectionLimiter maxOpen 为同时打开的会话数，perSecond 为每秒允许的新会话数
func NewConnectionLimiter(maxOpen, perSecond int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxOpen: maxOpen,
		arrival: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Acquire 为新会话占用一个名额，失败时返回原因
func (l *ConnectionLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open >= l.maxOpen {
		return ErrTooManyConnections
	}
	if !l.arrival.Allow() {
		return ErrConnectionRate
	}
	l.open++
	return nil
}

// Release 会话结束时归还名额
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	if l.open > 0 {
		l.open--
	}
	l.mu.Unlock()
}

// Current 当前打开的会话数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}
