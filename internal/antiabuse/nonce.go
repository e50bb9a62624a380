package antiabuse

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"repaircafe/backend/internal/domain"
)

// DefaultNonceTTL nonce 有效期
const DefaultNonceTTL = 10 * time.Minute

const nonceBytes = 32

var (
	ErrNonceMissing   = errors.New("nonce fields missing")
	ErrNonceSignature = errors.New("nonce signature mismatch")
	ErrNonceExpired   = errors.New("nonce expired")
	ErrNonceFuture    = errors.New("nonce issued in the future")
)

// IssuedNonce 签发给客户端的 nonce
type IssuedNonce struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"issuedAt"`
	Signature string `json:"signature"`
	TTLMs     int64  `json:"ttlMs"`
}

// NonceService 无状态的 nonce 签发与校验。
// 有效性完全由签名重建，服务端不保存已签发或已使用的 nonce，
// 因此同一 nonce 在有效期内可以被重复提交。
type NonceService struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewNonceService 创建 nonce 服务，secret 为空时随机生成（重启后旧 nonce 失效）
func NewNonceService(secret string, ttl time.Duration, clock Clock) (*NonceService, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, nonceBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate nonce secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &NonceService{secret: key, ttl: ttl, clock: clock}, nil
}

// TTL 有效期
func (s *NonceService) TTL() time.Duration {
	return s.ttl
}

// Issue 为指定的客户端指纹签发 nonce
func (s *NonceService) Issue(fingerprint string) (*IssuedNonce, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	nonce := hex.EncodeToString(buf)
	issuedAt := s.clock.Now().UnixMilli()

	return &IssuedNonce{
		Success:   true,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		Signature: s.sign(nonce, issuedAt, fingerprint),
		TTLMs:     s.ttl.Milliseconds(),
	}, nil
}

// Verify 使用校验请求自身的指纹重算签名并检查时间窗口
func (s *NonceService) Verify(token domain.NonceToken, fingerprint string) error {
	if !token.Complete() {
		return ErrNonceMissing
	}

	expected := s.sign(token.Nonce, token.IssuedAt, fingerprint)
	if !hmac.Equal([]byte(expected), []byte(token.Signature)) {
		return ErrNonceSignature
	}

	age := s.clock.Now().UnixMilli() - token.IssuedAt
	if age < 0 {
		return ErrNonceFuture
	}
	if age > s.ttl.Milliseconds() {
		return ErrNonceExpired
	}
	return nil
}

func (s *NonceService) sign(nonce string, issuedAt int64, fingerprint string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(nonce + "|" + strconv.FormatInt(issuedAt, 10) + "|" + fingerprint))
	return hex.EncodeToString(mac.Sum(nil))
}
