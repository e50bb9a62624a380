package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MemberTokenHeader 会员 API 的备用令牌头
const MemberTokenHeader = "X-Member-API-Token"

// MemberAuth 会员区认证中间件
type MemberAuth struct {
	apiToken  string
	basicUser string
	basicPass string
	basicHash []byte
	logger    *zap.Logger
}

// NewMemberAuth 创建会员区认证中间件。
// apiToken 为空时 API 不做令牌校验；basicUser 为空时页面不做 Basic Auth。
func NewMemberAuth(apiToken, basicUser, basicPass, basicPassHash string, logger *zap.Logger) *MemberAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MemberAuth{
		apiToken:  apiToken,
		basicUser: basicUser,
		basicPass: basicPass,
		logger:    logger,
	}
	if basicPassHash != "" {
		m.basicHash = []byte(basicPassHash)
	}
	if apiToken == "" {
		logger.Warn("member API token not set, /members/api is open to everyone")
	}
	return m
}

// RequireToken 校验 "Authorization: Bearer <token>" 或 X-Member-API-Token
func (m *MemberAuth) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiToken == "" {
			c.Next()
			return
		}

		if m.tokenMatches(bearerToken(c.GetHeader("Authorization"))) || m.tokenMatches(c.GetHeader(MemberTokenHeader)) {
			c.Next()
			return
		}

		// 浏览器无法为 WebSocket 握手设置请求头，只在升级请求上接受 ?token=
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") && m.tokenMatches(c.Query("token")) {
			c.Next()
			return
		}

		m.logger.Warn("member API token rejected", zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Nicht autorisiert."})
	}
}

// RequireBasicAuth 会员页面的 HTTP Basic Auth
func (m *MemberAuth) RequireBasicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.basicUser == "" {
			c.Next()
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if ok && m.credentialsMatch(user, pass) {
			c.Next()
			return
		}

		c.Header("WWW-Authenticate", `Basic realm="Mitgliederbereich", charset="UTF-8"`)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func (m *MemberAuth) tokenMatches(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(m.apiToken)) == 1
}

func (m *MemberAuth) credentialsMatch(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.basicUser)) == 1
	if m.basicHash != nil {
		return bcrypt.CompareHashAndPassword(m.basicHash, []byte(pass)) == nil && userOK
	}
	if m.basicPass == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(m.basicPass)) == 1 && userOK
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
