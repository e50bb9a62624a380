// Package httptransport 提供 gin 路由和各接口处理器。
package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repaircafe/backend/internal/antiabuse"
	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/health"
	"repaircafe/backend/internal/middleware"
	"repaircafe/backend/internal/monitoring"
	"repaircafe/backend/internal/service"
	"repaircafe/backend/internal/smtp"
	"repaircafe/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	Nonces           *antiabuse.NonceService
	MemberService    *service.MemberService
	MailingService   *service.MailingService
	ContactService   *service.ContactService
	GuestbookService *service.GuestbookService
	WebSocketHub     *websocket.Hub // 群发进度推送，可为空
	Metrics          *monitoring.Metrics
	Health           *health.HealthChecker
	Outbox           *smtp.Backend // 开发收件槽，可为空
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	if deps.Metrics != nil {
		monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(monitor.PanicRecovery())
		router.Use(monitor.HTTPMetrics())
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.MemberTokenHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"X-Max-Body-Size",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	errs := errorWriter{debug: cfg.DebugErrors, logger: log}
	contactErrs := errorWriter{debug: cfg.DebugErrors || cfg.Contact.Debug, logger: log}

	publicHandler := NewPublicHandler(deps.Nonces, deps.ContactService, deps.GuestbookService, deps.Metrics, errs, contactErrs)
	memberHandler := NewMemberHandler(deps.MemberService, deps.MailingService, errs)
	memberAuth := middleware.NewMemberAuth(
		cfg.Members.APIToken,
		cfg.Members.BasicUser,
		cfg.Members.BasicPass,
		cfg.Members.BasicPassHash,
		log,
	)

	// ========== 运维 ==========
	router.GET("/health", func(c *gin.Context) {
		summary := gin.H{"status": "ok"}
		if deps.Health != nil {
			summary["checks"] = deps.Health.CheckHealth()
		}
		c.JSON(http.StatusOK, summary)
	})
	if deps.Health != nil {
		probes := gin.WrapH(http.StripPrefix("/health", deps.Health.Handler()))
		router.GET("/health/live", probes)
		router.GET("/health/ready", probes)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== 公开表单 ==========
	api := router.Group("/api")
	api.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
	{
		api.GET("/nonce", publicHandler.IssueNonce)
		api.POST("/contact", publicHandler.SubmitContact)
		api.OPTIONS("/contact", publicHandler.Options)
		api.GET("/guestbook", publicHandler.ListGuestbook)
		api.POST("/guestbook", publicHandler.SubmitGuestbook)
		api.OPTIONS("/guestbook", publicHandler.Options)
	}

	// ========== 会员区 ==========
	router.GET("/members", memberAuth.RequireBasicAuth(), memberHandler.Area)

	members := router.Group("/members/api")
	members.Use(memberAuth.RequireToken())
	{
		contacts := members.Group("/contacts")
		contacts.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
		contacts.GET("", memberHandler.ListMembers)
		contacts.POST("", memberHandler.CreateMember)
		contacts.PUT("", memberHandler.ReplaceMember)
		contacts.DELETE("", memberHandler.DeleteMember)

		sendLimit := middleware.BodySizeLimit(middleware.SendBodyLimit(cfg.Mail.MaxAttachmentBytes))
		members.POST("/send", sendLimit, memberHandler.Send)
		members.POST("/send/preview", sendLimit, memberHandler.Preview)

		if deps.WebSocketHub != nil {
			members.GET("/send/progress", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	// ========== 开发收件槽 ==========
	if deps.Outbox != nil {
		router.GET("/dev/outbox", memberAuth.RequireToken(), func(c *gin.Context) {
			Success(c, deps.Outbox.Messages())
		})
		router.DELETE("/dev/outbox", memberAuth.RequireToken(), func(c *gin.Context) {
			deps.Outbox.Reset()
			NoContent(c)
		})
	}

	return router
}
