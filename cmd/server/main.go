package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repaircafe/backend/internal/antiabuse"
	"repaircafe/backend/internal/app"
	"repaircafe/backend/internal/config"
	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/health"
	"repaircafe/backend/internal/logger"
	"repaircafe/backend/internal/monitoring"
	"repaircafe/backend/internal/service"
	"repaircafe/backend/internal/smtp"
	httptransport "repaircafe/backend/internal/transport/http"
	"repaircafe/backend/internal/websocket"
)

// rateLimitSweepInterval 清理限流器空桶的间隔
const rateLimitSweepInterval = time.Minute

// main 启动 HTTP API，可选同时启动开发用 SMTP 收件槽。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting repaircafe server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("member_storage", cfg.Members.Storage),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化监控系统
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(log)

	// 初始化存储层
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize member storage", zap.Error(err))
	}
	defer stores.Close(log)
	for name, dep := range stores.Health {
		healthChecker.AddDependency(name, dep)
	}

	// 发送通道，未配置时群发和联系表单会返回明确的错误
	mail, err := app.OpenMail(cfg.Mail, log)
	if err != nil {
		log.Fatal("failed to initialize mail transport", zap.Error(err))
	}
	healthChecker.AddFlag("mail", mail.Configured())
	healthChecker.AddFlag("guestbook", stores.Guestbook != nil)

	// 防滥用
	clock := antiabuse.SystemClock{}
	nonces, err := antiabuse.NewNonceService(cfg.AntiAbuse.NonceSecret, cfg.AntiAbuse.NonceTTL, clock)
	if err != nil {
		log.Fatal("failed to initialize nonce service", zap.Error(err))
	}
	if cfg.AntiAbuse.NonceSecret == "" {
		log.Warn("nonce secret not set, using a random key (nonces do not survive restarts)")
	}
	limiter := antiabuse.NewRateLimiter(cfg.AntiAbuse.RateWindow, cfg.AntiAbuse.RateMax, clock)
	guard := antiabuse.NewGuard(nonces, limiter, clock, antiabuse.GuardConfig{
		RequireNonce: cfg.AntiAbuse.NonceRequired,
		MinElapsed:   cfg.AntiAbuse.MinElapsed,
	})

	// 初始化服务层
	memberService := service.NewMemberService(stores.Members, log.Named("members"))
	mailingService := service.NewMailingService(mail.Dispatcher, memberService, cfg.Mail.MaxAttachmentBytes, log.Named("mailing"))
	contactService := service.NewContactService(mail.Transport, guard, service.ContactOptions{
		Recipient: cfg.Contact.Recipient,
		Subject:   cfg.Contact.Subject,
		From:      cfg.Mail.From,
		FromName:  cfg.Mail.FromName,
		MailerTag: cfg.Mail.MailerTag,
		Timeout:   cfg.Mail.SendTimeout,
	}, log.Named("contact"))
	guestbookService := service.NewGuestbookService(stores.Guestbook, guard, log.Named("guestbook"))

	// 群发进度推送
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log.Named("websocket"))
	mailingService.OnProgress(wsHub.Publish)
	mailingService.OnProgress(func(_ string, _, _ int, outcome domain.DeliveryOutcome) {
		metrics.RecordDelivery(outcome)
	})
	mailingService.OnBatch(metrics.RecordBatch)

	// 开发收件槽
	var outbox *smtp.Backend
	var sinkServer *gosmtp.Server
	if cfg.Mail.SinkAddr != "" {
		outbox = smtp.NewBackend(smtp.BackendOptions{
			Capacity: 200,
			Limiter:  smtp.NewConnectionLimiter(10, 50),
			Logger:   log.Named("sink"),
		})
		sinkServer = smtp.NewServer(outbox, cfg.Mail.SinkAddr, "localhost")
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		Nonces:           nonces,
		MemberService:    memberService,
		MailingService:   mailingService,
		ContactService:   contactService,
		GuestbookService: guestbookService,
		WebSocketHub:     wsHub,
		Metrics:          metrics,
		Health:           healthChecker,
		Outbox:           outbox,
		Logger:           log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// 群发按收件人顺序发送，响应可能需要较长时间
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 收件槽 goroutine
	if sinkServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP sink", zap.String("address", cfg.Mail.SinkAddr))
			if err := sinkServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP sink error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时清理限流器 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(rateLimitSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if removed := limiter.Sweep(); removed > 0 {
					log.Debug("rate limiter swept", zap.Int("removed", removed))
				}
				metrics.UpdateRateLimitKeys(limiter.Len())
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if sinkServer != nil {
			if err := sinkServer.Close(); err != nil {
				log.Warn("SMTP sink close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}
