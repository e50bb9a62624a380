package health

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"repaircafe/backend/internal/storage"
)

// checkTimeout 单个依赖检查的超时
const checkTimeout = 3 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger

	mu     sync.RWMutex
	checks map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
		checks: make(map[string]healthcheck.Check),
	}

	// 协程泄漏检查
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	return hc
}

// AddDependency 注册一个就绪检查，依赖不可用时 /ready 返回 503
func (hc *HealthChecker) AddDependency(name string, dep storage.HealthChecker) {
	if dep == nil {
		return
	}
	check := healthcheck.Timeout(func() error { return dep.Health() }, checkTimeout)

	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()

	hc.health.AddReadinessCheck(name, check)
}

// AddFlag 注册一个只报告状态的功能开关（例如邮件通道是否配置）
func (hc *HealthChecker) AddFlag(name string, enabled bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = func() error {
		if !enabled {
			return fmt.Errorf("%s not configured", name)
		}
		return nil
	}
}

// Handler 返回 /live 和 /ready 处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行全部检查并返回汇总
func (hc *HealthChecker) CheckHealth() map[string]string {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		hc.mu.RLock()
		check := hc.checks[name]
		hc.mu.RUnlock()

		if err := check(); err != nil {
			results[name] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Debug("health check failed", zap.String("check", name), zap.Error(err))
		} else {
			results[name] = "OK"
		}
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
