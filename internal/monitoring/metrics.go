package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repaircafe/backend/internal/domain"
)

// Metrics 监控指标，每个实例使用独立的注册表
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 群发指标
	BatchesTotal     prometheus.Counter
	BatchSize        prometheus.Histogram
	DeliveriesTotal  *prometheus.CounterVec
	AttachmentsBytes prometheus.Histogram

	// 公开表单指标
	SubmissionsTotal *prometheus.CounterVec
	NoncesIssued     prometheus.Counter
	RateLimitKeys    prometheus.Gauge

	// 错误指标
	PanicsTotal prometheus.Counter

	// 系统指标
	SystemUptime prometheus.Gauge
	startedAt    time.Time
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repaircafe_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repaircafe_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "repaircafe_mail_batches_total",
				Help: "Total number of dispatched mail batches",
			},
		),

		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "repaircafe_mail_batch_size",
				Help:    "Number of recipients per batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repaircafe_mail_deliveries_total",
				Help: "Per-recipient delivery outcomes",
			},
			[]string{"result"},
		),

		AttachmentsBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "repaircafe_mail_attachment_bytes",
				Help:    "Total attachment size per batch in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repaircafe_submissions_total",
				Help: "Public form submissions by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		NoncesIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "repaircafe_nonces_issued_total",
				Help: "Total number of issued form nonces",
			},
		),

		RateLimitKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repaircafe_rate_limit_keys",
				Help: "Number of client keys currently tracked by the rate limiters",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "repaircafe_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repaircafe_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
		startedAt: time.Now(),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBatch 记录一次群发
func (m *Metrics) RecordBatch(recipients int, attachmentBytes int64) {
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(recipients))
	if attachmentBytes > 0 {
		m.AttachmentsBytes.Observe(float64(attachmentBytes))
	}
}

// RecordDelivery 记录单个收件人的结果
func (m *Metrics) RecordDelivery(outcome domain.DeliveryOutcome) {
	result := "success"
	if !outcome.Succeeded() {
		result = "failure"
	}
	m.DeliveriesTotal.WithLabelValues(result).Inc()
}

// RecordSubmission 记录公开表单的处理结果，err 为空表示已接受
func (m *Metrics) RecordSubmission(endpoint string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	m.SubmissionsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordNonceIssued 记录签发的 nonce
func (m *Metrics) RecordNonceIssued() {
	m.NoncesIssued.Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// UpdateRateLimitKeys 更新限流器跟踪的客户端数量
func (m *Metrics) UpdateRateLimitKeys(count int) {
	m.RateLimitKeys.Set(float64(count))
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.SystemUptime.Set(time.Since(m.startedAt).Seconds())
		h.ServeHTTP(w, r)
	})
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
