package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 地址指标
	AddressesCreated prometheus.Counter
	AddressesReused  prometheus.Counter
	AddressesExpired prometheus.Counter

	// 入站邮件指标
	MessagesIngested  *prometheus.CounterVec // 按来源: relay / smtp
	MessagesRejected  *prometheus.CounterVec // 按原因: signature / no_recipient / unknown_address
	ParseFallbacks    prometheus.Counter
	AttachmentsStored prometheus.Counter
	AttachmentSize    prometheus.Histogram

	// 错误指标
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsink_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailsink_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		AddressesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_addresses_created_total",
				Help: "Total number of addresses created",
			},
		),

		AddressesReused: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_addresses_reused_total",
				Help: "Total number of create requests resolved to an existing address",
			},
		),

		AddressesExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_addresses_expired_total",
				Help: "Total number of addresses removed by the expiry sweeper",
			},
		),

		MessagesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsink_messages_ingested_total",
				Help: "Total number of messages stored",
			},
			[]string{"source"},
		),

		MessagesRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsink_messages_rejected_total",
				Help: "Total number of inbound messages rejected",
			},
			[]string{"reason"},
		),

		ParseFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_parse_fallbacks_total",
				Help: "Total number of MIME payloads parsed via the plain-text fallback",
			},
		),

		AttachmentsStored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_attachments_stored_total",
				Help: "Total number of attachments stored",
			},
		),

		AttachmentSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailsink_attachment_size_bytes",
				Help:    "Attachment size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 16),
			},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailsink_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailsink_rate_limit_blocks_total",
				Help: "Total number of requests blocked by rate limiting",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordIngested 记录一封入库邮件及其附件
func (m *Metrics) RecordIngested(source string, attachmentSizes []int64) {
	m.MessagesIngested.WithLabelValues(source).Inc()
	for _, size := range attachmentSizes {
		m.AttachmentsStored.Inc()
		m.AttachmentSize.Observe(float64(size))
	}
}

// RecordRejected 记录一封被拒绝的入站邮件
func (m *Metrics) RecordRejected(reason string) {
	m.MessagesRejected.WithLabelValues(reason).Inc()
}

// RecordParseFallback 记录一次退化为纯文本的 MIME 解析
func (m *Metrics) RecordParseFallback() {
	m.ParseFallbacks.Inc()
}

// RecordAddressCreated 记录一次新地址创建
func (m *Metrics) RecordAddressCreated() {
	m.AddressesCreated.Inc()
}

// RecordAddressReused 记录一次解析到既有地址的创建请求
func (m *Metrics) RecordAddressReused() {
	m.AddressesReused.Inc()
}

// Handler 返回 Prometheus 指标暴露端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
