package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "homework_helper"

// Metrics 业务与 HTTP 指标。nil 接收者上的方法都是空操作，测试中可以直接传 nil。
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	quotaConsumeTotal   *prometheus.CounterVec
	quotaRenewalsTotal  *prometheus.CounterVec
	aiRequestDuration   *prometheus.HistogramVec
	aiRequestsTotal     *prometheus.CounterVec
	paymentsTotal       *prometheus.CounterVec
	jobsTotal           *prometheus.CounterVec
	emailsTotal         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),

		quotaConsumeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_consume_total",
			Help:      "Question quota consumption attempts.",
		}, []string{"plan", "result"}),

		quotaRenewalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_renewals_total",
			Help:      "Quota renewals applied after the renewal window elapsed.",
		}, []string{"plan"}),

		aiRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Latency of generative AI calls.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"kind"}),

		aiRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Generative AI calls by kind and outcome.",
		}, []string{"kind", "success"}),

		paymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment lifecycle events.",
		}, []string{"method", "status"}),

		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs processed.",
		}, []string{"type", "status"}),

		emailsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Transactional emails by kind and outcome.",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) QuotaConsumed(plan, result string) {
	if m == nil {
		return
	}
	m.quotaConsumeTotal.WithLabelValues(plan, result).Inc()
}

func (m *Metrics) QuotaRenewed(plan string) {
	if m == nil {
		return
	}
	m.quotaRenewalsTotal.WithLabelValues(plan).Inc()
}

func (m *Metrics) ObserveAI(kind string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.aiRequestsTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
	m.aiRequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) PaymentEvent(method, status string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) JobProcessed(jobType, status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) EmailSent(kind, result string) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(kind, result).Inc()
}
