// Package metrics 提供 Prometheus 指标集合，覆盖 HTTP、向导会话、证明任务与目录缓存
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wyfcoding/defiwizard/pkg/logger"
)

const namespace = "defi"

// Metrics 指标集合，所有 Record 方法对 nil 接收者安全
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 向导会话
	SessionsStarted *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionOutcomes *prometheus.CounterVec
	Transitions     *prometheus.CounterVec

	// 证明任务
	AttestationsTotal   *prometheus.CounterVec
	AttestationDuration prometheus.Histogram

	// 确认提交
	SubmitsTotal *prometheus.CounterVec

	// 目录缓存命中
	CatalogCacheTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "wizard_sessions_started_total",
			Help:      "Wizard sessions started by flow",
		}, []string{"flow"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "wizard_sessions_active",
			Help:      "Wizard sessions held in memory",
		}),
		SessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "wizard_session_outcomes_total",
			Help:      "Terminal wizard session outcomes",
		}, []string{"flow", "outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "wizard_transitions_total",
			Help:      "Wizard operations by result",
		}, []string{"op", "result"}),

		AttestationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "attestations_total",
			Help:      "Completed attestation runs by status",
		}, []string{"status"}),
		AttestationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "attestation_duration_seconds",
			Help:      "Attestation run duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "submits_total",
			Help:      "Confirmed actions handed to the submit hook",
		}, []string{"result"}),

		CatalogCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "catalog_cache_requests_total",
			Help:      "Catalog cache lookups by result",
		}, []string{"result"}),
	}
}

// Register 注册所有指标，reg 为空时使用默认注册器
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsStarted,
		m.SessionsActive,
		m.SessionOutcomes,
		m.Transitions,
		m.AttestationsTotal,
		m.AttestationDuration,
		m.SubmitsTotal,
		m.CatalogCacheTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordSessionStarted 记录会话创建
func (m *Metrics) RecordSessionStarted(flow string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(flow).Inc()
}

// SetActiveSessions 更新内存中的会话数
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// RecordOutcome 记录会话终态
func (m *Metrics) RecordOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.SessionOutcomes.WithLabelValues(flow, outcome).Inc()
}

// RecordTransition 记录向导操作结果（ok / rejected）
func (m *Metrics) RecordTransition(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.Transitions.WithLabelValues(op, result).Inc()
}

// RecordAttestation 记录一次证明任务完成
func (m *Metrics) RecordAttestation(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttestationsTotal.WithLabelValues(status).Inc()
	m.AttestationDuration.Observe(d.Seconds())
}

// RecordSubmit 记录提交钩子结果
func (m *Metrics) RecordSubmit(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SubmitsTotal.WithLabelValues(result).Inc()
}

// RecordCacheLookup 记录目录缓存命中
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CatalogCacheTotal.WithLabelValues(result).Inc()
}
