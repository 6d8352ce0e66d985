// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 explorer.Metrics
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 探索步骤指标
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	loopGuardsTotal *prometheus.CounterVec

	// 视觉决策指标
	visionDecisionsTotal *prometheus.CounterVec
	visionAttempts       prometheus.Histogram

	// 覆盖度指标
	visitedNodes   prometheus.Gauge
	frontierSize   prometheus.Gauge
	coveredCells   prometheus.Gauge
	distanceMeters prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 探索步骤指标
	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of exploration steps",
		},
		[]string{"mode", "status"}, // status: ok, failed
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Exploration step duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	c.loopGuardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_guards_total",
			Help:      "Total number of loop guard trips",
		},
		[]string{"kind"},
	)

	// 视觉决策指标
	c.visionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_decisions_total",
			Help:      "Total number of vision decisions",
		},
		[]string{"fallback_cause"},
	)

	c.visionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vision_attempts",
			Help:      "Provider attempts per vision decision",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	// 覆盖度指标
	c.visitedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coverage_visited_nodes",
		Help:      "Number of visited nodes",
	})
	c.frontierSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coverage_frontier_nodes",
		Help:      "Number of known but unvisited nodes",
	})
	c.coveredCells = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coverage_cells",
		Help:      "Number of distinct spatial cells visited",
	})
	c.distanceMeters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coverage_distance_meters",
		Help:      "Accumulated travel distance in meters",
	})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🧭 探索指标记录
// =============================================================================

// RecordStep 记录一次探索步骤
func (c *Collector) RecordStep(mode, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(mode, status).Inc()
	c.stepDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordLoopGuard 记录循环防护触发
func (c *Collector) RecordLoopGuard(kind string) {
	c.loopGuardsTotal.WithLabelValues(kind).Inc()
}

// RecordVisionDecision 记录视觉决策，fallbackCause 为空表示模型正常作答
func (c *Collector) RecordVisionDecision(fallbackCause string, attempts int) {
	if fallbackCause == "" {
		fallbackCause = "none"
	}
	c.visionDecisionsTotal.WithLabelValues(fallbackCause).Inc()
	c.visionAttempts.Observe(float64(attempts))
}

// SetCoverage 更新覆盖度快照
func (c *Collector) SetCoverage(visited, frontier, cells int, distanceMeters float64) {
	c.visitedNodes.Set(float64(visited))
	c.frontierSize.Set(float64(frontier))
	c.coveredCells.Set(float64(cells))
	c.distanceMeters.Set(distanceMeters)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
