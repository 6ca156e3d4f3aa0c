// Package metrics 分析流水线的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resume_match"

// 状态标签取值
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics 流水线指标，nil 值可安全调用，所有方法都是空操作
type Metrics struct {
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.SummaryVec
	degradedTotal    prometheus.Counter
	fetchTotal       *prometheus.CounterVec
	matchScore       prometheus.Histogram
}

// New 在 reg 上注册指标，reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Total number of analysis operations",
			},
			[]string{"operation", "status"},
		),
		analysisDuration: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis duration in seconds",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.99: 0.001,
				},
			},
			[]string{"operation"},
		),
		degradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_extractions_total",
			Help:      "Resume extractions that ran without entity recognition",
		}),
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_fetches_total",
				Help:      "Total number of job page fetches",
			},
			[]string{"status"},
		),
		matchScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Distribution of match scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// ObserveAnalysis 记录一次分析操作
func (m *Metrics) ObserveAnalysis(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(operation, statusOf(err)).Inc()
	m.analysisDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncDegraded 记录一次降级提取
func (m *Metrics) IncDegraded() {
	if m == nil {
		return
	}
	m.degradedTotal.Inc()
}

// ObserveFetch 记录一次页面抓取
func (m *Metrics) ObserveFetch(err error) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(statusOf(err)).Inc()
}

// ObserveMatchScore 记录匹配分数
func (m *Metrics) ObserveMatchScore(score int) {
	if m == nil {
		return
	}
	m.matchScore.Observe(float64(score))
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
