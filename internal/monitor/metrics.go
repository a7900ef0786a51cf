package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optimal-execution/internal/evaluate"
)

// Metrics 持有独立注册表上的 Prometheus 指标：
//   - optexec_episodes_total{policy}
//   - optexec_episode_reward
//   - optexec_episode_executed_ratio
//   - optexec_outperformance_ratio{policy}
//   - optexec_snapshots_captured_total{symbol}
//   - optexec_errors_total{source}
type Metrics struct {
	registry *prometheus.Registry

	episodes       *prometheus.CounterVec
	reward         prometheus.Histogram
	executed       prometheus.Histogram
	outperformance *prometheus.GaugeVec
	captured       *prometheus.CounterVec
	errors         *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		episodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optexec_episodes_total",
				Help: "Completed simulation episodes",
			},
			[]string{"policy"},
		),
		reward: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "optexec_episode_reward",
				Help:    "Accumulated reward per episode",
				Buckets: []float64{-100, -10, -3, -2, -1, 0, 1, 2},
			},
		),
		executed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "optexec_episode_executed_ratio",
				Help:    "Share of the target quantity the alternative path executed",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		outperformance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optexec_outperformance_ratio",
				Help: "Share of episodes where the alternative VWAP beat the benchmark",
			},
			[]string{"policy"},
		),
		captured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optexec_snapshots_captured_total",
				Help: "Order book snapshots captured from the exchange",
			},
			[]string{"symbol"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optexec_errors_total",
				Help: "Errors by source",
			},
			[]string{"source"},
		),
	}
	m.registry.MustRegister(m.episodes, m.reward, m.executed, m.outperformance, m.captured, m.errors)
	return m
}

// ObserveEpisode 更新回合相关指标。
func (m *Metrics) ObserveEpisode(res evaluate.EpisodeResult) {
	m.episodes.WithLabelValues(res.Policy).Inc()
	m.reward.Observe(res.Reward)
	m.executed.Observe(res.ExecutedRatio)
}

// ObserveSummary 更新评估汇总指标。
func (m *Metrics) ObserveSummary(policy string, s evaluate.Summary) {
	m.outperformance.WithLabelValues(policy).Set(s.Outperformance)
}

// ObserveCapture 累计采集的快照数。
func (m *Metrics) ObserveCapture(symbol string) {
	m.captured.WithLabelValues(symbol).Inc()
}

// ObserveError 累计错误数。
func (m *Metrics) ObserveError(source string) {
	m.errors.WithLabelValues(source).Inc()
}

// Registry 返回指标注册表。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus 文本格式的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
