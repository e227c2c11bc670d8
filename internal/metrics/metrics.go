// Package metrics Prometheus 指标导出
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含监控器全部指标
type Metrics struct {
	// 事件流指标
	EventsReceived  *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	StreamConnected prometheus.Gauge
	ReconnectsTotal prometheus.Counter
	ReadLatency     prometheus.Histogram

	// 熔断器指标
	BreakerOpenTotal     *prometheus.CounterVec
	BreakerRejectedTotal *prometheus.CounterVec

	// 派生层指标
	SnapshotRecomputes prometheus.Counter
	PhaseReversals     prometheus.Gauge
}

// New 创建指标实例
//
// registerer 为 nil 时使用默认注册表。测试中传入独立的
// prometheus.NewRegistry() 避免重复注册冲突。
func New(namespace, runID string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	labels := prometheus.Labels{"run_id": runID}

	return &Metrics{
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "events_received_total",
				Help:        "Total workflow events received from the stream",
				ConstLabels: labels,
			},
			[]string{"phase"},
		),
		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "events_dropped_total",
				Help:        "Total messages dropped as undecodable",
				ConstLabels: labels,
			},
		),
		StreamConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "stream_connected",
				Help:        "Whether the event stream is currently connected (0/1)",
				ConstLabels: labels,
			},
		),
		ReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "stream_reconnects_total",
				Help:        "Total reconnect attempts",
				ConstLabels: labels,
			},
		),
		ReadLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "event_handle_seconds",
				Help:        "Latency of handling one received event",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
		),
		BreakerOpenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "breaker_open_total",
				Help:        "Total circuit breaker open transitions",
				ConstLabels: labels,
			},
			[]string{"breaker"},
		),
		BreakerRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "breaker_rejected_total",
				Help:        "Total calls rejected while the breaker was open",
				ConstLabels: labels,
			},
			[]string{"breaker"},
		),
		SnapshotRecomputes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "snapshot_recomputes_total",
				Help:        "Total progress snapshot recomputations",
				ConstLabels: labels,
			},
		),
		PhaseReversals: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "phase_reversals",
				Help:        "Completed/failed phase reversals observed in the current snapshot",
				ConstLabels: labels,
			},
		),
	}
}

// Handler 返回 Prometheus 抓取端点的 HTTP 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
