package metrics

import "github.com/prometheus/client_golang/prometheus"

// 查询结果分类。
const (
	OutcomeHit     = "hit"     // 命中结果缓存
	OutcomeMiss    = "miss"    // 走索引查询
	OutcomeOutside = "outside" // 点位于索引范围之外，直接返回 0
)

// IndexMetrics 矩形索引相关指标。
type IndexMetrics struct {
	BuildDuration prometheus.Histogram
	Rectangles    prometheus.Gauge
	Versions      prometheus.Gauge
	Nodes         prometheus.Gauge
	Queries       *prometheus.CounterVec // 维度: outcome
	BatchDuration prometheus.Histogram
	BatchSize     prometheus.Histogram
}

// NewIndexMetrics 在 m 上注册索引指标。
func NewIndexMetrics(m *Metrics) *IndexMetrics {
	return &IndexMetrics{
		BuildDuration: m.NewHistogram(prometheus.HistogramOpts{
			Name:    "rectstab_index_build_duration_seconds",
			Help:    "Time spent building the persistent interval tree",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		Rectangles: m.NewGauge(prometheus.GaugeOpts{
			Name: "rectstab_index_rectangles",
			Help: "Number of rectangles in the loaded index",
		}),
		Versions: m.NewGauge(prometheus.GaugeOpts{
			Name: "rectstab_index_versions",
			Help: "Number of snapshots in the version chain",
		}),
		Nodes: m.NewGauge(prometheus.GaugeOpts{
			Name: "rectstab_index_nodes",
			Help: "Number of tree nodes allocated across all snapshots",
		}),
		Queries: m.NewCounterVec(prometheus.CounterOpts{
			Name: "rectstab_queries_total",
			Help: "Point queries by outcome",
		}, []string{"outcome"}),
		BatchDuration: m.NewHistogram(prometheus.HistogramOpts{
			Name:    "rectstab_batch_duration_seconds",
			Help:    "Latency of a batch count request",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: m.NewHistogram(prometheus.HistogramOpts{
			Name:    "rectstab_batch_points",
			Help:    "Number of points per batch count request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}
