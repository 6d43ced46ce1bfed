package metrics

import (
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo 描述 serve 进程的构建版本与查询形态.
type BuildInfo struct {
	Service        string
	Version        string
	Commit         string
	CacheEnabled   bool   // 是否启用网格缓存
	GRPCEnabled    bool   // 是否开启 gRPC 健康检查
	ReloadSchedule string // 定时重建表达式，为空表示不重建
	Workers        int    // 单次批量查询的并发数
	MaxPoints      int    // 单次请求的点数上限
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// RegisterBuildInfo 注册 rectstab_build_info 及查询容量指标，重复调用只保留第一次.
func (m *Metrics) RegisterBuildInfo(info BuildInfo) {
	if m == nil || m.Build != nil {
		return
	}

	m.Build = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rectstab_build_info",
		Help: "Build version and query layout of the running rectstab process",
	}, []string{"service", "version", "commit", "go_version", "cache", "grpc", "reload_schedule"})
	m.Build.WithLabelValues(
		orUnknown(info.Service),
		orUnknown(info.Version),
		orUnknown(info.Commit),
		runtime.Version(),
		strconv.FormatBool(info.CacheEnabled),
		strconv.FormatBool(info.GRPCEnabled),
		info.ReloadSchedule,
	).Set(1)

	m.NewGauge(prometheus.GaugeOpts{
		Name: "rectstab_query_workers",
		Help: "Goroutines used to answer one batch query",
	}).Set(float64(info.Workers))
	m.NewGauge(prometheus.GaugeOpts{
		Name: "rectstab_query_max_points",
		Help: "Maximum number of points accepted in one request",
	}).Set(float64(info.MaxPoints))
}
