// Package api 注册矩形计数服务的 HTTP 路由.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/logging"
	"github.com/wyfcoding/rectstab/metrics"
	"github.com/wyfcoding/rectstab/middleware"
	"github.com/wyfcoding/rectstab/server"
	"github.com/wyfcoding/rectstab/service"
)

// NewRouter 组装中间件与路由.
// 中间件顺序：Recovery → RequestID → Tracing → Metrics → Logger → RateLimit → MaxBody → Timeout。
func NewRouter(cfg *config.Config, svc *service.Stabbing, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	engine := server.NewDefaultGinEngine(
		middleware.Recovery(logger.Logger),
		middleware.RequestID(),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.HTTPMetricsMiddlewareWithOptions(m, middleware.MetricsOptions{
			SkipPaths: []string{metricsPath, "/healthz"},
		}),
		middleware.Logger(logger.Logger),
		middleware.NewLocalRateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst, cfg.Server.RateLimitIdle),
		middleware.MaxBodyBytes(cfg.Server.MaxBodyBytes),
		middleware.TimeoutMiddleware(cfg.Server.RequestTimeout),
	)

	h := &Handler{svc: svc}
	v1 := engine.Group("/v1")
	v1.POST("/count", h.CountBatch)
	v1.GET("/count", h.CountPoint)
	v1.GET("/index", h.IndexStats)

	engine.GET("/healthz", h.Health)
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		engine.GET(metricsPath, gin.WrapH(m.Handler()))
	}
	return engine
}
