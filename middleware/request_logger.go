package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/rectstab/contextx"
)

// Logger 访问日志中间件
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		ctx := c.Request.Context()
		args := append(contextx.LogAttrs(ctx),
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"cost", time.Since(start),
			"user_agent", c.Request.UserAgent(),
		)
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		// trace_id 由 logging.TraceHandler 注入。
		logger.InfoContext(ctx, "HTTP Request", args...)
	}
}
