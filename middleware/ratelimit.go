package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/rectstab/limiter"
	"github.com/wyfcoding/rectstab/response"
)

// RateLimitMiddleware 构造一个通用的 Gin 限流中间件，使用客户端 IP 作为限流标识。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			// Fail-Open：限流组件故障时不阻断请求。
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewLocalRateLimitMiddleware 创建按客户端 IP 隔离的本地令牌桶限流中间件。
// limit: 每秒允许的请求数，<=0 时返回直通中间件。idle: 客户端空闲多久后释放其令牌桶。
func NewLocalRateLimitMiddleware(limit float64, burst int, idle time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return RateLimitMiddleware(limiter.NewKeyedLimiter(rate.Limit(limit), burst, idle))
}
