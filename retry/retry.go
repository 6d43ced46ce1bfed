// Package retry 提供指数退避重试.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config 重试策略.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64 // 相对抖动幅度，0.1 表示 ±10%
	MaxRetries     int     // 首次执行之外的最大重试次数
}

// DefaultConfig 返回默认重试配置.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// next 计算下一次等待时间.
func (c Config) next(backoff time.Duration) time.Duration {
	n := float64(backoff) * c.Multiplier
	if c.Jitter > 0 {
		n += (rand.Float64()*2 - 1) * c.Jitter * n
	}
	return min(time.Duration(n), c.MaxBackoff)
}

// Do 执行 fn，仅当 retryable(err) 为 true 时重试.
// retryable 为 nil 时所有错误都重试。
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error, retryable func(error) bool) error {
	var err error
	backoff := cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || (retryable != nil && !retryable(err)) {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		backoff = cfg.next(backoff)
	}
	return err
}
