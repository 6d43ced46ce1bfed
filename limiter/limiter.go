// Package limiter 提供基于令牌桶的本地限流器。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL 未指定时 key 的空闲淘汰时间。
const DefaultIdleTTL = 10 * time.Minute

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter 为每个 key (通常是客户端 IP) 维护独立的令牌桶。
// 超过 idleTTL 未访问的 key 会在下一轮清扫时被移除，清扫每 idleTTL 最多执行一次。
type KeyedLimiter struct {
	mu        sync.Mutex
	r         rate.Limit
	b         int
	idleTTL   time.Duration
	now       func() time.Time
	nextSweep time.Time
	entries   map[string]*keyedEntry
}

// NewKeyedLimiter 创建按 key 隔离的限流器，idleTTL<=0 时使用 DefaultIdleTTL。
func NewKeyedLimiter(r rate.Limit, b int, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &KeyedLimiter{
		r:       r,
		b:       b,
		idleTTL: idleTTL,
		now:     time.Now,
		entries: make(map[string]*keyedEntry),
	}
}

// Allow 检查 key 对应的令牌桶。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.idleTTL)
	}

	e, ok := l.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// sweep 移除空闲超过 idleTTL 的 key，调用方持有锁。
func (l *KeyedLimiter) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.entries, key)
		}
	}
}

// Len 返回当前跟踪的 key 数量。
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
