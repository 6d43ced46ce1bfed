// Package service 在 HTTP / CLI 与矩形索引之间提供带缓存、指标与追踪的查询服务.
package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/cache"
	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/dataset"
	"github.com/wyfcoding/rectstab/logging"
	"github.com/wyfcoding/rectstab/metrics"
	"github.com/wyfcoding/rectstab/tracing"
	"github.com/wyfcoding/rectstab/xerrors"
)

// cancelCheckEvery 缓存路径下每处理多少个点检查一次 ctx.
const cancelCheckEvery = 256

// snapshot 一次构建出的索引及其代数，整体原子替换.
// 缓存键携带代数，查询始终使用同一快照的索引与代数。
type snapshot struct {
	ix         *algorithm.RectIndex
	generation uint64
}

// Stabbing 持有当前生效的矩形索引.
// 索引构建后不可变，重新加载时整体替换指针，查询无需加锁。
type Stabbing struct {
	current atomic.Pointer[snapshot]

	publishMu   sync.Mutex // 保证代数分配与指针替换顺序一致
	generations uint64

	cache     *cache.CellCache // nil 表示关闭缓存
	metrics   *metrics.IndexMetrics
	logger    *logging.Logger
	workers   int
	maxPoints int

	mu        sync.Mutex
	observers []func(ready bool)
}

// NewStabbing 创建服务，c 可以为 nil.
func NewStabbing(cfg config.QueryConfig, m *metrics.IndexMetrics, c *cache.CellCache, logger *logging.Logger) *Stabbing {
	return &Stabbing{
		cache:     c,
		metrics:   m,
		logger:    logger,
		workers:   cfg.Workers,
		maxPoints: cfg.MaxPoints,
	}
}

// OnReady 注册就绪状态观察者，每次加载成功后以 true 调用.
func (s *Stabbing) OnReady(fn func(ready bool)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
	fn(s.Ready())
}

func (s *Stabbing) notify(ready bool) {
	s.mu.Lock()
	observers := append([]func(bool){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(ready)
	}
}

// Load 用 rects 构建新索引并原子替换旧索引.
// 构建失败时旧索引保持不变。
func (s *Stabbing) Load(ctx context.Context, rects []algorithm.Rectangle) error {
	ctx, span := tracing.StartIndexBuild(ctx, len(rects))

	start := time.Now()
	ix, err := algorithm.NewRectIndex(rects)
	if err != nil {
		tracing.EndIndexBuild(span, 0, algorithm.IndexStats{}, err)
		s.logger.ErrorContext(ctx, "index build failed", "rectangles", len(rects), "error", err)
		return err
	}
	elapsed := time.Since(start)

	s.publishMu.Lock()
	s.generations++
	generation := s.generations
	s.current.Store(&snapshot{ix: ix, generation: generation})
	s.publishMu.Unlock()
	if s.cache != nil {
		// 旧代数的条目已不可达，清空只为回收内存。
		if err := s.cache.Reset(); err != nil {
			s.logger.WarnContext(ctx, "cache reset failed", "error", err)
		}
	}

	stats := ix.Stats()
	tracing.EndIndexBuild(span, generation, stats, nil)
	s.metrics.BuildDuration.Observe(elapsed.Seconds())
	s.metrics.Rectangles.Set(float64(stats.Rectangles))
	s.metrics.Versions.Set(float64(stats.Versions))
	s.metrics.Nodes.Set(float64(stats.Nodes))

	s.logger.InfoContext(ctx, "index loaded",
		"generation", generation,
		"rectangles", stats.Rectangles,
		"versions", stats.Versions,
		"nodes", stats.Nodes,
		"leaves", stats.Leaves,
		"duration", elapsed,
	)
	s.notify(true)
	return nil
}

// LoadFile 从矩形文件加载索引.
func (s *Stabbing) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return xerrors.WrapInternal(err, fmt.Sprintf("open rectangles file %s", path))
	}
	defer f.Close()

	rects, err := dataset.ReadRectangles(f)
	if err != nil {
		return err
	}
	return s.Load(ctx, rects)
}

// Ready 是否已有索引可供查询.
func (s *Stabbing) Ready() bool {
	return s.current.Load() != nil
}

// Stats 返回当前索引统计，未加载时 ok=false.
func (s *Stabbing) Stats() (stats algorithm.IndexStats, ok bool) {
	snap := s.current.Load()
	if snap == nil {
		return algorithm.IndexStats{}, false
	}
	return snap.ix.Stats(), true
}

// Count 返回每个点被覆盖的矩形数量，结果与 points 一一对应.
// 矩形集合为空时每个点返回 0 (而不是 algorithm.RectIndex.CountBatch 的空结果)，
// 保证调用方总能按下标对齐。超过截止时间或被取消时返回 xerrors 的超时/取消错误。
func (s *Stabbing) Count(ctx context.Context, points []algorithm.Point) ([]int, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, xerrors.IndexNotReady()
	}
	if len(points) > s.maxPoints {
		return nil, xerrors.InvalidPoint(fmt.Sprintf("%d points exceeds limit %d", len(points), s.maxPoints), nil)
	}

	ctx, span := tracing.StartQuery(ctx, len(points), snap.generation)
	if len(points) == 1 {
		if cell, ok := snap.ix.Locate(points[0]); ok {
			tracing.AnnotateCell(span, cell)
		}
	}

	start := time.Now()
	defer func() {
		s.metrics.BatchDuration.Observe(time.Since(start).Seconds())
		s.metrics.BatchSize.Observe(float64(len(points)))
	}()

	var (
		counts []int
		out    tracing.QueryOutcome
		err    error
	)
	switch {
	case snap.ix.Empty():
		counts = make([]int, len(points))
		out.Outside = len(points)
	case s.cache != nil:
		counts, out, err = s.countCached(ctx, snap, points)
	default:
		counts, err = snap.ix.CountBatch(ctx, points, s.workers)
		out.Misses = len(points)
	}
	if err != nil {
		err = xerrors.FromContext(err)
		tracing.EndQuery(span, out, err)
		return nil, err
	}

	s.metrics.Queries.WithLabelValues(metrics.OutcomeHit).Add(float64(out.Hits))
	s.metrics.Queries.WithLabelValues(metrics.OutcomeMiss).Add(float64(out.Misses))
	s.metrics.Queries.WithLabelValues(metrics.OutcomeOutside).Add(float64(out.Outside))
	tracing.EndQuery(span, out, nil)
	return counts, nil
}

// countCached 逐点定位网格，优先读取缓存.
// 读写缓存都使用 snap 的代数，并发的重新加载不会让两次构建的结果混用。
func (s *Stabbing) countCached(ctx context.Context, snap *snapshot, points []algorithm.Point) ([]int, tracing.QueryOutcome, error) {
	counts := make([]int, len(points))
	var out tracing.QueryOutcome
	for i, p := range points {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, out, err
			}
		}
		cell, ok := snap.ix.Locate(p)
		if !ok {
			out.Outside++
			continue
		}
		if c, ok := s.cache.Get(snap.generation, cell); ok {
			counts[i] = c
			out.Hits++
			continue
		}
		counts[i] = snap.ix.CountCell(cell)
		out.Misses++
		if err := s.cache.Set(snap.generation, cell, counts[i]); err != nil {
			s.logger.DebugContext(ctx, "cache set failed", "error", err)
		}
	}
	return counts, out, nil
}
