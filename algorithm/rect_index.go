package algorithm

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/rectstab/xerrors"
)

// batchChunk 并发批量查询时每个任务处理的点数。
const batchChunk = 256

// Cell 查询点在索引中解析出的位置：版本号 (扫描事件序号) 与叶子秩。
// 落在同一 Cell 的点覆盖计数必然相同。
type Cell struct {
	Version int
	Leaf    int
}

// IndexStats 索引规模统计。
type IndexStats struct {
	Rectangles int `json:"rectangles"`
	Versions   int `json:"versions"`
	Nodes      int `json:"nodes"`
	Leaves     int `json:"leaves"`
}

type sweepEvent struct {
	x      int // 事件的压缩 x 秩。
	update RangeUpdate
}

// RectIndex 矩形覆盖计数索引 (离线二维刺穿计数)。
// 构建完成后不可变，可被多个 goroutine 无锁并发查询。
type RectIndex struct {
	compressor *CoordinateCompressor
	tree       *PersistentSegmentTree
	eventXs    []int // 第 i 个版本对应事件的压缩 x 秩，非降序。
	rectangles int
}

// NewRectIndex 基于矩形集合构建索引。
// 任一矩形退化时返回 CodeInvalidRectangle 错误；空集合返回空索引。
func NewRectIndex(rects []Rectangle) (*RectIndex, error) {
	for i, r := range rects {
		if err := r.Validate(); err != nil {
			return nil, xerrors.InvalidRectangle(i, err)
		}
	}

	corners := make([]Point, 0, 2*len(rects))
	for _, r := range rects {
		corners = append(corners, r.Start, r.End)
	}
	compressor := NewCoordinateCompressor(corners)

	// 每个矩形在左边界激活、右边界失效，y 区间 [start.y, end.y-1]。
	events := make([]sweepEvent, 0, 2*len(rects))
	for _, r := range compressor.CompressRectangles(rects) {
		span := RangeUpdate{Start: r.Start.Y, End: r.End.Y - 1}
		enter, leave := span, span
		enter.Delta, leave.Delta = 1, -1
		events = append(events,
			sweepEvent{x: r.Start.X, update: enter},
			sweepEvent{x: r.End.X, update: leave},
		)
	}
	slices.SortStableFunc(events, func(a, b sweepEvent) int {
		return cmp.Compare(a.x, b.x)
	})

	updates := make([]RangeUpdate, len(events))
	eventXs := make([]int, len(events))
	for i, e := range events {
		updates[i] = e.update
		eventXs[i] = e.x
	}

	return &RectIndex{
		compressor: compressor,
		tree:       BuildVersionChain(updates),
		eventXs:    eventXs,
		rectangles: len(rects),
	}, nil
}

// Empty 报告索引是否不含任何矩形。
func (ix *RectIndex) Empty() bool {
	return ix.rectangles == 0
}

// snapshotAt 返回最后一个事件 x 秩 <= rx 的版本号，不存在时返回 -1。
func (ix *RectIndex) snapshotAt(rx int) int {
	return sort.Search(len(ix.eventXs), func(i int) bool { return ix.eventXs[i] > rx }) - 1
}

// Locate 将查询点解析为 Cell。点位于所有矩形的左侧或下方时返回 false。
func (ix *RectIndex) Locate(p Point) (Cell, bool) {
	if ix.Empty() {
		return Cell{}, false
	}
	c := ix.compressor.Compress(p)
	if c.X < 0 || c.Y < 0 {
		return Cell{}, false
	}
	if c.Y >= ix.tree.Leaves() {
		panic(fmt.Sprintf("algorithm: y rank %d outside %d leaves", c.Y, ix.tree.Leaves()))
	}
	v := ix.snapshotAt(c.X)
	if v < 0 {
		return Cell{}, false
	}
	return Cell{Version: v, Leaf: c.Y}, true
}

// Count 返回覆盖 p 的矩形个数。
func (ix *RectIndex) Count(p Point) int {
	cell, ok := ix.Locate(p)
	if !ok {
		return 0
	}
	return ix.CountCell(cell)
}

// CountCell 返回已解析 Cell 的覆盖计数。
func (ix *RectIndex) CountCell(cell Cell) int {
	return ix.tree.QueryLeaf(cell.Version, cell.Leaf)
}

// CountBatch 并发查询一批点，结果与 points 一一对应。
// workers <= 1 时顺序执行；空索引或空点集返回空结果。
func (ix *RectIndex) CountBatch(ctx context.Context, points []Point, workers int) ([]int, error) {
	if ix.Empty() || len(points) == 0 {
		return []int{}, nil
	}

	counts := make([]int, len(points))
	if workers <= 1 || len(points) <= batchChunk {
		for i, p := range points {
			if i%batchChunk == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			counts[i] = ix.Count(p)
		}
		return counts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(points); start += batchChunk {
		end := min(start+batchChunk, len(points))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				counts[i] = ix.Count(points[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Stats 返回索引规模统计。
func (ix *RectIndex) Stats() IndexStats {
	return IndexStats{
		Rectangles: ix.rectangles,
		Versions:   ix.tree.Versions(),
		Nodes:      ix.tree.NodeCount(),
		Leaves:     ix.tree.Leaves(),
	}
}

// Solve 构建索引并用 workers 个协程查询所有点。
// 矩形非法时返回错误 (即使没有查询点)；矩形或查询点为空时返回空结果。
func Solve(ctx context.Context, rects []Rectangle, points []Point, workers int) ([]int, error) {
	ix, err := NewRectIndex(rects)
	if err != nil {
		return nil, err
	}
	return ix.CountBatch(ctx, points, workers)
}
