package algorithm

import (
	"slices"
	"sort"
)

// CoordinateCompressor 坐标压缩器。
// 将任意整数坐标映射为 [0, len-1] 内的稠密秩，重复坐标保留。
type CoordinateCompressor struct {
	xs []int
	ys []int
}

// NewCoordinateCompressor 基于点集构建压缩器。
func NewCoordinateCompressor(points []Point) *CoordinateCompressor {
	xs := make([]int, 0, len(points))
	ys := make([]int, 0, len(points))
	for _, p := range points {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	slices.Sort(xs)
	slices.Sort(ys)

	return &CoordinateCompressor{xs: xs, ys: ys}
}

// rank 返回 sorted 中最后一个 <= v 的元素下标，不存在时返回 -1。
func rank(sorted []int, v int) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i] > v }) - 1
}

// Compress 返回点在两个坐标轴上的秩。
func (c *CoordinateCompressor) Compress(p Point) Point {
	return Point{X: rank(c.xs, p.X), Y: rank(c.ys, p.Y)}
}

// CompressRectangle 压缩矩形的两个角点。
func (c *CoordinateCompressor) CompressRectangle(r Rectangle) Rectangle {
	return Rectangle{Start: c.Compress(r.Start), End: c.Compress(r.End)}
}

// CompressRectangles 批量压缩矩形。
func (c *CoordinateCompressor) CompressRectangles(rects []Rectangle) []Rectangle {
	out := make([]Rectangle, len(rects))
	for i, r := range rects {
		out[i] = c.CompressRectangle(r)
	}
	return out
}

// Len 返回每个坐标轴上保存的坐标个数。
func (c *CoordinateCompressor) Len() int {
	return len(c.xs)
}
