package algorithm

import (
	"errors"
	"fmt"
)

// ErrInvalidRectangle 矩形退化 (面积为 0) 或起止点颠倒。
var ErrInvalidRectangle = errors.New("rectangle start must be less than end on both axes")

// Point 平面上的整数点。
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rectangle 轴对齐矩形，采用左闭右开约定：
// 点 p 在矩形内当且仅当 Start.X <= p.X < End.X 且 Start.Y <= p.Y < End.Y。
type Rectangle struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Contains 判断点是否落在矩形内。
func (r Rectangle) Contains(p Point) bool {
	return r.Start.X <= p.X && p.X < r.End.X &&
		r.Start.Y <= p.Y && p.Y < r.End.Y
}

// Validate 检查矩形在两个坐标轴上都满足 Start < End。
func (r Rectangle) Validate() error {
	if r.Start.X >= r.End.X || r.Start.Y >= r.End.Y {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d)", ErrInvalidRectangle,
			r.Start.X, r.Start.Y, r.End.X, r.End.Y)
	}
	return nil
}
