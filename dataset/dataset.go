// Package dataset 读写批处理输入输出的文本格式.
//
// 输入格式：
//
//	n
//	x1 y1 x2 y2   (n 行矩形)
//	m
//	x y           (m 行查询点)
//
// 查询部分可以整体缺失 (m 视为 0)。空行被忽略。
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/xerrors"
)

// Dataset 一次批处理的矩形与查询点.
type Dataset struct {
	Rectangles []algorithm.Rectangle
	Points     []algorithm.Point
}

// lineReader 按行读取，跳过空行并记录行号.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineReader{sc: sc}
}

// next 返回下一行非空内容的字段，到达末尾时 ok=false.
func (lr *lineReader) next() (fields []string, ok bool, err error) {
	for lr.sc.Scan() {
		lr.line++
		fields = strings.Fields(lr.sc.Text())
		if len(fields) > 0 {
			return fields, true, nil
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, false, xerrors.MalformedInput(lr.line+1, "read failed", err)
	}
	return nil, false, nil
}

func (lr *lineReader) ints(fields []string, want int, what string) ([]int, error) {
	if len(fields) != want {
		return nil, xerrors.MalformedInput(lr.line,
			fmt.Sprintf("%s: expected %d integers, got %d", what, want, len(fields)), nil)
	}
	out := make([]int, want)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, xerrors.MalformedInput(lr.line, fmt.Sprintf("%s: bad integer %q", what, f), err)
		}
		out[i] = v
	}
	return out, nil
}

// count 读取一个非负计数行.
func (lr *lineReader) count(what string, required bool) (int, bool, error) {
	fields, ok, err := lr.next()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		if required {
			return 0, false, xerrors.MalformedInput(lr.line+1, what+": unexpected end of input", nil)
		}
		return 0, false, nil
	}
	v, err := lr.ints(fields, 1, what)
	if err != nil {
		return 0, false, err
	}
	if v[0] < 0 {
		return 0, false, xerrors.MalformedInput(lr.line, fmt.Sprintf("%s: negative count %d", what, v[0]), nil)
	}
	return v[0], true, nil
}

func (lr *lineReader) rectangles() ([]algorithm.Rectangle, error) {
	n, _, err := lr.count("rectangle count", true)
	if err != nil {
		return nil, err
	}
	rects := make([]algorithm.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		fields, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerrors.MalformedInput(lr.line+1,
				fmt.Sprintf("rectangle %d of %d: unexpected end of input", i+1, n), nil)
		}
		v, err := lr.ints(fields, 4, "rectangle")
		if err != nil {
			return nil, err
		}
		rects = append(rects, algorithm.Rectangle{
			Start: algorithm.Point{X: v[0], Y: v[1]},
			End:   algorithm.Point{X: v[2], Y: v[3]},
		})
	}
	return rects, nil
}

// Read 解析完整的批处理输入.
func Read(r io.Reader) (*Dataset, error) {
	lr := newLineReader(r)

	rects, err := lr.rectangles()
	if err != nil {
		return nil, err
	}

	m, ok, err := lr.count("point count", false)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Rectangles: rects}
	if !ok {
		return ds, nil
	}

	ds.Points = make([]algorithm.Point, 0, m)
	for i := 0; i < m; i++ {
		fields, ok, err := lr.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, xerrors.MalformedInput(lr.line+1,
				fmt.Sprintf("point %d of %d: unexpected end of input", i+1, m), nil)
		}
		v, err := lr.ints(fields, 2, "point")
		if err != nil {
			return nil, err
		}
		ds.Points = append(ds.Points, algorithm.Point{X: v[0], Y: v[1]})
	}
	return ds, nil
}

// ReadRectangles 只读取矩形部分，之后的内容被忽略.
func ReadRectangles(r io.Reader) ([]algorithm.Rectangle, error) {
	return newLineReader(r).rectangles()
}

// WriteCounts 将计数以空格分隔写成一行；counts 为空时不输出任何内容.
func WriteCounts(w io.Writer, counts []int) error {
	if len(counts) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	for i, c := range counts {
		if i > 0 {
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(strconv.Itoa(c)); err != nil {
			return err
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}
