package xerrors

import (
	"context"
	"errors"
)

// 业务错误码。
const (
	// CodeInvalidRectangle 矩形退化或左右/上下颠倒。
	CodeInvalidRectangle = 400101
	// CodeInvalidPoint 查询点格式错误。
	CodeInvalidPoint = 400102
	// CodeMalformedInput 输入文本无法解析。
	CodeMalformedInput = 400103
	// CodeIndexNotReady 索引尚未加载。
	CodeIndexNotReady = 503101
	// CodeQueryTimeout 查询超过请求截止时间。
	CodeQueryTimeout = 504101
	// CodeQueryCanceled 调用方取消了查询。
	CodeQueryCanceled = 499101
)

// InvalidRectangle 构造矩形非法错误，cause 一般为 algorithm.ErrInvalidRectangle。
func InvalidRectangle(index int, cause error) *Error {
	return New(ErrInvalidArg, CodeInvalidRectangle, "invalid rectangle",
		"rectangle start must be strictly less than end on both axes", cause).
		WithContext("index", index)
}

// MalformedInput 构造输入解析错误。
func MalformedInput(line int, detail string, cause error) *Error {
	return New(ErrInvalidArg, CodeMalformedInput, "malformed input", detail, cause).
		WithContext("line", line)
}

// IndexNotReady 构造索引未就绪错误。
func IndexNotReady() *Error {
	return New(ErrUnavailable, CodeIndexNotReady, "index not ready", "no rectangle set has been loaded", nil)
}

// InvalidPoint 构造查询点非法错误 (缺失坐标、数量超限等)。
func InvalidPoint(detail string, cause error) *Error {
	return New(ErrInvalidArg, CodeInvalidPoint, "invalid query point", detail, cause)
}

// FromContext 将 ctx.Err() 转换为带状态码的错误，非 context 错误原样返回.
func FromContext(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrTimeout, CodeQueryTimeout, "query deadline exceeded", "", err)
	case errors.Is(err, context.Canceled):
		return New(ErrCanceled, CodeQueryCanceled, "query canceled", "", err)
	default:
		return err
	}
}
