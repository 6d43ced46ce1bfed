package server

import "context"

// Server 定义了服务器生命周期的统一契约。
type Server interface {
	// Start 阻塞运行，直到 ctx 被取消或服务出错。
	Start(ctx context.Context) error
	// Stop 优雅停止，等待正在处理的请求完成。
	Stop(ctx context.Context) error
}

var (
	_ Server = (*GinServer)(nil)
	_ Server = (*GRPCServer)(nil)
)
