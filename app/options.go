package app

import "github.com/wyfcoding/rectstab/server"

// Option 配置应用程序选项。
type Option func(*options)

type options struct {
	servers  []server.Server
	cleanups []func()
}

// WithServer 添加一个或多个服务器，nil 会被忽略。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		for _, s := range servers {
			if s != nil {
				o.servers = append(o.servers, s)
			}
		}
	}
}

// WithCleanup 添加一个在所有服务器退出后执行的清理函数。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, cleanup)
	}
}
