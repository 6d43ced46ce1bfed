// Package app 提供了应用程序的生命周期管理：并发运行所有服务器，统一关闭并执行清理。
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/sourcegraph/conc/pool"
)

// App 是应用程序的核心容器，负责管理服务器与清理函数。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{name: name, logger: logger, opts: o}
}

// Run 并发启动所有注册的服务器并阻塞。
// ctx 取消时各服务器自行优雅关闭；任一服务器出错会取消其余服务器。
// 所有服务器退出后按注册的逆序执行清理函数。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid(), "servers", len(a.opts.servers))

	p := pool.New().WithContext(ctx).WithCancelOnError()
	for _, srv := range a.opts.servers {
		p.Go(func(ctx context.Context) error {
			return srv.Start(ctx)
		})
	}
	err := p.Wait()
	if err != nil {
		a.logger.Error("server exited with error", "name", a.name, "error", err)
	}

	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}

	a.logger.Info("application shut down", "name", a.name)
	return err
}

// Servers 返回已注册的服务器数量。
func (a *App) Servers() int {
	return len(a.opts.servers)
}
