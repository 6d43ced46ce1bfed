package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/xerrors"
)

// GRPCServer 封装了 grpc.Server，注册标准健康检查服务与反射服务。
type GRPCServer struct {
	server          *grpc.Server
	health          *health.Server
	logger          *slog.Logger
	addr            string
	shutdownTimeout time.Duration
}

// NewGRPCServer 构造 gRPC 服务器，初始健康状态为 NOT_SERVING。
func NewGRPCServer(cfg config.ServerConfig, logger *slog.Logger, interceptors ...grpc.UnaryServerInterceptor) *GRPCServer {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = DefaultShutdownTimeout
	}

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.KeepaliveParams(toServerParams(cfg.Keepalive)),
		grpc.KeepaliveEnforcementPolicy(toEnforcement(cfg.Keepalive)),
		grpc.ChainUnaryInterceptor(append([]grpc.UnaryServerInterceptor{ErrorInterceptor()}, interceptors...)...),
	}

	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &GRPCServer{
		server:          s,
		health:          hs,
		logger:          logger,
		addr:            cfg.GRPCAddr,
		shutdownTimeout: shutdown,
	}
}

// ErrorInterceptor 将 xerrors.Error 转换为对应的 gRPC Status。
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		var xe *xerrors.Error
		if errors.As(err, &xe) {
			return resp, xe.ToGRPCStatus().Err()
		}
		return resp, err
	}
}

// SetServing 切换整体健康状态。
func (s *GRPCServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start 启动 TCP 监听并运行 gRPC 服务。
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve 在已有的监听器上运行服务。
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("starting grpc server", "addr", lis.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc server stopping due to context cancellation")
		return s.Stop(context.Background())
	case err := <-errChan:
		return err
	}
}

// Stop 执行 gRPC 服务器的优雅关停，超时后强制关闭。
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping grpc server gracefully")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-timer.C:
		s.logger.Warn("grpc server graceful stop timeout, forcing stop")
		s.server.Stop()
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}
