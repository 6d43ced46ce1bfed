package server

import (
	"google.golang.org/grpc/keepalive"

	"github.com/wyfcoding/rectstab/config"
)

// toServerParams 构造 gRPC keepalive.ServerParameters。
func toServerParams(cfg config.KeepaliveConfig) keepalive.ServerParameters {
	return keepalive.ServerParameters{
		MaxConnectionIdle: cfg.MaxConnectionIdle,
		MaxConnectionAge:  cfg.MaxConnectionAge,
		Time:              cfg.Time,
		Timeout:           cfg.Timeout,
	}
}

// toEnforcement 构造 gRPC keepalive.EnforcementPolicy。
func toEnforcement(cfg config.KeepaliveConfig) keepalive.EnforcementPolicy {
	return keepalive.EnforcementPolicy{
		MinTime:             cfg.MinTime,
		PermitWithoutStream: cfg.PermitWithoutStream,
	}
}
