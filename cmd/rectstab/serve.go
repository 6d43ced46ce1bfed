package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/rectstab/api"
	"github.com/wyfcoding/rectstab/app"
	"github.com/wyfcoding/rectstab/cache"
	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/idgen"
	"github.com/wyfcoding/rectstab/logging"
	"github.com/wyfcoding/rectstab/metrics"
	"github.com/wyfcoding/rectstab/server"
	"github.com/wyfcoding/rectstab/service"
	"github.com/wyfcoding/rectstab/tracing"
)

func newServeCmd() *cobra.Command {
	var rects string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a rectangle set and answer queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rects)
		},
	}
	cmd.Flags().StringVarP(&rects, "rects", "r", "", "rectangle file to load (overrides index.rectangles_file)")
	return cmd
}

func runServe(ctx context.Context, rects string) error {
	loader := config.NewLoader()
	conf, err := loader.Load(configPath)
	if err != nil {
		return err
	}
	if rects != "" {
		conf.Index.RectanglesFile = rects
	}

	logging.InitLogger(conf.LogOptions("main"))
	logger := logging.Default()
	config.PrintWithMask(conf)

	if err := idgen.Init(conf.Service); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	shutdownTracer, err := tracing.InitTracer(conf.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	m := metrics.NewMetrics(conf.Service.Name)
	m.RegisterBuildInfo(metrics.BuildInfo{
		Service:        conf.Service.Name,
		Version:        Version,
		Commit:         Commit,
		CacheEnabled:   conf.Cache.Enabled,
		GRPCEnabled:    conf.Server.GRPCAddr != "",
		ReloadSchedule: conf.Index.ReloadSchedule,
		Workers:        conf.Query.Workers,
		MaxPoints:      conf.Query.MaxPoints,
	})

	opts := []app.Option{
		app.WithCleanup(func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		}),
	}

	var cellCache *cache.CellCache
	if conf.Cache.Enabled {
		if cellCache, err = cache.NewCellCache(conf.Cache); err != nil {
			return err
		}
		opts = append(opts, app.WithCleanup(func() { _ = cellCache.Close() }))
	}

	svc := service.NewStabbing(conf.Query, metrics.NewIndexMetrics(m), cellCache, logger.Named("service"))
	if conf.Index.RectanglesFile != "" {
		if err := svc.LoadFile(ctx, conf.Index.RectanglesFile); err != nil {
			return err
		}
	} else {
		logger.Warn("no rectangles file configured, queries fail until an index is loaded")
	}

	router := api.NewRouter(conf, svc, m, logger.Named("http"))
	opts = append(opts, app.WithServer(server.NewGinServer(router, conf.Server, logger.Logger)))

	if conf.Server.GRPCAddr != "" {
		grpcServer := server.NewGRPCServer(conf.Server, logger.Named("grpc").Logger)
		svc.OnReady(grpcServer.SetServing)
		opts = append(opts, app.WithServer(grpcServer))
	}

	if conf.Index.ReloadSchedule != "" {
		reloader, err := service.NewReloader(svc, conf.Index, logger.Named("reloader"))
		if err != nil {
			return err
		}
		opts = append(opts, app.WithServer(reloader))
	}

	if conf.Metrics.Enabled && conf.Metrics.Addr != "" {
		opts = append(opts, app.WithCleanup(m.ExposeHttp(conf.Metrics.Addr)))
	}

	if configPath != "" {
		loader.RegisterReloadHook(func(c *config.Config) {
			logger.Info("config reloaded", "log_level", c.Log.Level)
		})
		loader.Watch()
	}

	return app.New(conf.Service.Name, logger.Logger, opts...).Run(ctx)
}
