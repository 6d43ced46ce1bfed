// Package tracing 提供基于 OpenTelemetry 的链路追踪，以及索引构建与查询两类 Span 的记录方式.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/config"
)

const tracerName = "github.com/wyfcoding/rectstab"

// Span 名称.
const (
	SpanIndexBuild = "rectstab.index.build"
	SpanQuery      = "rectstab.query"
)

// 索引与查询 Span 上的属性键.
const (
	AttrRectangles  = attribute.Key("rectstab.index.rectangles")
	AttrVersions    = attribute.Key("rectstab.index.versions")
	AttrNodes       = attribute.Key("rectstab.index.nodes")
	AttrLeaves      = attribute.Key("rectstab.index.leaves")
	AttrGeneration  = attribute.Key("rectstab.index.generation")
	AttrPoints      = attribute.Key("rectstab.query.points")
	AttrCacheHits   = attribute.Key("rectstab.query.cache_hits")
	AttrCacheMisses = attribute.Key("rectstab.query.cache_misses")
	AttrOutside     = attribute.Key("rectstab.query.outside")
	AttrCellVersion = attribute.Key("rectstab.cell.version")
	AttrCellLeaf    = attribute.Key("rectstab.cell.leaf")
)

// sampler 按比例采样：>=1 全采，<=0 只跟随上游决定。
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// InitTracer 初始化 OTLP gRPC 导出器并设置全局 TracerProvider.
// 未启用时返回空操作的 shutdown，Span 由 otel 的 noop 实现吸收。
func InitTracer(cfg config.TracingConfig, version string) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter for %s: %w", cfg.OTLPEndpoint, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithProcessRuntimeName(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("build tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplerRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracer provider initialized",
		"service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint, "sampler_ratio", cfg.SamplerRatio)
	return tp.Shutdown, nil
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// fail 记录错误并把 Span 状态置为 Error。
func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StartIndexBuild 开始一次索引构建 Span，调用方必须调用 EndIndexBuild.
//
//nolint:spancheck // Span 由 EndIndexBuild 结束。
func StartIndexBuild(ctx context.Context, rectangles int) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanIndexBuild, trace.WithAttributes(AttrRectangles.Int(rectangles)))
}

// EndIndexBuild 记录构建结果并结束 Span。err 非空时 stats 与 generation 被忽略.
func EndIndexBuild(span trace.Span, generation uint64, stats algorithm.IndexStats, err error) {
	defer span.End()
	if err != nil {
		fail(span, err)
		return
	}
	span.SetAttributes(
		AttrGeneration.Int64(int64(generation)), //nolint:gosec // 代数从 1 递增。
		AttrVersions.Int(stats.Versions),
		AttrNodes.Int(stats.Nodes),
		AttrLeaves.Int(stats.Leaves),
	)
}

// QueryOutcome 一次批量查询中各类结果的点数.
type QueryOutcome struct {
	Hits    int
	Misses  int
	Outside int
}

// StartQuery 开始一次批量查询 Span，调用方必须调用 EndQuery.
//
//nolint:spancheck // Span 由 EndQuery 结束。
func StartQuery(ctx context.Context, points int, generation uint64) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanQuery, trace.WithAttributes(
		AttrPoints.Int(points),
		AttrGeneration.Int64(int64(generation)), //nolint:gosec // 代数从 1 递增。
	))
}

// AnnotateCell 为单点查询记录其解析到的网格.
func AnnotateCell(span trace.Span, cell algorithm.Cell) {
	span.SetAttributes(AttrCellVersion.Int(cell.Version), AttrCellLeaf.Int(cell.Leaf))
}

// EndQuery 记录查询结果分布并结束 Span.
func EndQuery(span trace.Span, out QueryOutcome, err error) {
	defer span.End()
	if err != nil {
		fail(span, err)
		return
	}
	span.SetAttributes(
		AttrCacheHits.Int(out.Hits),
		AttrCacheMisses.Int(out.Misses),
		AttrOutside.Int(out.Outside),
	)
}
