package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/config"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(config.TracingConfig{Enabled: false}, "v1")
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown failed: %v", err)
	}
}

func TestSampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		desc := sampler(tc.ratio).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tc.want) {
			t.Errorf("ratio %v: unexpected sampler %q", tc.ratio, desc)
		}
	}
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestIndexBuildSpan(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartIndexBuild(context.Background(), 2)
	EndIndexBuild(span, 3, algorithm.IndexStats{Rectangles: 2, Versions: 4, Nodes: 19, Leaves: 4}, nil)

	_, failed := StartIndexBuild(context.Background(), 1)
	EndIndexBuild(failed, 0, algorithm.IndexStats{}, errors.New("invalid rectangle"))

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(ended))
	}
	ok := attrs(ended[0])
	if ended[0].Name() != SpanIndexBuild {
		t.Errorf("unexpected span name %q", ended[0].Name())
	}
	if ok[AttrRectangles].AsInt64() != 2 || ok[AttrVersions].AsInt64() != 4 || ok[AttrGeneration].AsInt64() != 3 {
		t.Errorf("unexpected build attributes %v", ended[0].Attributes())
	}
	if ended[1].Status().Code != codes.Error {
		t.Errorf("failed build must carry error status, got %v", ended[1].Status())
	}
	if _, has := attrs(ended[1])[AttrVersions]; has {
		t.Errorf("failed build must not report index stats")
	}
}

func TestQuerySpan(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartQuery(context.Background(), 1, 7)
	AnnotateCell(span, algorithm.Cell{Version: 2, Leaf: 5})
	EndQuery(span, QueryOutcome{Hits: 1}, nil)

	_, failed := StartQuery(context.Background(), 10, 7)
	EndQuery(failed, QueryOutcome{}, context.DeadlineExceeded)

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(ended))
	}
	got := attrs(ended[0])
	if got[AttrPoints].AsInt64() != 1 || got[AttrCellLeaf].AsInt64() != 5 || got[AttrCacheHits].AsInt64() != 1 {
		t.Errorf("unexpected query attributes %v", ended[0].Attributes())
	}
	if ended[1].Status().Code != codes.Error || ended[1].Status().Description != context.DeadlineExceeded.Error() {
		t.Errorf("unexpected status %v", ended[1].Status())
	}
}
