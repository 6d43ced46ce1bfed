package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/cache"
	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/logging"
	"github.com/wyfcoding/rectstab/metrics"
	"github.com/wyfcoding/rectstab/xerrors"
)

var exampleRects = []algorithm.Rectangle{
	{Start: algorithm.Point{X: 0, Y: 0}, End: algorithm.Point{X: 4, Y: 4}},
	{Start: algorithm.Point{X: 2, Y: 2}, End: algorithm.Point{X: 6, Y: 6}},
}

var examplePoints = []algorithm.Point{{X: 1, Y: 1}, {X: 3, Y: 3}, {X: 5, Y: 5}, {X: 7, Y: 7}}

func testLogger() *logging.Logger {
	return logging.NewFromConfig(logging.Config{Service: "rectstab", Module: "service", Level: "error", Output: io.Discard})
}

func newTestService(t *testing.T, withCache bool) (*Stabbing, *metrics.IndexMetrics) {
	t.Helper()
	im := metrics.NewIndexMetrics(metrics.NewMetrics("rectstab-test"))
	var c *cache.CellCache
	if withCache {
		var err error
		c, err = cache.NewCellCache(config.CacheConfig{TTL: time.Minute, MaxMB: 8, Enabled: true})
		if err != nil {
			t.Fatalf("NewCellCache failed: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
	}
	return NewStabbing(config.QueryConfig{Workers: 4, MaxPoints: 10}, im, c, testLogger()), im
}

func equalCounts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStabbingNotReady(t *testing.T) {
	svc, _ := newTestService(t, false)
	if svc.Ready() {
		t.Fatalf("service must not be ready before Load")
	}
	if _, ok := svc.Stats(); ok {
		t.Errorf("expected no stats before Load")
	}
	_, err := svc.Count(context.Background(), examplePoints)
	xe, ok := xerrors.FromError(err)
	if !ok || xe.Code != xerrors.CodeIndexNotReady {
		t.Errorf("expected index-not-ready error, got %v", err)
	}
}

func TestStabbingCount(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		svc, im := newTestService(t, withCache)
		if err := svc.Load(context.Background(), exampleRects); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !svc.Ready() {
			t.Fatalf("service must be ready after Load")
		}

		got, err := svc.Count(context.Background(), examplePoints)
		if err != nil {
			t.Fatalf("cache=%v: Count failed: %v", withCache, err)
		}
		if want := []int{1, 2, 1, 0}; !equalCounts(got, want) {
			t.Errorf("cache=%v: expected %v, got %v", withCache, want, got)
		}

		if v := testutil.ToFloat64(im.Versions); v != 4 {
			t.Errorf("cache=%v: expected versions gauge 4, got %v", withCache, v)
		}
		if v := testutil.ToFloat64(im.Rectangles); v != 2 {
			t.Errorf("cache=%v: expected rectangles gauge 2, got %v", withCache, v)
		}
	}
}

func TestStabbingCacheOutcomes(t *testing.T) {
	svc, im := newTestService(t, true)
	if err := svc.Load(context.Background(), exampleRects); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// (2,2) 与 (3,3) 落在同一压缩网格。
	points := []algorithm.Point{{X: 2, Y: 2}, {X: 3, Y: 3}, {X: -1, Y: 0}}
	got, err := svc.Count(context.Background(), points)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if want := []int{2, 2, 0}; !equalCounts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	hits := testutil.ToFloat64(im.Queries.WithLabelValues(metrics.OutcomeHit))
	misses := testutil.ToFloat64(im.Queries.WithLabelValues(metrics.OutcomeMiss))
	outside := testutil.ToFloat64(im.Queries.WithLabelValues(metrics.OutcomeOutside))
	if hits != 1 || misses != 1 || outside != 1 {
		t.Errorf("expected 1/1/1 hit/miss/outside, got %v/%v/%v", hits, misses, outside)
	}

	// 重新加载后缓存必须失效。
	if err := svc.Load(context.Background(), exampleRects[:1]); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got, err = svc.Count(context.Background(), []algorithm.Point{{X: 3, Y: 3}})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("stale cached count after reload: got %d", got[0])
	}
}

func TestStabbingLoadInvalidKeepsPrevious(t *testing.T) {
	svc, _ := newTestService(t, false)
	if err := svc.Load(context.Background(), exampleRects); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bad := []algorithm.Rectangle{{Start: algorithm.Point{X: 5, Y: 5}, End: algorithm.Point{X: 5, Y: 9}}}
	err := svc.Load(context.Background(), bad)
	if !errors.Is(err, algorithm.ErrInvalidRectangle) {
		t.Fatalf("expected ErrInvalidRectangle, got %v", err)
	}

	stats, ok := svc.Stats()
	if !ok || stats.Rectangles != 2 {
		t.Errorf("previous index must survive a failed load, got %+v %v", stats, ok)
	}
}

func TestStabbingLimits(t *testing.T) {
	svc, _ := newTestService(t, false)
	if err := svc.Load(context.Background(), exampleRects); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err := svc.Count(context.Background(), make([]algorithm.Point, 11))
	xe, ok := xerrors.FromError(err)
	if !ok || xe.Code != xerrors.CodeInvalidPoint {
		t.Errorf("expected invalid-point error, got %v", err)
	}

	got, err := svc.Count(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result for no points, got %v %v", got, err)
	}
}

func TestStabbingEmptyRectangleSet(t *testing.T) {
	svc, _ := newTestService(t, true)
	if err := svc.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, err := svc.Count(context.Background(), examplePoints)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if want := []int{0, 0, 0, 0}; !equalCounts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStabbingOnReady(t *testing.T) {
	svc, _ := newTestService(t, false)
	var states []bool
	svc.OnReady(func(ready bool) { states = append(states, ready) })
	if err := svc.Load(context.Background(), exampleRects); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(states) != 2 || states[0] || !states[1] {
		t.Errorf("expected [false true], got %v", states)
	}
}

func writeRectFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rects.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write rectangles file failed: %v", err)
	}
	return path
}

func TestStabbingLoadFile(t *testing.T) {
	svc, _ := newTestService(t, false)
	path := writeRectFile(t, "2\n0 0 4 4\n2 2 6 6\n")
	if err := svc.LoadFile(context.Background(), path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	got, err := svc.Count(context.Background(), examplePoints)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if want := []int{1, 2, 1, 0}; !equalCounts(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if err := svc.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestStabbingReloadUnderConcurrentQueries(t *testing.T) {
	// 两组矩形压缩后的网格编号相同：(5,5) 在两次构建中都落在 (1,1)，
	// 计数却分别是 0 和 2。
	before := []algorithm.Rectangle{
		{Start: algorithm.Point{X: 0, Y: 0}, End: algorithm.Point{X: 4, Y: 4}},
		{Start: algorithm.Point{X: 10, Y: 10}, End: algorithm.Point{X: 14, Y: 14}},
	}
	after := []algorithm.Rectangle{
		{Start: algorithm.Point{X: 0, Y: 0}, End: algorithm.Point{X: 10, Y: 10}},
		{Start: algorithm.Point{X: 4, Y: 4}, End: algorithm.Point{X: 14, Y: 14}},
	}
	point := []algorithm.Point{{X: 5, Y: 5}}

	for trial := 0; trial < 10; trial++ {
		svc, _ := newTestService(t, true)
		if err := svc.Load(context.Background(), before); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		stop := make(chan struct{})
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					got, err := svc.Count(context.Background(), point)
					if err != nil {
						t.Errorf("Count failed: %v", err)
						return
					}
					if got[0] != 0 && got[0] != 2 {
						t.Errorf("count %d matches neither rectangle set", got[0])
						return
					}
				}
			}()
		}

		for range 50 {
			if err := svc.Load(context.Background(), before); err != nil {
				t.Fatalf("reload failed: %v", err)
			}
		}
		if err := svc.Load(context.Background(), after); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		close(stop)
		wg.Wait()

		got, err := svc.Count(context.Background(), point)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if got[0] != 2 {
			t.Fatalf("trial %d: stale count %d after final reload, expected 2", trial, got[0])
		}
	}
}

func TestStabbingCountDeadline(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		svc, _ := newTestService(t, withCache)
		if err := svc.Load(context.Background(), exampleRects); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		<-ctx.Done()
		_, err := svc.Count(ctx, examplePoints)
		cancel()

		xe, ok := xerrors.FromError(err)
		if !ok || xe.Code != xerrors.CodeQueryTimeout {
			t.Errorf("cache=%v: expected query-timeout error, got %v", withCache, err)
			continue
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("cache=%v: timeout error must wrap context.DeadlineExceeded", withCache)
		}

		ctx, cancel = context.WithCancel(context.Background())
		cancel()
		_, err = svc.Count(ctx, examplePoints)
		if xe, ok := xerrors.FromError(err); !ok || xe.Code != xerrors.CodeQueryCanceled {
			t.Errorf("cache=%v: expected query-canceled error, got %v", withCache, err)
		}
	}
}
