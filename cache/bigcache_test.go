package cache

import (
	"testing"
	"time"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/config"
)

func newTestCache(t *testing.T) *CellCache {
	t.Helper()
	c, err := NewCellCache(config.CacheConfig{TTL: time.Minute, MaxMB: 8, Enabled: true})
	if err != nil {
		t.Fatalf("NewCellCache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCellCacheGetSet(t *testing.T) {
	c := newTestCache(t)

	a := algorithm.Cell{Version: 3, Leaf: 1}
	b := algorithm.Cell{Version: 1, Leaf: 3}

	if _, ok := c.Get(1, a); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.Set(1, a, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(1, b, -1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got, ok := c.Get(1, a); !ok || got != 2 {
		t.Errorf("cell %+v: expected 2, got %d (hit=%v)", a, got, ok)
	}
	if got, ok := c.Get(1, b); !ok || got != -1 {
		t.Errorf("cell %+v: expected -1, got %d (hit=%v)", b, got, ok)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestCellCacheGenerations(t *testing.T) {
	c := newTestCache(t)
	cell := algorithm.Cell{Version: 1, Leaf: 1}

	if err := c.Set(1, cell, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// 同一网格编号在新构建中必须未命中。
	if _, ok := c.Get(2, cell); ok {
		t.Fatalf("entry from generation 1 leaked into generation 2")
	}
	if err := c.Set(2, cell, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, ok := c.Get(1, cell); !ok || got != 0 {
		t.Errorf("generation 1: expected 0, got %d (hit=%v)", got, ok)
	}
	if got, ok := c.Get(2, cell); !ok || got != 2 {
		t.Errorf("generation 2: expected 2, got %d (hit=%v)", got, ok)
	}
}

func TestCellCacheReset(t *testing.T) {
	c := newTestCache(t)
	cell := algorithm.Cell{Version: 0, Leaf: 0}
	if err := c.Set(1, cell, 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, ok := c.Get(1, cell); ok {
		t.Errorf("expected miss after reset")
	}
}
