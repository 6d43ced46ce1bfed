// Package cache 提供按压缩网格缓存计数结果的本地缓存.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/config"
)

// CellCache 使用 `allegro/bigcache` 保存 (索引代数, 版本, 叶子) 到计数的映射.
// 同一网格内的所有查询点计数相同，因此以网格而非原始坐标作为键。
// 网格编号只在一次索引构建内有意义，键中的代数区分不同构建，
// 旧构建写入的条目不会被新构建读到。
type CellCache struct {
	cache *bigcache.BigCache
}

// NewCellCache 根据配置创建缓存实例.
// BigCache 对所有项使用统一的 TTL，MaxMB 为硬性容量上限。
func NewCellCache(cfg config.CacheConfig) (*CellCache, error) {
	bc := bigcache.DefaultConfig(cfg.TTL)
	bc.HardMaxCacheSize = cfg.MaxMB
	bc.CleanWindow = time.Minute
	bc.Verbose = false

	c, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, fmt.Errorf("初始化 bigcache 失败: %w", err)
	}

	return &CellCache{cache: c}, nil
}

func cellKey(generation uint64, cell algorithm.Cell) string {
	return strconv.FormatUint(generation, 10) + ":" + strconv.Itoa(cell.Version) + ":" + strconv.Itoa(cell.Leaf)
}

// Get 返回第 generation 次构建中网格的缓存计数.
func (c *CellCache) Get(generation uint64, cell algorithm.Cell) (int, bool) {
	data, err := c.cache.Get(cellKey(generation, cell))
	if err != nil || len(data) != 8 {
		return 0, false
	}
	return int(int64(binary.LittleEndian.Uint64(data))), true //nolint:gosec // 写入时来自 int。
}

// Set 写入第 generation 次构建中的网格计数.
func (c *CellCache) Set(generation uint64, cell algorithm.Cell, count int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(count))) //nolint:gosec // 原样往返。
	return c.cache.Set(cellKey(generation, cell), buf[:])
}

// Len 返回当前缓存条目数.
func (c *CellCache) Len() int {
	return c.cache.Len()
}

// Reset 清空缓存，索引替换后调用以回收旧构建的条目.
func (c *CellCache) Reset() error {
	return c.cache.Reset()
}

// Close 关闭缓存，释放后台清理协程.
func (c *CellCache) Close() error {
	return c.cache.Close()
}
