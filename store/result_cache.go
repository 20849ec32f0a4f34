package store

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ResultCache 是服务层的短 TTL 结果缓存。
//
// 设计原则：
//   - 读路径无锁：sync.Map + 原子代数，读永远不会被写阻塞
//   - 按 owner（用户 / 锚点商品）分代：Invalidate(owner) 只递增代数，不扫描条目
//   - 写入携带计算开始前捕获的 Stamp，计算期间发生的失效会让这次写入直接不可见
//   - 全局 epoch 用于目录级变更（InvalidateAll）
type ResultCache[V any] struct {
	entries sync.Map // key -> *resultEntry[V]
	gens    sync.Map // owner -> *atomic.Uint64
	epoch   atomic.Uint64

	hits   atomic.Uint64
	misses atomic.Uint64

	now func() time.Time
}

type resultEntry[V any] struct {
	value  V
	stamp  Stamp
	expire time.Time
}

// Stamp 是某个 owner 在某一时刻的代数快照。
type Stamp struct {
	Owner string
	gen   uint64
	epoch uint64
}

// CacheStats 缓存命中统计
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
	Entries int     `json:"entries"`
}

// NewResultCache 创建结果缓存。
func NewResultCache[V any]() *ResultCache[V] {
	return &ResultCache[V]{now: time.Now}
}

func (c *ResultCache[V]) counter(owner string) *atomic.Uint64 {
	if g, ok := c.gens.Load(owner); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := c.gens.LoadOrStore(owner, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// Stamp 在计算开始前调用，捕获 owner 当前代数。
func (c *ResultCache[V]) Stamp(owner string) Stamp {
	return Stamp{Owner: owner, gen: c.counter(owner).Load(), epoch: c.epoch.Load()}
}

// Version 标识快照对应的数据版本，两个快照的 Version 相同表示期间没有发生失效。
func (s Stamp) Version() string {
	return strconv.FormatUint(s.epoch, 10) + "." + strconv.FormatUint(s.gen, 10)
}

func (c *ResultCache[V]) current(s Stamp) bool {
	return s.epoch == c.epoch.Load() && s.gen == c.counter(s.Owner).Load()
}

// Get 读取缓存；过期或代数落后的条目视为未命中。
func (c *ResultCache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	e := v.(*resultEntry[V])
	if c.now().After(e.expire) || !c.current(e.stamp) {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set 写入缓存。stamp 已过期（期间发生过失效）时放弃写入并返回 false。
func (c *ResultCache[V]) Set(key string, value V, stamp Stamp, ttl time.Duration) bool {
	if ttl <= 0 || !c.current(stamp) {
		return false
	}
	// 写入后才发生的失效由 Get 的代数校验兜住
	c.entries.Store(key, &resultEntry[V]{value: value, stamp: stamp, expire: c.now().Add(ttl)})
	return true
}

// Invalidate 使 owner 名下的所有条目失效。
func (c *ResultCache[V]) Invalidate(owner string) {
	c.counter(owner).Add(1)
}

// InvalidateAll 使全部条目失效。
func (c *ResultCache[V]) InvalidateAll() {
	c.epoch.Add(1)
}

// Sweep 删除过期或失效的条目，返回删除数量。
func (c *ResultCache[V]) Sweep() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(k, v any) bool {
		e := v.(*resultEntry[V])
		if now.After(e.expire) || !c.current(e.stamp) {
			if c.entries.CompareAndDelete(k, v) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Stats 返回命中统计。
func (c *ResultCache[V]) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	st := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		st.HitRate = float64(hits) / float64(total)
	}
	c.entries.Range(func(_, _ any) bool {
		st.Entries++
		return true
	})
	return st
}
