package feature

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rushteam/lookbook/core"
)

// CachedStore 是带本地缓存的特征存储装饰器，采用 LRU + TTL 策略。
// 用于减少对远程特征服务（Redis / Feast）的访问；商品特征变化时调用 InvalidateProduct。
type CachedStore struct {
	next core.FeatureStore

	mu       sync.RWMutex
	products map[string]*cacheEntry[*core.ProductFeatures]
	users    map[string]*cacheEntry[*core.UserFeatures]

	maxSize int
	ttl     time.Duration

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

type cacheEntry[T any] struct {
	value      T
	expireTime time.Time
	accessTime atomic.Int64 // unix nano，读路径在读锁下更新
}

// NewCachedStore 创建缓存装饰器，maxSize 为每类实体的最大条目数。
func NewCachedStore(next core.FeatureStore, maxSize int, ttl time.Duration) *CachedStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &CachedStore{
		next:        next,
		products:    make(map[string]*cacheEntry[*core.ProductFeatures]),
		users:       make(map[string]*cacheEntry[*core.UserFeatures]),
		maxSize:     maxSize,
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanup(time.Minute)
	return c
}

func (c *CachedStore) Name() string { return "cached:" + c.next.Name() }

func (c *CachedStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *CachedStore) cleanExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.products {
		if now.After(e.expireTime) {
			delete(c.products, id)
		}
	}
	for id, e := range c.users {
		if now.After(e.expireTime) {
			delete(c.users, id)
		}
	}
}

// evictLRU 删除最久未访问的条目，调用方持有写锁
func evictLRU[T any](m map[string]*cacheEntry[T], maxSize int) {
	for len(m) >= maxSize {
		var oldestKey string
		var oldest int64
		first := true
		for k, e := range m {
			if at := e.accessTime.Load(); first || at < oldest {
				oldestKey, oldest, first = k, at, false
			}
		}
		if first {
			return
		}
		delete(m, oldestKey)
	}
}

func lookup[T any](mu *sync.RWMutex, m map[string]*cacheEntry[T], key string) (T, bool) {
	var zero T
	mu.RLock()
	defer mu.RUnlock()
	e, ok := m[key]
	if !ok {
		return zero, false
	}
	now := time.Now()
	if now.After(e.expireTime) {
		return zero, false
	}
	e.accessTime.Store(now.UnixNano())
	return e.value, true
}

func put[T any](c *CachedStore, m map[string]*cacheEntry[T], key string, v T) {
	now := time.Now()
	e := &cacheEntry[T]{value: v, expireTime: now.Add(c.ttl)}
	e.accessTime.Store(now.UnixNano())
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := m[key]; !exists {
		evictLRU(m, c.maxSize)
	}
	m[key] = e
}

func (c *CachedStore) GetUserFeatures(ctx context.Context, userID string) (*core.UserFeatures, error) {
	if uf, ok := lookup(&c.mu, c.users, userID); ok {
		return uf, nil
	}
	uf, err := c.next.GetUserFeatures(ctx, userID)
	if err != nil {
		return nil, err
	}
	put(c, c.users, userID, uf)
	return uf, nil
}

func (c *CachedStore) GetProductFeatures(ctx context.Context, productID string) (*core.ProductFeatures, error) {
	if pf, ok := lookup(&c.mu, c.products, productID); ok {
		return pf, nil
	}
	pf, err := c.next.GetProductFeatures(ctx, productID)
	if err != nil {
		return nil, err
	}
	put(c, c.products, productID, pf)
	return pf, nil
}

// BatchGetProductFeatures 只对未命中的商品访问下游。
func (c *CachedStore) BatchGetProductFeatures(ctx context.Context, productIDs []string) (map[string]*core.ProductFeatures, error) {
	out := make(map[string]*core.ProductFeatures, len(productIDs))
	var missing []string
	for _, id := range productIDs {
		if pf, ok := lookup(&c.mu, c.products, id); ok {
			out[id] = pf
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.next.BatchGetProductFeatures(ctx, missing)
	if err != nil {
		if len(out) > 0 {
			// 部分命中时返回已有结果，缺失部分按特征缺失处理
			return out, nil
		}
		return nil, err
	}
	for id, pf := range fetched {
		put(c, c.products, id, pf)
		out[id] = pf
	}
	return out, nil
}

func (c *CachedStore) ListProductIDs(ctx context.Context) ([]string, error) {
	return c.next.ListProductIDs(ctx)
}

// InvalidateProduct 删除商品的缓存特征。
func (c *CachedStore) InvalidateProduct(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, productID)
}

// InvalidateUser 删除用户的缓存偏好。
func (c *CachedStore) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
}

// Len 返回缓存的商品与用户条目数。
func (c *CachedStore) Len() (products, users int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products), len(c.users)
}

// Close 停止清理协程，可重复调用。
func (c *CachedStore) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

var _ core.FeatureStore = (*CachedStore)(nil)
