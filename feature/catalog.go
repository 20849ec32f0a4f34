package feature

import (
	"context"
	"strconv"

	"github.com/rushteam/lookbook/core"
)

// 共现表与库存的 key 布局。
const (
	CoOccurrencePrefix = "cooc:" // 有序集合：cooc:{productID} -> neighbor, weight
	StockKey           = "stock" // 哈希：productID -> 库存数量
)

// KVCoOccurrence 是基于有序集合的共现表，离线批量写入，在线只读。
type KVCoOccurrence struct {
	kv core.KeyValueStore
}

func NewKVCoOccurrence(kv core.KeyValueStore) *KVCoOccurrence {
	return &KVCoOccurrence{kv: kv}
}

// Neighbors 按权重降序返回邻居，不存在时返回空。
func (c *KVCoOccurrence) Neighbors(ctx context.Context, productID string, limit int) ([]core.Neighbor, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := c.kv.ZRangeWithScores(ctx, CoOccurrencePrefix+productID, 0, int64(limit-1))
	if err != nil {
		return nil, core.UnavailableError(core.ModuleFeature, err, "co-occurrence %s", productID)
	}
	out := make([]core.Neighbor, 0, len(members))
	for _, m := range members {
		if m.Member == productID || m.Score <= 0 {
			continue
		}
		out = append(out, core.Neighbor{ProductID: m.Member, Weight: m.Score})
	}
	return out, nil
}

// Put 写入一对共现关系（单向）。
func (c *KVCoOccurrence) Put(ctx context.Context, productID, neighborID string, weight float64) error {
	return c.kv.ZAdd(ctx, CoOccurrencePrefix+productID, weight, neighborID)
}

// KVAvailability 是基于哈希的库存表。没有库存记录的商品视为有货。
type KVAvailability struct {
	kv core.KeyValueStore
}

func NewKVAvailability(kv core.KeyValueStore) *KVAvailability {
	return &KVAvailability{kv: kv}
}

func (a *KVAvailability) IsInStock(ctx context.Context, productID string) (bool, error) {
	v, err := a.kv.HGet(ctx, StockKey, productID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return true, nil
		}
		return false, core.UnavailableError(core.ModuleFeature, err, "stock %s", productID)
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// SetStock 写入库存数量。
func (a *KVAvailability) SetStock(ctx context.Context, productID string, qty int) error {
	return a.kv.HSet(ctx, StockKey, productID, []byte(strconv.Itoa(qty)))
}

var (
	_ core.CoOccurrenceStore = (*KVCoOccurrence)(nil)
	_ core.Availability      = (*KVAvailability)(nil)
)
