package rerank

import (
	"context"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pipeline"
)

// Diversity 限制同一类目连续出现的次数。
//
// 单遍贪心：依次为每个位置挑选排名最靠前、且放入后不会让同类目连续超过 K 个的商品；
// 找不到满足条件的商品时按原顺序放入。只调整位置，不丢弃商品。
// 没有补齐特征的商品类目为空，不计入连续次数，也不会触发调整。
type Diversity struct {
	K int // 默认 3
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	k := n.K
	if k <= 0 {
		k = 3
	}
	if len(items) <= k {
		return items, nil
	}

	remaining := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it != nil {
			remaining = append(remaining, it)
		}
	}
	out := make([]*core.Item, 0, len(remaining))
	lastCat, run := "", 0

	for len(remaining) > 0 {
		pick := 0
		if run >= k && lastCat != "" {
			for i, it := range remaining {
				if it.Category() != lastCat {
					pick = i
					break
				}
			}
		}
		it := remaining[pick]
		remaining = append(remaining[:pick], remaining[pick+1:]...)
		out = append(out, it)

		c := it.Category()
		if c != "" && c == lastCat {
			run++
		} else {
			lastCat, run = c, 1
		}
	}
	return out, nil
}
