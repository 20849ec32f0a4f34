package recall

import (
	"context"
	"math"

	"github.com/rushteam/lookbook/core"
)

// CoOccurrence 是基于共现表的协同召回："买了/看了 X 的人也买了 Y"。
//
// 种子为锚点商品，没有锚点时取最近浏览的商品；越早的种子折扣越大。
// 分数为各种子贡献的最大值：weight × discount^position。
type CoOccurrence struct {
	Table core.CoOccurrenceStore

	// Seeds 最多使用的最近浏览种子数，默认 5
	Seeds int
	// SeedDiscount 种子位置折扣，默认 0.85
	SeedDiscount float64
	// Limit 每个种子读取的邻居数，默认 50
	Limit int
}

func (r *CoOccurrence) Name() string { return core.ReasonCoOccurrence }

func (r *CoOccurrence) seeds(rctx *core.RecommendContext) []string {
	if rctx.AnchorID != "" {
		return []string{rctx.AnchorID}
	}
	n := r.Seeds
	if n <= 0 {
		n = 5
	}
	recent := rctx.GetUserProfile().RecentlyViewed
	if len(recent) > n {
		recent = recent[:n]
	}
	return recent
}

func (r *CoOccurrence) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if r.Table == nil || rctx == nil {
		return nil, nil
	}
	seeds := r.seeds(rctx)
	if len(seeds) == 0 {
		return nil, nil
	}
	limit := r.Limit
	if limit <= 0 {
		limit = 50
	}
	discount := r.SeedDiscount
	if discount <= 0 || discount > 1 {
		discount = 0.85
	}

	scores := make(map[string]float64)
	var lastErr error
	failures := 0
	for pos, seed := range seeds {
		neighbors, err := r.Table.Neighbors(ctx, seed, limit)
		if err != nil {
			lastErr = err
			failures++
			continue
		}
		factor := math.Pow(discount, float64(pos))
		for _, n := range neighbors {
			if s := n.Weight * factor; s > scores[n.ProductID] {
				scores[n.ProductID] = s
			}
		}
	}
	if failures == len(seeds) {
		return nil, lastErr
	}

	out := make([]*core.Item, 0, len(scores))
	for id, s := range scores {
		it := core.NewItem(id)
		it.RawScore = min(s, 1)
		it.Features["co_occurrence"] = it.RawScore
		out = append(out, it)
	}
	core.SortByRawScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
