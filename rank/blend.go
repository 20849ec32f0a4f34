package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pipeline"
)

// 分量特征名，写入 Item.Features。
const (
	FeatureStrategy   = "strategy"
	FeatureAffinity   = "affinity"
	FeaturePopularity = "popularity_prior"
	FeatureRecency    = "recency"
)

// Weights 是线性融合的权重。
type Weights struct {
	Strategy   float64 `koanf:"strategy" validate:"gte=0"`
	Affinity   float64 `koanf:"affinity" validate:"gte=0"`
	Popularity float64 `koanf:"popularity" validate:"gte=0"`
	Recency    float64 `koanf:"recency" validate:"gte=0"`
}

// Sum 返回权重之和。
func (w Weights) Sum() float64 {
	return w.Strategy + w.Affinity + w.Popularity + w.Recency
}

// BlendNode 是线性融合排序 Node：
//
//	score = w.Strategy × raw/maxRaw
//	      + w.Affinity × 画像匹配度
//	      + w.Popularity × log1p(pop)/log1p(maxPop)
//	      + w.Recency × max(0, 1 − 上架时长/RecencyWindow)
//
// 特征缺失的候选只有策略分。排序为分数降序、热度降序、ID 升序。
type BlendNode struct {
	Weights       Weights
	RecencyWindow time.Duration
	Now           func() time.Time
}

func (n *BlendNode) Name() string        { return "rank.blend" }
func (n *BlendNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *BlendNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}
	var profile *core.UserProfile
	if rctx != nil {
		profile = rctx.Profile
	}

	var maxRaw, maxPop float64
	for _, it := range items {
		maxRaw = max(maxRaw, it.RawScore)
		if it.Product != nil {
			maxPop = max(maxPop, it.Product.Popularity)
		}
	}

	w := n.Weights
	for _, it := range items {
		var strategy, affinity, pop, recency float64
		if maxRaw > 0 {
			strategy = it.RawScore / maxRaw
		}
		if p := it.Product; p != nil {
			affinity = profile.Affinity(p.AttributeTokens())
			if maxPop > 0 && p.Popularity > 0 {
				pop = math.Log1p(p.Popularity) / math.Log1p(maxPop)
			}
			if !p.AddedAt.IsZero() && n.RecencyWindow > 0 {
				age := now.Sub(p.AddedAt)
				recency = math.Max(0, 1-float64(age)/float64(n.RecencyWindow))
				recency = math.Min(recency, 1)
			}
		}
		it.Features[FeatureStrategy] = strategy
		it.Features[FeatureAffinity] = affinity
		it.Features[FeaturePopularity] = pop
		it.Features[FeatureRecency] = recency
		it.Score = w.Strategy*strategy + w.Affinity*affinity + w.Popularity*pop + w.Recency*recency
	}

	SortByScore(items)
	return items, nil
}

// SortByScore 按分数降序、商品热度降序、ID 升序排序，是一个全序。
func SortByScore(items []*core.Item) {
	popularity := func(it *core.Item) float64 {
		if it.Product == nil {
			return 0
		}
		return it.Product.Popularity
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := popularity(a), popularity(b); pa != pb {
			return pa > pb
		}
		return a.ID < b.ID
	})
}
