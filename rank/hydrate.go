package rank

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pipeline"
)

// HydrateNode 批量补齐候选的商品特征。特征服务失败时保留候选，按特征缺失处理。
type HydrateNode struct {
	Features core.FeatureStore
	Logger   zerolog.Logger
}

func (n *HydrateNode) Name() string        { return "rank.hydrate" }
func (n *HydrateNode) Kind() pipeline.Kind { return pipeline.KindHydrate }

func (n *HydrateNode) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Features == nil || len(items) == 0 {
		return items, nil
	}
	missing := make([]string, 0, len(items))
	for _, it := range items {
		if it.Product == nil {
			missing = append(missing, it.ID)
		}
	}
	if len(missing) == 0 {
		return items, nil
	}
	got, err := n.Features.BatchGetProductFeatures(ctx, missing)
	if err != nil {
		n.Logger.Warn().Err(err).Int("candidates", len(missing)).Msg("product features unavailable, ranking without them")
		return items, nil
	}
	for _, it := range items {
		if it.Product == nil {
			it.Product = got[it.ID]
		}
	}
	return items, nil
}
