package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pipeline"
)

// FilterNode 依次应用 Filters，任一过滤器命中即移除候选。
// 移除数按过滤器计入 metrics.CandidatesFiltered。
type FilterNode struct {
	Filters []Filter
	Logger  zerolog.Logger
}

func (n *FilterNode) Name() string        { return "filter.constraints" }
func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

// rejectedBy 返回第一个命中的过滤器名称，都不命中时返回空串。
func (n *FilterNode) rejectedBy(ctx context.Context, rctx *core.RecommendContext, item *core.Item) string {
	for _, f := range n.Filters {
		hit, err := f.ShouldFilter(ctx, rctx, item)
		if err != nil {
			n.Logger.Debug().Err(err).Str("filter", f.Name()).Str("product_id", item.ID).Bool("removed", hit).Msg("filter undecided")
		}
		if hit {
			return f.Name()
		}
	}
	return ""
}

func (n *FilterNode) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if len(n.Filters) == 0 {
		return items, nil
	}
	kept := items[:0:0]
	var removed map[string]int
	for _, item := range items {
		if item == nil {
			continue
		}
		name := n.rejectedBy(ctx, rctx, item)
		if name == "" {
			kept = append(kept, item)
			continue
		}
		if removed == nil {
			removed = make(map[string]int)
		}
		removed[name]++
	}
	for name, c := range removed {
		metrics.CandidatesFiltered.WithLabelValues(name).Add(float64(c))
	}
	if len(removed) > 0 {
		n.Logger.Debug().Int("kept", len(kept)).Interface("removed", removed).Msg("candidates filtered")
	}
	return kept, nil
}
