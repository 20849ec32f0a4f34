package rerank

import (
	"context"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pipeline"
)

// TopNNode 截断到请求数量，放在多样性重排之后。
// N <= 0 时使用 RecommendContext.Limit，两者都不大于 0 时原样返回。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string        { return "rerank.topn" }
func (n *TopNNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *TopNNode) Process(_ context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	limit := n.N
	if limit <= 0 && rctx != nil {
		limit = rctx.Limit
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
