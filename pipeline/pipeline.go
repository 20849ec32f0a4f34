package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
)

// Pipeline 按顺序执行 Node：补齐特征 → 过滤 → 打分 → 多样性 → 截断。
// 每个 Node 的耗时按 kind / name 计入 metrics.PipelineNodeDuration。
type Pipeline struct {
	Nodes []Node
}

// Run 执行整条链路。ctx 取消后不再进入下一个 Node；返回的错误带上出错的 Node。
func (p *Pipeline) Run(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, items)
		metrics.PipelineNodeDuration.WithLabelValues(string(node.Kind()), node.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", node.Kind(), node.Name(), err)
		}
		items = next
	}
	return items, nil
}
