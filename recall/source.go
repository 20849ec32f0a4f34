package recall

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// Source 表示一个可复用的候选策略（内容相似 / 共现 / 类目热门）。
// 可以理解为“可并发 fan-out 的策略单元”。
//
// 设计原则：
//   - Name 同时是推荐理由标签，会写入 Item.Sources
//   - 返回的 RawScore 在 [0,1] 区间内，便于跨策略合并
//   - 没有信号时返回空结果而不是错误，错误只表示策略本身不可用
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}
