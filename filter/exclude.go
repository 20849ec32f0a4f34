package filter

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// ExcludeFilter 过滤请求排除集合中的商品与锚点商品，以及静态屏蔽列表。
type ExcludeFilter struct {
	// Blocked 是全局屏蔽的商品（例如下架中的商品）
	Blocked map[string]struct{}
}

// NewExcludeFilter 创建排除过滤器，blocked 可为空。
func NewExcludeFilter(blocked ...string) *ExcludeFilter {
	f := &ExcludeFilter{Blocked: make(map[string]struct{}, len(blocked))}
	for _, id := range blocked {
		f.Blocked[id] = struct{}{}
	}
	return f
}

func (f *ExcludeFilter) Name() string {
	return "filter.exclude"
}

func (f *ExcludeFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.Blocked[item.ID]; ok {
		return true, nil
	}
	return rctx.IsExcluded(item.ID), nil
}
