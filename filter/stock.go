package filter

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// InStockFilter 过滤缺货商品。库存查询失败时同样移除，与搭配、内容召回的处理一致。
type InStockFilter struct {
	Availability core.Availability
}

func (f *InStockFilter) Name() string {
	return "filter.in_stock"
}

func (f *InStockFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.Availability == nil {
		return false, nil
	}
	in, err := f.Availability.IsInStock(ctx, item.ID)
	if err != nil {
		return true, err
	}
	return !in, nil
}
