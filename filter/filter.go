// Package filter 提供排序前的业务约束过滤：排除集合、库存、尺码与性别偏好、表达式规则。
package filter

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// Filter 是过滤器的抽象接口，用于判断一个 Item 是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
//
// 设计原则：
//   - 商品特征缺失（Item.Product 为空）时，依赖特征的过滤器保留该商品
//   - 返回错误表示无法判断，FilterNode 按同时返回的布尔值处理：true 移除，false 保留
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}
