// Package lookbook 是一个商品推荐与穿搭组合引擎。
//
// 设计要点：
// - 画像来自交互流水：按时间衰减派生兴趣，新事件写入即失效
// - 多策略召回：内容相似、共现、类目热门并发执行，单个策略失败不影响整体
// - 排序可热更新：权重与 CEL 过滤表达式在运行时原子替换
// - 始终有结果：任何环节失败都降级到热门榜单并标记 degraded
package lookbook

import "github.com/rushteam/lookbook/recommend"

// 轻量 facade：便于直接 import "lookbook" 使用编排层。
type (
	Service         = recommend.Service
	Components      = recommend.Components
	Config          = recommend.Config
	ForYouResponse  = recommend.ForYouResponse
	LookResponse    = recommend.LookResponse
	SimilarResponse = recommend.SimilarResponse
)

// NewService 创建编排层，等价于 recommend.NewService。
func NewService(cfg Config, c Components, opts ...recommend.Option) (*Service, error) {
	return recommend.NewService(cfg, c, opts...)
}

// DefaultConfig 返回编排层默认配置。
func DefaultConfig() Config { return recommend.DefaultConfig() }
