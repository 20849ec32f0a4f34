// Package pipeline 定义排序链路的 Node 抽象。
package pipeline

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// Kind 标记 Node 所在阶段，用作指标标签。
type Kind string

const (
	KindRecall  Kind = "recall"
	KindHydrate Kind = "hydrate"
	KindFilter  Kind = "filter"
	KindRank    Kind = "rank"
	KindReRank  Kind = "rerank"
)

// Node 消费候选并产出候选。Node 可以修改 Item 的分数与特征，
// 但不能在不同请求之间共享 Item。
type Node interface {
	Name() string
	Kind() Kind
	Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error)
}
