package recall

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pipeline"
)

// Fanout 是一个 Recall Node：并发执行多个候选策略，并合并结果。
//
// 合并规则：同一商品保留最高的策略分，来源取并集；
// 结果按策略分降序、ID 升序排列，排除集合中的商品不会出现。
type Fanout struct {
	Sources        []Source
	Timeout        time.Duration // 每个策略的超时时间
	PerSourceLimit int           // 每个策略最多贡献的候选数（0 表示不限制）
	MaxConcurrent  int           // 最大并发数（0 表示不限制）
	Logger         zerolog.Logger
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，忽略输入 items。
func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return n.Recall(ctx, rctx)
}

// Recall 执行所有策略。失败的策略被跳过并计数；全部失败时返回 core.ErrAllStrategiesFailed。
func (n *Fanout) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	results := make([][]*core.Item, len(n.Sources))
	failed := make([]bool, len(n.Sources))

	eg := &errgroup.Group{}
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}
	for i, src := range n.Sources {
		eg.Go(func() error {
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := n.call(recallCtx, src, rctx)
			if err == nil {
				// 策略不响应 ctx 时以超时为准
				err = recallCtx.Err()
			}
			if err != nil {
				failed[i] = true
				metrics.StrategyFailures.WithLabelValues(src.Name()).Inc()
				n.Logger.Warn().Err(err).Str("strategy", src.Name()).Msg("candidate strategy failed")
				return nil
			}
			if n.PerSourceLimit > 0 && len(items) > n.PerSourceLimit {
				items = items[:n.PerSourceLimit]
			}
			metrics.StrategyCandidates.WithLabelValues(src.Name()).Observe(float64(len(items)))
			results[i] = items
			return nil
		})
	}
	_ = eg.Wait()

	allFailed := true
	for _, f := range failed {
		allFailed = allFailed && f
	}
	if allFailed {
		return nil, core.ErrAllStrategiesFailed
	}

	out := n.merge(rctx, results)
	if rctx != nil && rctx.Limit > 0 && len(out) > rctx.Limit {
		out = out[:rctx.Limit]
	}
	return out, nil
}

// call 执行单个策略，策略 panic 视为失败。
func (n *Fanout) call(ctx context.Context, src Source, rctx *core.RecommendContext) ([]*core.Item, error) {
	type result struct {
		items []*core.Item
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.Logger.Error().Interface("panic", r).Str("strategy", src.Name()).Msg("candidate strategy panicked")
				done <- result{err: core.NewDomainError(core.ModuleRecall, core.ErrorCodeInternalError, "strategy panicked")}
			}
		}()
		items, err := src.Recall(ctx, rctx)
		done <- result{items, err}
	}()
	select {
	case r := <-done:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// merge 按策略顺序合并，结果与策略完成顺序无关。
func (n *Fanout) merge(rctx *core.RecommendContext, results [][]*core.Item) []*core.Item {
	seen := make(map[string]*core.Item)
	out := make([]*core.Item, 0)
	for i, items := range results {
		name := n.Sources[i].Name()
		for _, it := range items {
			if it == nil || it.ID == "" || rctx.IsExcluded(it.ID) {
				continue
			}
			old, ok := seen[it.ID]
			if !ok {
				it.AddSource(name)
				seen[it.ID] = it
				out = append(out, it)
				continue
			}
			old.AddSource(name)
			if it.RawScore > old.RawScore {
				old.RawScore = it.RawScore
			}
		}
	}
	core.SortByRawScore(out)
	return out
}
