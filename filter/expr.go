package filter

import (
	"context"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/dsl"
)

// ExprFilter 使用 CEL 表达式过滤，表达式为 true 时过滤。
//
// 可用变量：cand（候选商品）、user（画像摘要）。示例：
//
//	cand.price_tier > 3 && user.cold_start
//	"clearance" in cand.tags
type ExprFilter struct {
	programs []*dsl.Program
}

// NewExprFilter 编译表达式，任一表达式非法时返回错误。
func NewExprFilter(exprs ...string) (*ExprFilter, error) {
	programs, err := dsl.CompileAll(exprs)
	if err != nil {
		return nil, core.ValidationError(core.ModuleRank, "filter expression: %v", err)
	}
	return &ExprFilter{programs: programs}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if len(f.programs) == 0 || item.Product == nil {
		return false, nil
	}
	vars := dsl.Vars{Cand: dsl.ProductVars(item.Product)}
	if rctx != nil {
		vars.User = dsl.UserVars(rctx.Profile)
	}
	for _, p := range f.programs {
		hit, err := p.Eval(vars)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}
