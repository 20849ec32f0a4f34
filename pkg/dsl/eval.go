package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/lookbook/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式，key 为表达式原文
	programs sync.Map
)

// getCELEnv 获取或创建 CEL 环境。
//
// 可用变量：
//   - anchor：锚点商品（搭配规则）
//   - cand：候选商品
//   - user：用户画像摘要（size / gender / cold_start）
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("anchor", cel.DynType),
			cel.Variable("cand", cel.DynType),
			cel.Variable("user", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的布尔表达式，可并发执行。
type Program struct {
	Expr string
	prg  cel.Program
}

// Compile 编译表达式并缓存。同一表达式只编译一次。
//
// 表达式语法（CEL 标准语法）：
//   - anchor.category == cand.category
//   - "layerable" in cand.tags
//   - cand.gender != "unisex" && cand.gender != anchor.gender
//   - cand.price_tier > 3
func Compile(expr string) (*Program, error) {
	if p, ok := programs.Load(expr); ok {
		return p.(*Program), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	p := &Program{Expr: expr, prg: prg}
	actual, _ := programs.LoadOrStore(expr, p)
	return actual.(*Program), nil
}

// CompileAll 批量编译，任一失败即返回错误。
func CompileAll(exprs []string) ([]*Program, error) {
	out := make([]*Program, 0, len(exprs))
	for _, e := range exprs {
		p, err := Compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Eval 执行表达式。未提供的变量按空 map 处理。
func (p *Program) Eval(vars Vars) (bool, error) {
	input := map[string]any{
		"anchor": emptyIfNil(vars.Anchor),
		"cand":   emptyIfNil(vars.Cand),
		"user":   emptyIfNil(vars.User),
	}
	out, _, err := p.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.Expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return bool, got %T", p.Expr, out.Value())
	}
	return result, nil
}

// Vars 是表达式的输入。
type Vars struct {
	Anchor map[string]any
	Cand   map[string]any
	User   map[string]any
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ProductVars 把商品特征展开成表达式可访问的 map。
// 缺失字段使用零值，表达式无需判空。
func ProductVars(p *core.ProductFeatures) map[string]any {
	if p == nil {
		return map[string]any{
			"id": "", "category": "", "tags": []string{}, "gender": "",
			"color": "", "material": "", "season": "", "formality": "",
			"price_tier": int64(0), "popularity": 0.0,
		}
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":         p.ProductID,
		"category":   p.Category(),
		"tags":       tags,
		"gender":     p.Gender,
		"color":      p.Attributes.ColorFamily,
		"material":   p.Attributes.Material,
		"season":     p.Attributes.Season,
		"formality":  p.Attributes.Formality,
		"price_tier": int64(p.Attributes.PriceTier),
		"popularity": p.Popularity,
	}
}

// UserVars 把画像展开成表达式可访问的 map。
func UserVars(u *core.UserProfile) map[string]any {
	if u == nil {
		return map[string]any{"id": "", "size": "", "gender": "", "cold_start": true}
	}
	return map[string]any{
		"id":         u.UserID,
		"size":       u.Preferences.Size,
		"gender":     u.Preferences.Gender,
		"cold_start": u.IsColdStart(),
	}
}
