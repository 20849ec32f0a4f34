// Package bundle 围绕锚点商品组合搭配（Complete the Look）。
package bundle

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pkg/dsl"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/pkg/validation"
)

// MaxItems 是一次搭配允许的最大单品数。
const MaxItems = 4

// DefaultDenyRules 默认的拒绝规则，任一规则为 true 即淘汰候选。
var DefaultDenyRules = []string{
	// 同类目不搭配，可叠穿的单品除外
	`anchor.category != "" && cand.category == anchor.category && !("layerable" in cand.tags) && !("layerable" in anchor.tags)`,
	// 性别不一致，unisex 与任何性别兼容
	`anchor.gender != "" && cand.gender != "" && anchor.gender != "unisex" && cand.gender != "unisex" && anchor.gender != cand.gender`,
}

// Config 搭配配置
type Config struct {
	// CandidateLimit 从共现表读取的邻居数上限
	CandidateLimit   int      `koanf:"candidate_limit" validate:"gt=0,lte=500"`
	MinCompatibility float64  `koanf:"min_compatibility" validate:"gte=0,lte=1"`
	DenyRules        []string `koanf:"deny_rules"`
}

func DefaultConfig() Config {
	return Config{
		CandidateLimit:   20,
		MinCompatibility: 0.5,
		DenyRules:        append([]string(nil), DefaultDenyRules...),
	}
}

// Composer 组合搭配。
//
// 设计原则：
//   - 候选只来自共现表，属性兼容度只用于过滤与加权
//   - 规则用 CEL 表达，可通过配置替换
//   - 锚点缺少特征是调用方错误（NOT_FOUND），下游故障返回 UNAVAILABLE 由编排层降级
//   - 没有可搭配的单品时返回空搭配，不是错误
type Composer struct {
	cfg          Config
	rules        []*dsl.Program
	features     core.FeatureStore
	cooc         core.CoOccurrenceStore
	availability core.Availability
	logger       zerolog.Logger
}

// NewComposer 创建搭配器，规则编译失败返回 INVALID_INPUT。availability 可为空。
func NewComposer(cfg Config, features core.FeatureStore, cooc core.CoOccurrenceStore, availability core.Availability, logger zerolog.Logger) (*Composer, error) {
	if err := validation.Struct(core.ModuleBundle, cfg); err != nil {
		return nil, err
	}
	rules, err := dsl.CompileAll(cfg.DenyRules)
	if err != nil {
		return nil, core.ValidationError(core.ModuleBundle, "deny rule: %v", err)
	}
	return &Composer{
		cfg:          cfg,
		rules:        rules,
		features:     features,
		cooc:         cooc,
		availability: availability,
		logger:       logging.Component(logger, "bundle"),
	}, nil
}

type complement struct {
	product  *core.ProductFeatures
	score    float64
	category string
}

// Compose 为锚点选出至多 maxItems 件互补单品，按分数降序、ID 升序排列。
//
// 分数 = 共现权重 × 属性兼容度。贪心选择时每个类目只取一件，
// 因此 maxItems > 1 且有多个类目可选时结果至少覆盖两个类目。
func (c *Composer) Compose(ctx context.Context, anchorID string, maxItems int) (*core.Bundle, error) {
	if err := validation.Var(core.ModuleBundle, "anchor id", anchorID, "required,entityid"); err != nil {
		return nil, err
	}
	if maxItems < 1 || maxItems > MaxItems {
		return nil, core.ValidationError(core.ModuleBundle, "maxItems must be in 1..%d, got %d", MaxItems, maxItems)
	}

	anchor, err := c.features.GetProductFeatures(ctx, anchorID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.NotFoundError(core.ModuleBundle, "anchor %s has no features", anchorID)
		}
		return nil, core.UnavailableError(core.ModuleBundle, err, "anchor %s features", anchorID)
	}

	neighbors, err := c.cooc.Neighbors(ctx, anchorID, c.cfg.CandidateLimit)
	if err != nil {
		return nil, core.UnavailableError(core.ModuleBundle, err, "co-occurrence %s", anchorID)
	}

	bundle := &core.Bundle{AnchorID: anchorID, Items: []core.BundleItem{}}
	if len(neighbors) == 0 {
		return bundle, nil
	}

	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ProductID != anchorID {
			ids = append(ids, n.ProductID)
		}
	}
	products, err := c.features.BatchGetProductFeatures(ctx, ids)
	if err != nil {
		return nil, core.UnavailableError(core.ModuleBundle, err, "complement features for %s", anchorID)
	}

	candidates, err := c.candidates(ctx, anchor, neighbors, products)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].product.ProductID < candidates[j].product.ProductID
	})

	seen := make(map[string]struct{}, maxItems)
	var total float64
	for _, cand := range candidates {
		if len(bundle.Items) == maxItems {
			break
		}
		if _, dup := seen[cand.category]; dup {
			metrics.BundleRejections.WithLabelValues("category").Inc()
			continue
		}
		seen[cand.category] = struct{}{}
		bundle.Items = append(bundle.Items, core.BundleItem{
			ProductID:          cand.product.ProductID,
			CompatibilityScore: cand.score,
		})
		total += cand.score
	}
	if n := len(bundle.Items); n > 0 {
		bundle.Score = total / float64(n)
	}

	c.logger.Debug().
		Str("anchor", anchorID).
		Int("neighbors", len(neighbors)).
		Int("eligible", len(candidates)).
		Int("selected", len(bundle.Items)).
		Msg("bundle composed")
	return bundle, nil
}

// candidates 过滤并打分。库存查询失败视为下游故障。
func (c *Composer) candidates(ctx context.Context, anchor *core.ProductFeatures, neighbors []core.Neighbor, products map[string]*core.ProductFeatures) ([]complement, error) {
	anchorVars := dsl.ProductVars(anchor)
	out := make([]complement, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ProductID == anchor.ProductID || n.Weight <= 0 {
			continue
		}
		p, ok := products[n.ProductID]
		if !ok || p == nil {
			metrics.BundleRejections.WithLabelValues("missing").Inc()
			continue
		}
		if c.availability != nil {
			inStock, err := c.availability.IsInStock(ctx, p.ProductID)
			if err != nil {
				return nil, core.UnavailableError(core.ModuleBundle, err, "stock %s", p.ProductID)
			}
			if !inStock {
				metrics.BundleRejections.WithLabelValues("out_of_stock").Inc()
				continue
			}
		}
		if c.denied(anchorVars, p) {
			metrics.BundleRejections.WithLabelValues("rule").Inc()
			continue
		}
		compat := Compatibility(anchor, p)
		if compat < c.cfg.MinCompatibility {
			metrics.BundleRejections.WithLabelValues("incompatible").Inc()
			continue
		}
		out = append(out, complement{product: p, score: n.Weight * compat, category: p.Category()})
	}
	return out, nil
}

// denied 执行拒绝规则。规则执行出错时淘汰候选并记录日志。
func (c *Composer) denied(anchorVars map[string]any, p *core.ProductFeatures) bool {
	vars := dsl.Vars{Anchor: anchorVars, Cand: dsl.ProductVars(p)}
	for _, rule := range c.rules {
		deny, err := rule.Eval(vars)
		if err != nil {
			c.logger.Warn().Err(err).Str("product", p.ProductID).Msg("deny rule failed")
			return true
		}
		if deny {
			return true
		}
	}
	return false
}
