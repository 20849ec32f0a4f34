// Package rank 对候选集合做特征补齐、约束过滤、线性融合打分与多样性重排。
package rank

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/filter"
	"github.com/rushteam/lookbook/pipeline"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/pkg/validation"
	"github.com/rushteam/lookbook/rerank"
)

// Config 排序配置。权重、阈值都是配置而不是代码。
type Config struct {
	Weights       Weights       `koanf:"weights"`
	RecencyWindow time.Duration `koanf:"recency_window" validate:"gt=0"`

	// InterestMatchThreshold 画像匹配度达到该值时给出 interest_match 理由
	InterestMatchThreshold float64 `koanf:"interest_match_threshold" validate:"gte=0,lte=1"`
	// NewArrivalThreshold 新品分量达到该值时给出 new_arrival 理由
	NewArrivalThreshold float64 `koanf:"new_arrival_threshold" validate:"gte=0,lte=1"`

	// DiversityK 同一类目最多连续出现的次数
	DiversityK int `koanf:"diversity_k" validate:"gt=0"`

	SizeFilter   bool     `koanf:"size_filter"`
	GenderFilter bool     `koanf:"gender_filter"`
	FilterExprs  []string `koanf:"filter_exprs"`
}

// DefaultConfig 默认权重 0.4 / 0.3 / 0.2 / 0.1，新品窗口 30 天。
func DefaultConfig() Config {
	return Config{
		Weights:                Weights{Strategy: 0.4, Affinity: 0.3, Popularity: 0.2, Recency: 0.1},
		RecencyWindow:          30 * 24 * time.Hour,
		InterestMatchThreshold: 0.25,
		NewArrivalThreshold:    0.5,
		DiversityK:             3,
		SizeFilter:             true,
		GenderFilter:           true,
	}
}

// Constraints 是单次排序的约束。
type Constraints struct {
	Limit   int
	Exclude map[string]struct{}
}

// snapshot 是一份已校验的配置及其编译产物，发布后不再修改。
type snapshot struct {
	cfg   Config
	exprs *filter.ExprFilter
}

// Ranker 是排序入口。
//
// 设计原则：
//   - 配置通过 Reload 整体替换，请求只读取发布时的快照
//   - 每次请求组装一条 Pipeline：补齐 → 过滤 → 融合 → 多样性 → 截断
//   - 输出是确定的：同样的输入与配置得到同样的顺序
type Ranker struct {
	current      atomic.Pointer[snapshot]
	features     core.FeatureStore
	availability core.Availability
	now          func() time.Time
	logger       zerolog.Logger
}

// Option 配置 Ranker
type Option func(*Ranker)

func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Ranker) { r.logger = logging.Component(logger, "rank") }
}

// NewRanker 创建排序器，配置非法时返回错误。features 与 availability 可为空。
func NewRanker(cfg Config, features core.FeatureStore, availability core.Availability, opts ...Option) (*Ranker, error) {
	r := &Ranker{
		features:     features,
		availability: availability,
		now:          time.Now,
		logger:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload 校验并原子替换配置。校验失败时保留旧配置。
func (r *Ranker) Reload(cfg Config) error {
	if err := validation.Struct(core.ModuleRank, cfg); err != nil {
		return err
	}
	if cfg.Weights.Sum() <= 0 {
		return core.ValidationError(core.ModuleRank, "ranking weights must not all be zero")
	}
	exprs, err := filter.NewExprFilter(cfg.FilterExprs...)
	if err != nil {
		return err
	}
	r.current.Store(&snapshot{cfg: cfg, exprs: exprs})
	r.logger.Info().
		Float64("w_strategy", cfg.Weights.Strategy).
		Float64("w_affinity", cfg.Weights.Affinity).
		Float64("w_popularity", cfg.Weights.Popularity).
		Float64("w_recency", cfg.Weights.Recency).
		Msg("ranking config loaded")
	return nil
}

// Config 返回当前生效的配置。
func (r *Ranker) Config() Config {
	return r.current.Load().cfg
}

func (r *Ranker) pipeline(s *snapshot) *pipeline.Pipeline {
	return &pipeline.Pipeline{Nodes: []pipeline.Node{
		&HydrateNode{Features: r.features, Logger: r.logger},
		&filter.FilterNode{
			Logger: r.logger,
			Filters: []filter.Filter{
				filter.NewExcludeFilter(),
				&filter.InStockFilter{Availability: r.availability},
				&filter.PreferenceFilter{Size: s.cfg.SizeFilter, Gender: s.cfg.GenderFilter},
				s.exprs,
			},
		},
		&BlendNode{Weights: s.cfg.Weights, RecencyWindow: s.cfg.RecencyWindow, Now: r.now},
		&rerank.Diversity{K: s.cfg.DiversityK},
		&rerank.TopNNode{},
	}}
}

// Rank 对候选排序，返回不超过 Limit 个结果；候选不足时全部返回。
func (r *Ranker) Rank(ctx context.Context, candidates core.CandidateSet, profile *core.UserProfile, c Constraints) (*core.RankedResult, error) {
	if c.Limit <= 0 {
		return nil, core.ValidationError(core.ModuleRank, "limit must be positive, got %d", c.Limit)
	}
	s := r.current.Load()
	rctx := &core.RecommendContext{
		Profile: profile,
		Exclude: c.Exclude,
		Limit:   c.Limit,
	}
	if profile != nil {
		rctx.UserID = profile.UserID
	}

	items, err := r.pipeline(s).Run(ctx, rctx, dedupe(candidates))
	if err != nil {
		return nil, err
	}

	result := &core.RankedResult{Items: make([]core.RankedItem, 0, len(items))}
	for _, it := range items {
		result.Items = append(result.Items, core.RankedItem{
			ProductID: it.ID,
			Score:     it.Score,
			Reasons:   reasons(it, s.cfg),
		})
	}
	return result, nil
}

// dedupe 保证同一商品只出现一次，保留第一次出现。返回副本，排序不修改调用方的候选集。
func dedupe(cs core.CandidateSet) []*core.Item {
	seen := make(map[string]struct{}, len(cs))
	out := make([]*core.Item, 0, len(cs))
	for _, it := range cs {
		if it == nil {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it.Clone())
	}
	return out
}

// reasons 由召回来源与排序分量生成推荐理由。
func reasons(it *core.Item, cfg Config) []string {
	out := append([]string{}, it.Sources...)
	if it.Features[FeatureAffinity] >= cfg.InterestMatchThreshold && it.Features[FeatureAffinity] > 0 {
		out = append(out, core.ReasonInterestMatch)
	}
	if it.Features[FeatureRecency] >= cfg.NewArrivalThreshold && it.Features[FeatureRecency] > 0 {
		out = append(out, core.ReasonNewArrival)
	}
	return out
}
