package recall

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/logging"
)

// Config 候选生成配置
type Config struct {
	PerStrategyLimit int           `koanf:"per_strategy_limit" validate:"gt=0"`
	StrategyTimeout  time.Duration `koanf:"strategy_timeout" validate:"gt=0"`
	MaxConcurrent    int           `koanf:"max_concurrent" validate:"gte=0"`
	// CoOccurrenceSeeds 最近浏览种子数
	CoOccurrenceSeeds int `koanf:"co_occurrence_seeds" validate:"gte=0"`
	// PopularityCategories 类目热门使用的画像类目数
	PopularityCategories int `koanf:"popularity_categories" validate:"gte=0"`
}

// DefaultConfig 默认配置：每个策略 50 个候选，300ms 超时。
func DefaultConfig() Config {
	return Config{
		PerStrategyLimit:     50,
		StrategyTimeout:      300 * time.Millisecond,
		CoOccurrenceSeeds:    5,
		PopularityCategories: 3,
	}
}

// GenerateContext 是候选生成的请求上下文。
type GenerateContext struct {
	AnchorID   string
	Categories []string
}

// Generator 是候选生成入口，组合多个策略并以 Fanout 并发执行。
type Generator struct {
	fanout *Fanout
}

// Dependencies 是内置策略需要的上游服务，为空的依赖对应的策略不启用。
type Dependencies struct {
	Vectors      core.VectorService
	Collection   string
	Features     core.FeatureStore
	Availability core.Availability
	CoOccurrence core.CoOccurrenceStore
	Popularity   *PopularityIndex
}

// NewGenerator 按依赖装配内置策略：内容相似、共现、类目热门。
func NewGenerator(cfg Config, deps Dependencies, logger zerolog.Logger) *Generator {
	var sources []Source
	if deps.Vectors != nil && deps.Features != nil {
		sources = append(sources, &ContentSimilarity{
			Vectors:      deps.Vectors,
			Features:     deps.Features,
			Availability: deps.Availability,
			Collection:   deps.Collection,
			TopK:         cfg.PerStrategyLimit,
		})
	}
	if deps.CoOccurrence != nil {
		sources = append(sources, &CoOccurrence{
			Table: deps.CoOccurrence,
			Seeds: cfg.CoOccurrenceSeeds,
			Limit: cfg.PerStrategyLimit,
		})
	}
	if deps.Popularity != nil {
		sources = append(sources, &CategoryPopularity{
			Index:         deps.Popularity,
			TopCategories: cfg.PopularityCategories,
			Limit:         cfg.PerStrategyLimit,
		})
	}
	return NewGeneratorWithSources(cfg, logger, sources...)
}

// NewGeneratorWithSources 使用自定义策略创建 Generator。
func NewGeneratorWithSources(cfg Config, logger zerolog.Logger, sources ...Source) *Generator {
	return &Generator{fanout: &Fanout{
		Sources:        sources,
		Timeout:        cfg.StrategyTimeout,
		PerSourceLimit: cfg.PerStrategyLimit,
		MaxConcurrent:  cfg.MaxConcurrent,
		Logger:         logging.Component(logger, "recall"),
	}}
}

// Fanout 返回底层 Node，用于直接装配到 Pipeline。
func (g *Generator) Fanout() *Fanout { return g.fanout }

// Generate 生成去重后的候选集合，按策略分降序、ID 升序，长度不超过 limit（limit<=0 表示不限制）。
// 所有策略都失败时返回空集合与 core.ErrAllStrategiesFailed。
func (g *Generator) Generate(
	ctx context.Context,
	profile *core.UserProfile,
	gctx GenerateContext,
	exclude map[string]struct{},
	limit int,
) (core.CandidateSet, error) {
	rctx := &core.RecommendContext{
		Profile:    profile,
		AnchorID:   gctx.AnchorID,
		Categories: gctx.Categories,
		Exclude:    exclude,
		Limit:      limit,
	}
	if profile != nil {
		rctx.UserID = profile.UserID
	}
	items, err := g.fanout.Recall(ctx, rctx)
	if err != nil {
		return core.CandidateSet{}, err
	}
	return core.CandidateSet(items), nil
}
