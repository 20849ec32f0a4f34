// Package recommend 是推荐编排层：For You、Complete the Look 与相似商品三个入口，
// 负责结果缓存、请求合并与降级。
package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/lookbook/bundle"
	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/feature"
	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/pkg/validation"
	"github.com/rushteam/lookbook/rank"
	"github.com/rushteam/lookbook/recall"
	"github.com/rushteam/lookbook/store"
)

const (
	opForYou  = "for_you"
	opLook    = "complete_the_look"
	opSimilar = "similar"
)

// ForYouResponse 是 For You 的结果。Degraded 为 true 表示走了热门兜底。
type ForYouResponse struct {
	Items    []core.RankedItem `json:"items"`
	Degraded bool              `json:"degraded"`
}

// LookResponse 是 Complete the Look 的结果。
type LookResponse struct {
	AnchorID string            `json:"anchorID"`
	Items    []core.BundleItem `json:"items"`
	Degraded bool              `json:"degraded"`
}

// Components 是编排层依赖的各模块。Availability 只用于兜底列表，可为空。
type Components struct {
	Ledger       *ledger.Ledger
	Features     core.FeatureStore
	Availability core.Availability
	Generator    *recall.Generator
	Ranker       *rank.Ranker
	Composer     *bundle.Composer
	Popularity   *recall.PopularityIndex

	// Vectors 是商品 embedding 索引，商品失效时据此重建该商品的向量，可为空
	Vectors core.VectorIndex

	// Checks 是 Health 额外执行的组件探活，key 为组件名，可为空
	Checks map[string]Check
}

// Service 是推荐编排入口。
//
// 设计原则：
//   - 只有参数错误（以及搭配锚点不存在）返回给调用方，其余故障一律降级为热门列表
//   - 相同请求在途时合并为一次计算，计算与调用方的取消解耦，完成后照常写缓存
//   - 用户产生新交互时按用户递增缓存代数，下一次请求必然重新计算
//   - 结果只读，调用方不得修改返回值
type Service struct {
	cfg Config
	Components

	forYou  *store.ResultCache[*ForYouResponse]
	looks   *store.ResultCache[*LookResponse]
	similar *store.ResultCache[*SimilarResponse]
	group   singleflight.Group

	now    func() time.Time
	logger zerolog.Logger
}

// Option 配置 Service
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logging.Component(logger, "recommend") }
}

// NewService 创建编排服务，并订阅 Ledger 的写入事件用于缓存失效。
func NewService(cfg Config, c Components, opts ...Option) (*Service, error) {
	if err := validation.Struct(core.ModuleRecommend, cfg); err != nil {
		return nil, err
	}
	if c.Ledger == nil || c.Generator == nil || c.Ranker == nil || c.Composer == nil || c.Popularity == nil {
		return nil, core.ValidationError(core.ModuleRecommend, "ledger, generator, ranker, composer and popularity are required")
	}
	s := &Service{
		cfg:        cfg,
		Components: c,
		forYou:     store.NewResultCache[*ForYouResponse](),
		looks:      store.NewResultCache[*LookResponse](),
		similar:    store.NewResultCache[*SimilarResponse](),
		now:        time.Now,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	c.Ledger.OnRecord(func(ev core.InteractionEvent) {
		s.forYou.Invalidate(ev.UserID)
	})
	return s, nil
}

// RecommendForYou 返回用户的个性化推荐。
func (s *Service) RecommendForYou(ctx context.Context, userID string, limit int) (*ForYouResponse, error) {
	start := time.Now()
	if err := validation.Var(core.ModuleRecommend, "userID", userID, "required,entityid"); err != nil {
		observe(opForYou, "invalid", start)
		return nil, err
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		observe(opForYou, "invalid", start)
		return nil, core.ValidationError(core.ModuleRecommend, "limit must be in 1..%d, got %d", s.cfg.MaxLimit, limit)
	}

	key := fmt.Sprintf("foryou:%s:%d", userID, limit)
	if resp, ok := s.forYou.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(opForYou, "hit").Inc()
		observe(opForYou, outcome(resp.Degraded), start)
		return resp, nil
	}
	metrics.CacheLookups.WithLabelValues(opForYou, "miss").Inc()

	logger := s.logger.With().Str("request_id", RequestID(ctx)).Str("user", userID).Logger()
	// 在途计算只与相同数据版本的请求合并：写入事件之后的请求不会拿到写入之前开始的结果
	stamp := s.forYou.Stamp(userID)
	resp, err := coalesce(ctx, s, key+"@"+stamp.Version(), func(cctx context.Context) (*ForYouResponse, error) {
		resp := s.computeForYou(cctx, userID, limit, logger)
		ttl := s.cfg.ForYouTTL
		if resp.Degraded {
			ttl = s.cfg.DegradedTTL
		}
		s.forYou.Set(key, resp, stamp, ttl)
		return resp, nil
	})
	if err != nil {
		observe(opForYou, "error", start)
		return nil, err
	}
	observe(opForYou, outcome(resp.Degraded), start)
	return resp, nil
}

// CompleteTheLook 返回锚点商品的搭配。锚点没有特征时返回 NOT_FOUND。
func (s *Service) CompleteTheLook(ctx context.Context, anchorID string, maxItems int) (*LookResponse, error) {
	start := time.Now()
	if err := validation.Var(core.ModuleRecommend, "anchorID", anchorID, "required,entityid"); err != nil {
		observe(opLook, "invalid", start)
		return nil, err
	}
	if maxItems < 1 || maxItems > bundle.MaxItems {
		observe(opLook, "invalid", start)
		return nil, core.ValidationError(core.ModuleRecommend, "maxItems must be in 1..%d, got %d", bundle.MaxItems, maxItems)
	}

	key := fmt.Sprintf("look:%s:%d", anchorID, maxItems)
	if resp, ok := s.looks.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(opLook, "hit").Inc()
		observe(opLook, outcome(resp.Degraded), start)
		return resp, nil
	}
	metrics.CacheLookups.WithLabelValues(opLook, "miss").Inc()

	logger := s.logger.With().Str("request_id", RequestID(ctx)).Str("anchor", anchorID).Logger()
	stamp := s.looks.Stamp(anchorID)
	resp, err := coalesce(ctx, s, key+"@"+stamp.Version(), func(cctx context.Context) (*LookResponse, error) {
		resp, err := s.computeLook(cctx, anchorID, maxItems, logger)
		if err != nil {
			return nil, err
		}
		ttl := s.cfg.LookTTL
		if resp.Degraded {
			ttl = s.cfg.DegradedTTL
		}
		s.looks.Set(key, resp, stamp, ttl)
		return resp, nil
	})
	switch {
	case err == nil:
		observe(opLook, outcome(resp.Degraded), start)
		return resp, nil
	case core.IsNotFound(err):
		observe(opLook, "not_found", start)
	case core.IsValidation(err):
		observe(opLook, "invalid", start)
	default:
		observe(opLook, "error", start)
	}
	return nil, err
}

// Record 写入一条交互，并使该用户的 For You 缓存失效。
func (s *Service) Record(ctx context.Context, ev core.InteractionEvent) error {
	return s.Ledger.Record(ctx, ev)
}

// productInvalidator 是支持按商品失效的特征缓存（feature.CachedStore）。
type productInvalidator interface {
	InvalidateProduct(productID string)
}

// InvalidateProduct 在商品目录变更后调用：清掉特征缓存中的该商品，按最新特征重建其向量，
// 并使所有推荐与搭配结果失效（商品可能出现在任何结果里）。
// 商品已下架（特征不存在）时从向量索引中移除；特征服务不可用时保留旧向量。
func (s *Service) InvalidateProduct(ctx context.Context, productID string) {
	if inv, ok := s.Features.(productInvalidator); ok {
		inv.InvalidateProduct(productID)
	}
	if s.Vectors != nil {
		if err := s.reindex(ctx, productID); err != nil {
			s.logger.Warn().Err(err).Str("product", productID).Msg("product embedding not reindexed")
		}
	}
	s.forYou.InvalidateAll()
	s.looks.InvalidateAll()
	s.similar.InvalidateAll()
	s.logger.Info().Str("product", productID).Msg("product invalidated")
}

func (s *Service) reindex(ctx context.Context, productID string) error {
	pf, err := s.Features.GetProductFeatures(ctx, productID)
	switch {
	case core.IsNotFound(err):
		return s.Vectors.Delete(ctx, feature.ProductCollection, productID)
	case err != nil:
		return err
	case len(pf.Embedding) == 0:
		return s.Vectors.Delete(ctx, feature.ProductCollection, productID)
	}
	return s.Vectors.Upsert(ctx, feature.ProductCollection, productID, pf.Embedding)
}

// CacheStats 返回各类结果缓存的命中统计。
func (s *Service) CacheStats() map[string]store.CacheStats {
	return map[string]store.CacheStats{
		opForYou:  s.forYou.Stats(),
		opLook:    s.looks.Stats(),
		opSimilar: s.similar.Stats(),
	}
}

// SweepCaches 删除过期与失效的缓存条目。
func (s *Service) SweepCaches() int {
	return s.forYou.Sweep() + s.looks.Sweep() + s.similar.Sweep()
}

// coalesce 合并相同 key 的在途计算。计算运行在脱离调用方取消的 ctx 上，
// 调用方提前离开时返回 UNAVAILABLE，计算继续完成并写入缓存。
func coalesce[T any](ctx context.Context, s *Service, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ComputeTimeout)
		defer cancel()
		return fn(cctx)
	})
	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, core.UnavailableError(core.ModuleRecommend, ctx.Err(), "request %s abandoned", key)
	}
}

func outcome(degraded bool) string {
	if degraded {
		return "degraded"
	}
	return "ok"
}

func observe(op, result string, start time.Time) {
	metrics.RecommendRequests.WithLabelValues(op, result).Inc()
	metrics.RecommendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
