package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pkg/validation"
	"github.com/rushteam/lookbook/rank"
	"github.com/rushteam/lookbook/recall"
)

// SimilarResponse 是相似商品的结果。
type SimilarResponse struct {
	ProductID string            `json:"productID"`
	Items     []core.RankedItem `json:"items"`
	Degraded  bool              `json:"degraded"`
}

// Similar 返回与商品相似的商品：以它为锚点做内容相似、共现与同类目热门召回，
// 再走与 For You 相同的排序链路（没有个人画像）。商品没有特征时返回 NOT_FOUND。
func (s *Service) Similar(ctx context.Context, productID string, limit int) (*SimilarResponse, error) {
	start := time.Now()
	if err := validation.Var(core.ModuleRecommend, "productID", productID, "required,entityid"); err != nil {
		observe(opSimilar, "invalid", start)
		return nil, err
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		observe(opSimilar, "invalid", start)
		return nil, core.ValidationError(core.ModuleRecommend, "limit must be in 1..%d, got %d", s.cfg.MaxLimit, limit)
	}

	key := fmt.Sprintf("similar:%s:%d", productID, limit)
	if resp, ok := s.similar.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(opSimilar, "hit").Inc()
		observe(opSimilar, outcome(resp.Degraded), start)
		return resp, nil
	}
	metrics.CacheLookups.WithLabelValues(opSimilar, "miss").Inc()

	logger := s.logger.With().Str("request_id", RequestID(ctx)).Str("product", productID).Logger()
	stamp := s.similar.Stamp(productID)
	resp, err := coalesce(ctx, s, key+"@"+stamp.Version(), func(cctx context.Context) (*SimilarResponse, error) {
		resp, err := s.computeSimilar(cctx, productID, limit, logger)
		if err != nil {
			return nil, err
		}
		ttl := s.cfg.SimilarTTL
		if resp.Degraded {
			ttl = s.cfg.DegradedTTL
		}
		s.similar.Set(key, resp, stamp, ttl)
		return resp, nil
	})
	switch {
	case err == nil:
		observe(opSimilar, outcome(resp.Degraded), start)
		return resp, nil
	case core.IsNotFound(err):
		observe(opSimilar, "not_found", start)
	default:
		observe(opSimilar, "error", start)
	}
	return nil, err
}

func (s *Service) computeSimilar(ctx context.Context, productID string, limit int, logger zerolog.Logger) (resp *SimilarResponse, err error) {
	exclude := map[string]struct{}{productID: {}}
	degraded := func() *SimilarResponse {
		return &SimilarResponse{ProductID: productID, Items: s.popular(ctx, limit, exclude, logger), Degraded: true}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("similar products panicked, serving popular items")
			resp, err = degraded(), nil
		}
	}()

	gctx := recall.GenerateContext{AnchorID: productID}
	if s.Features != nil {
		anchor, err := s.Features.GetProductFeatures(ctx, productID)
		switch {
		case core.IsNotFound(err):
			return nil, err
		case err != nil:
			logger.Warn().Err(err).Msg("anchor features unavailable, serving popular items")
			return degraded(), nil
		}
		if c := anchor.Category(); c != "" {
			gctx.Categories = []string{c}
		}
	}

	candidates, err := s.Generator.Generate(ctx, nil, gctx, exclude, limit*s.cfg.CandidateFactor)
	if err != nil {
		logger.Warn().Err(err).Msg("candidate generation failed, serving popular items")
		return degraded(), nil
	}
	result, err := s.Ranker.Rank(ctx, candidates, nil, rank.Constraints{Limit: limit, Exclude: exclude})
	if err != nil {
		logger.Warn().Err(err).Msg("ranking failed, serving popular items")
		return degraded(), nil
	}
	if len(result.Items) == 0 {
		return &SimilarResponse{ProductID: productID, Items: s.popular(ctx, limit, exclude, logger)}, nil
	}
	return &SimilarResponse{ProductID: productID, Items: result.Items}, nil
}
