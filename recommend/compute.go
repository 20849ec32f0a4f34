package recommend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/rank"
	"github.com/rushteam/lookbook/recall"
)

// computeForYou 永远返回结果：个性化链路任何一步失败都退化为热门列表。
func (s *Service) computeForYou(ctx context.Context, userID string, limit int, logger zerolog.Logger) (resp *ForYouResponse) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("for you computation panicked, serving popular items")
			resp = &ForYouResponse{Items: s.popular(ctx, limit, nil, logger), Degraded: true}
		}
	}()

	profile, err := s.Ledger.DecayedProfile(ctx, userID, s.now())
	if err != nil {
		logger.Warn().Err(err).Msg("profile unavailable, serving popular items")
		return &ForYouResponse{Items: s.popular(ctx, limit, nil, logger), Degraded: true}
	}
	s.mergePreferences(ctx, profile, logger)

	exclude := make(map[string]struct{})
	if !s.cfg.ReShowPurchased {
		for id := range profile.Purchased {
			exclude[id] = struct{}{}
		}
	}

	candidates, err := s.Generator.Generate(ctx, profile, recall.GenerateContext{}, exclude, limit*s.cfg.CandidateFactor)
	if err != nil {
		logger.Warn().Err(err).Msg("candidate generation failed, serving popular items")
		return &ForYouResponse{Items: s.popular(ctx, limit, exclude, logger), Degraded: true}
	}
	result, err := s.Ranker.Rank(ctx, candidates, profile, rank.Constraints{Limit: limit, Exclude: exclude})
	if err != nil {
		logger.Warn().Err(err).Msg("ranking failed, serving popular items")
		return &ForYouResponse{Items: s.popular(ctx, limit, exclude, logger), Degraded: true}
	}
	if len(result.Items) == 0 {
		// 所有候选都被约束过滤掉，热门列表是正常的兜底策略
		return &ForYouResponse{Items: s.popular(ctx, limit, exclude, logger)}
	}

	logger.Debug().
		Int("candidates", len(candidates)).
		Int("items", len(result.Items)).
		Int("events", profile.EventCount).
		Bool("cold_start", profile.IsColdStart()).
		Msg("for you computed")
	return &ForYouResponse{Items: result.Items}
}

// mergePreferences 把特征存储中的显式偏好合并到画像副本。读取失败按偏好缺失处理。
func (s *Service) mergePreferences(ctx context.Context, profile *core.UserProfile, logger zerolog.Logger) {
	if s.Features == nil {
		return
	}
	uf, err := s.Features.GetUserFeatures(ctx, profile.UserID)
	if err != nil {
		if !core.IsNotFound(err) {
			logger.Warn().Err(err).Msg("user features unavailable, continuing without preferences")
		}
		return
	}
	if uf.Preferences.Size != "" {
		profile.Preferences.Size = uf.Preferences.Size
	}
	if uf.Preferences.Gender != "" {
		profile.Preferences.Gender = uf.Preferences.Gender
	}
	if len(profile.InterestEmbedding) == 0 && len(uf.Embedding) > 0 {
		profile.InterestEmbedding = append([]float64(nil), uf.Embedding...)
	}
}

// computeLook 只把参数错误与锚点不存在返回给调用方，其余故障退化为热门列表。
func (s *Service) computeLook(ctx context.Context, anchorID string, maxItems int, logger zerolog.Logger) (resp *LookResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("bundle composition panicked, serving popular items")
			resp, err = s.popularLook(ctx, anchorID, maxItems, logger), nil
		}
	}()

	b, err := s.Composer.Compose(ctx, anchorID, maxItems)
	if err != nil {
		if core.IsValidation(err) || core.IsNotFound(err) {
			return nil, err
		}
		logger.Warn().Err(err).Msg("bundle composition failed, serving popular items")
		return s.popularLook(ctx, anchorID, maxItems, logger), nil
	}
	return &LookResponse{AnchorID: b.AnchorID, Items: b.Items}, nil
}

func (s *Service) popularLook(ctx context.Context, anchorID string, maxItems int, logger zerolog.Logger) *LookResponse {
	ranked := s.popular(ctx, maxItems, map[string]struct{}{anchorID: {}}, logger)
	items := make([]core.BundleItem, len(ranked))
	for i, it := range ranked {
		// 兜底结果没有计算兼容度
		items[i] = core.BundleItem{ProductID: it.ProductID}
	}
	return &LookResponse{AnchorID: anchorID, Items: items, Degraded: true}
}

// popular 读取全局热门榜单，跳过排除项与已知缺货商品，分数按结果中的第一名归一化。
// 榜单不可用时返回空列表。
func (s *Service) popular(ctx context.Context, limit int, exclude map[string]struct{}, logger zerolog.Logger) (items []core.RankedItem) {
	items = []core.RankedItem{}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("popularity fallback panicked")
			items = []core.RankedItem{}
		}
	}()

	members, err := s.Popularity.Top(ctx, "", limit+len(exclude))
	if err != nil {
		logger.Warn().Err(err).Msg("popularity list unavailable")
		return items
	}
	var top float64
	for _, m := range members {
		if len(items) == limit {
			break
		}
		if _, skip := exclude[m.Member]; skip {
			continue
		}
		if s.Availability != nil {
			// 库存服务故障时保留商品
			if in, err := s.Availability.IsInStock(ctx, m.Member); err == nil && !in {
				continue
			}
		}
		if len(items) == 0 {
			top = m.Score
		}
		score := 0.0
		if top > 0 {
			score = m.Score / top
		}
		items = append(items, core.RankedItem{
			ProductID: m.Member,
			Score:     score,
			Reasons:   []string{core.ReasonPopularity},
		})
	}
	return items
}

// Popular 返回全局热门列表，用于冷启动页面与排障。
func (s *Service) Popular(ctx context.Context, limit int) ([]core.RankedItem, error) {
	if limit < 1 || limit > s.cfg.MaxLimit {
		return nil, core.ValidationError(core.ModuleRecommend, "limit must be in 1..%d, got %d", s.cfg.MaxLimit, limit)
	}
	return s.popular(ctx, limit, nil, s.logger.With().Str("request_id", RequestID(ctx)).Logger()), nil
}
