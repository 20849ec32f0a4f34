package recommend

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/recall"
)

// PopularityRefresher 定期从交互流水重算热门榜单，作为 suture 服务运行。
//
// 热度 = Σ 交互权重 × 0.5^(age/半衰期) + PriorWeight × 商品目录热度。
// 启动时立即计算一次用于预热，之后每 Interval 重算；失败只记录日志，下个周期重试。
type PopularityRefresher struct {
	cfg      RefreshConfig
	ledger   *ledger.Ledger
	features core.FeatureStore
	index    *recall.PopularityIndex
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPopularityRefresher 创建刷新任务。features 可为空，此时没有目录先验与类目榜单。
func NewPopularityRefresher(cfg RefreshConfig, l *ledger.Ledger, features core.FeatureStore, index *recall.PopularityIndex, logger zerolog.Logger) *PopularityRefresher {
	return &PopularityRefresher{
		cfg:      cfg,
		ledger:   l,
		features: features,
		index:    index,
		now:      time.Now,
		logger:   logging.Component(logger, "popularity"),
	}
}

func (r *PopularityRefresher) Serve(ctx context.Context) error {
	r.refreshLogged(ctx)
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshLogged(ctx)
		}
	}
}

func (r *PopularityRefresher) String() string { return "popularity-refresher" }

func (r *PopularityRefresher) refreshLogged(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("popularity refresh failed")
	}
}

// Refresh 重算并整体替换热门榜单。
func (r *PopularityRefresher) Refresh(ctx context.Context) error {
	start := r.now()
	scores, err := r.interactionScores(ctx, start)
	if err != nil {
		metrics.PopularityRefreshes.WithLabelValues("error").Inc()
		return err
	}

	products := r.catalog(ctx, scores)
	byCategory := make(map[string]map[string]float64)
	for id, pf := range products {
		scores[id] += r.cfg.PriorWeight * pf.Popularity
		category := pf.Category()
		if category == "" || scores[id] <= 0 {
			continue
		}
		if byCategory[category] == nil {
			byCategory[category] = make(map[string]float64)
		}
		byCategory[category][id] = scores[id]
	}
	for id, s := range scores {
		if s <= 0 {
			delete(scores, id)
		}
	}

	if err := r.index.Replace(ctx, scores, byCategory); err != nil {
		metrics.PopularityRefreshes.WithLabelValues("error").Inc()
		return err
	}
	metrics.PopularityRefreshes.WithLabelValues("ok").Inc()
	metrics.PopularityLastSuccess.SetToCurrentTime()
	r.logger.Info().
		Int("products", len(scores)).
		Int("categories", len(byCategory)).
		Dur("took", r.now().Sub(start)).
		Msg("popularity refreshed")
	return nil
}

func (r *PopularityRefresher) interactionScores(ctx context.Context, now time.Time) (map[string]float64, error) {
	scores := make(map[string]float64)
	hl := float64(r.cfg.HalfLife)
	err := r.ledger.Scan(ctx, now.Add(-r.cfg.Window), func(ev core.InteractionEvent) error {
		w := r.cfg.KindWeights[string(ev.Kind)]
		if w <= 0 {
			return nil
		}
		age := now.Sub(ev.Timestamp)
		if age < 0 {
			return nil
		}
		scores[ev.ProductID] += w * math.Pow(0.5, float64(age)/hl)
		return nil
	})
	if err != nil {
		return nil, core.UnavailableError(core.ModuleRecommend, err, "scan ledger for popularity")
	}
	return scores, nil
}

// catalog 读取目录与有交互商品的特征。目录不可枚举或特征读取失败时返回已读到的部分。
func (r *PopularityRefresher) catalog(ctx context.Context, scores map[string]float64) map[string]*core.ProductFeatures {
	out := make(map[string]*core.ProductFeatures)
	if r.features == nil {
		return out
	}
	seen := make(map[string]struct{}, len(scores))
	ids := make([]string, 0, len(scores))
	for id := range scores {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	listed, err := r.features.ListProductIDs(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("catalog listing unavailable, refreshing from interactions only")
	}
	for _, id := range listed {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	size := r.cfg.BatchSize
	if size <= 0 {
		size = len(ids)
	}
	for lo := 0; lo < len(ids); lo += size {
		hi := min(lo+size, len(ids))
		got, err := r.features.BatchGetProductFeatures(ctx, ids[lo:hi])
		if err != nil {
			r.logger.Warn().Err(err).Int("batch", lo/size).Msg("catalog features unavailable for batch")
			continue
		}
		for id, pf := range got {
			out[id] = pf
		}
	}
	return out
}

// CacheSweeper 定期清理结果缓存中的过期条目。
type CacheSweeper struct {
	service  *Service
	interval time.Duration
}

func NewCacheSweeper(s *Service) *CacheSweeper {
	interval := s.cfg.Refresh.CacheSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &CacheSweeper{service: s, interval: interval}
}

func (c *CacheSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.service.SweepCaches(); n > 0 {
				c.service.logger.Debug().Int("removed", n).Msg("result cache swept")
			}
		}
	}
}

func (c *CacheSweeper) String() string { return "result-cache-sweeper" }
