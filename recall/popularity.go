package recall

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rushteam/lookbook/core"
)

// 热门榜单的 key 布局。
const (
	PopularityGlobalKey      = "pop:global"
	PopularityCategoryPrefix = "pop:cat:"
	PopularityCategoriesKey  = "pop:categories" // 有序集合：已写入的类目
)

// PopularityIndex 是按全局与类目维护的热门榜单，底层为有序集合。
// 全局榜单在内存中保留最近一次写入的快照，存储不可用时以快照兜底。
type PopularityIndex struct {
	kv       core.KeyValueStore
	snapshot atomic.Pointer[[]core.ScoredMember]
}

func NewPopularityIndex(kv core.KeyValueStore) *PopularityIndex {
	return &PopularityIndex{kv: kv}
}

func categoryKey(category string) string {
	return PopularityCategoryPrefix + strings.ToLower(category)
}

// Top 返回榜单前 n 项，category 为空时读取全局榜单。
func (p *PopularityIndex) Top(ctx context.Context, category string, n int) ([]core.ScoredMember, error) {
	if n <= 0 {
		return nil, nil
	}
	key := PopularityGlobalKey
	if category != "" {
		key = categoryKey(category)
	}
	members, err := p.kv.ZRangeWithScores(ctx, key, 0, int64(n-1))
	if category == "" && (err != nil || len(members) == 0) {
		if snap := p.Snapshot(); len(snap) > 0 {
			if len(snap) > n {
				snap = snap[:n]
			}
			return snap, nil
		}
	}
	if err != nil {
		return nil, core.UnavailableError(core.ModuleRecall, err, "popularity %s", key)
	}
	return members, nil
}

// Snapshot 返回最近一次写入的全局榜单。
func (p *PopularityIndex) Snapshot() []core.ScoredMember {
	if s := p.snapshot.Load(); s != nil {
		return *s
	}
	return nil
}

// Replace 用新的分数整体替换榜单，旧类目中不再出现的榜单会被删除。
func (p *PopularityIndex) Replace(ctx context.Context, global map[string]float64, byCategory map[string]map[string]float64) error {
	old, err := p.kv.ZRange(ctx, PopularityCategoriesKey, 0, -1)
	if err != nil && !core.IsStoreNotFound(err) {
		return core.UnavailableError(core.ModuleRecall, err, "list popularity categories")
	}

	if err := p.write(ctx, PopularityGlobalKey, global); err != nil {
		return err
	}
	if err := p.kv.Delete(ctx, PopularityCategoriesKey); err != nil {
		return core.UnavailableError(core.ModuleRecall, err, "reset popularity categories")
	}
	for category, scores := range byCategory {
		if err := p.write(ctx, categoryKey(category), scores); err != nil {
			return err
		}
		if err := p.kv.ZAdd(ctx, PopularityCategoriesKey, float64(len(scores)), strings.ToLower(category)); err != nil {
			return core.UnavailableError(core.ModuleRecall, err, "register popularity category")
		}
	}
	for _, category := range old {
		if _, ok := byCategory[category]; ok {
			continue
		}
		if err := p.kv.Delete(ctx, categoryKey(category)); err != nil {
			return core.UnavailableError(core.ModuleRecall, err, "drop popularity %s", category)
		}
	}

	snap := make([]core.ScoredMember, 0, len(global))
	for id, s := range global {
		snap = append(snap, core.ScoredMember{Member: id, Score: s})
	}
	sortMembers(snap)
	p.snapshot.Store(&snap)
	return nil
}

func (p *PopularityIndex) write(ctx context.Context, key string, scores map[string]float64) error {
	members := make([]core.ScoredMember, 0, len(scores))
	for id, s := range scores {
		members = append(members, core.ScoredMember{Member: id, Score: s})
	}
	if err := p.kv.ZReplace(ctx, key, members); err != nil {
		return core.UnavailableError(core.ModuleRecall, err, "write %s", key)
	}
	return nil
}

// CategoryPopularity 是类目热门召回源。
//   - 类目来自请求上下文，否则取画像中权重最高的类目
//   - 冷启动（没有类目）时返回全局热门
//   - 分数为榜单内归一化热度 × 类目相对权重
type CategoryPopularity struct {
	Index *PopularityIndex

	// TopCategories 使用的画像类目数，默认 3
	TopCategories int
	// Limit 每个类目读取的商品数，默认 50
	Limit int
}

func (r *CategoryPopularity) Name() string { return core.ReasonPopularity }

func (r *CategoryPopularity) categories(rctx *core.RecommendContext) map[string]float64 {
	out := make(map[string]float64)
	if len(rctx.Categories) > 0 {
		for _, c := range rctx.Categories {
			out[strings.ToLower(c)] = 1
		}
		return out
	}
	n := r.TopCategories
	if n <= 0 {
		n = 3
	}
	profile := rctx.GetUserProfile()
	top := profile.TopCategories(n)
	if len(top) == 0 {
		return out
	}
	maxW := profile.GetInterestWeight(core.Token(core.FamilyCategory, top[0]))
	for _, c := range top {
		out[c] = profile.GetInterestWeight(core.Token(core.FamilyCategory, c)) / maxW
	}
	return out
}

func (r *CategoryPopularity) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if r.Index == nil || rctx == nil {
		return nil, nil
	}
	limit := r.Limit
	if limit <= 0 {
		limit = 50
	}

	scores := make(map[string]float64)
	var lastErr error
	cats := r.categories(rctx)
	failures := 0
	for c, weight := range cats {
		members, err := r.Index.Top(ctx, c, limit)
		if err != nil {
			lastErr = err
			failures++
			continue
		}
		for id, s := range normalized(members) {
			if v := s * weight; v > scores[id] {
				scores[id] = v
			}
		}
	}
	if len(cats) > 0 && failures == len(cats) {
		return nil, lastErr
	}

	if len(scores) == 0 {
		members, err := r.Index.Top(ctx, "", limit)
		if err != nil {
			return nil, err
		}
		scores = normalized(members)
	}

	out := make([]*core.Item, 0, len(scores))
	for id, s := range scores {
		it := core.NewItem(id)
		it.RawScore = s
		it.Features["popularity"] = s
		out = append(out, it)
	}
	core.SortByRawScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// normalized 把榜单分数除以榜首分数，映射到 (0,1]。
func normalized(members []core.ScoredMember) map[string]float64 {
	out := make(map[string]float64, len(members))
	var maxScore float64
	for _, m := range members {
		maxScore = max(maxScore, m.Score)
	}
	for _, m := range members {
		if maxScore <= 0 {
			out[m.Member] = 0
			continue
		}
		if m.Score > 0 {
			out[m.Member] = m.Score / maxScore
		}
	}
	return out
}

// sortMembers 按分数降序、成员升序排序。
func sortMembers(ms []core.ScoredMember) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Member < ms[j].Member
	})
}
