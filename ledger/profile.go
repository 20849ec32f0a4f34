package ledger

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/validation"
)

// interaction 是一个商品在回溯窗口内折叠后的交互。
type interaction struct {
	productID  string
	kind       core.EventKind
	at         time.Time // 最高优先级类型的最近一次时间
	lastSeen   time.Time // 任意类型的最近一次时间
	categories []string  // 最近一次事件携带的类目上下文
}

// DecayedProfile 计算用户在 asOf 时刻的衰减画像。asOf 为空时使用当前时间。
// 结果按用户缓存 ProfileTTL，新事件写入后失效；返回值可以被调用方修改。
func (l *Ledger) DecayedProfile(ctx context.Context, userID string, asOf time.Time) (*core.UserProfile, error) {
	if err := validation.Var(core.ModuleLedger, "userID", userID, "required,entityid"); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = l.now()
	}

	version := l.Version(userID)
	if v, ok := l.profiles.Load(userID); ok {
		c := v.(*cachedProfile)
		if c.version == version && !asOf.Before(c.asOf) && asOf.Sub(c.asOf) < l.cfg.ProfileTTL {
			return c.profile.Clone(), nil
		}
	}

	events, err := l.log.Events(ctx, userID, asOf.Add(-l.cfg.Lookback))
	if err != nil {
		return nil, core.UnavailableError(core.ModuleLedger, err, "read events for %s", userID)
	}
	profile := l.aggregate(ctx, userID, events, asOf)

	if l.cfg.ProfileTTL > 0 && l.Version(userID) == version {
		l.profiles.Store(userID, &cachedProfile{profile: profile, version: version, asOf: asOf})
	}
	return profile.Clone(), nil
}

// collapse 把事件按商品折叠为优先级最高的交互类型。
func collapse(events []core.InteractionEvent, asOf time.Time) (map[string]*interaction, int) {
	out := make(map[string]*interaction)
	used := 0
	for _, ev := range events {
		if ev.Timestamp.After(asOf) {
			continue
		}
		used++
		it, ok := out[ev.ProductID]
		if !ok {
			it = &interaction{productID: ev.ProductID, kind: ev.Kind, at: ev.Timestamp}
			out[ev.ProductID] = it
		}
		switch {
		case ev.Kind.Priority() > it.kind.Priority():
			it.kind, it.at = ev.Kind, ev.Timestamp
		case ev.Kind == it.kind && ev.Timestamp.After(it.at):
			it.at = ev.Timestamp
		}
		if !ev.Timestamp.Before(it.lastSeen) {
			it.lastSeen = ev.Timestamp
			if ev.Context != nil && len(ev.Context.Categories) > 0 {
				it.categories = ev.Context.Categories
			}
		}
	}
	return out, used
}

// decay 返回 age 对应的衰减系数 0.5^(age/halfLife)。
func decay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func (l *Ledger) aggregate(ctx context.Context, userID string, events []core.InteractionEvent, asOf time.Time) *core.UserProfile {
	profile := core.NewUserProfile(userID)
	profile.ComputedAt = asOf

	interactions, used := collapse(events, asOf)
	profile.EventCount = used
	if len(interactions) == 0 {
		return profile
	}

	ids := make([]string, 0, len(interactions))
	for id := range interactions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products := map[string]*core.ProductFeatures{}
	if l.features != nil {
		got, err := l.features.BatchGetProductFeatures(ctx, ids)
		if err != nil {
			l.logger.Warn().Err(err).Str("user_id", userID).Msg("product features unavailable, falling back to category context")
		} else {
			products = got
		}
	}

	raw := make(map[string]float64)
	var (
		centroid  []float64
		centroidW float64
	)
	for _, id := range ids {
		it := interactions[id]
		if it.kind == core.EventPurchase {
			profile.Purchased[id] = it.at
		}
		w := l.cfg.KindWeights[string(it.kind)] * decay(asOf.Sub(it.at), l.cfg.HalfLife)
		if w <= 0 {
			continue
		}

		pf := products[id]
		tokens := pf.AttributeTokens()
		if len(tokens) == 0 && len(it.categories) > 0 {
			tokens = []string{core.Token(core.FamilyCategory, it.categories[len(it.categories)-1])}
		}
		for _, t := range tokens {
			raw[t] += w
		}

		if pf != nil && len(pf.Embedding) > 0 {
			if centroid == nil {
				centroid = make([]float64, len(pf.Embedding))
			}
			if len(pf.Embedding) == len(centroid) {
				for i, x := range pf.Embedding {
					centroid[i] += w * x
				}
				centroidW += w
			}
		}
	}

	profile.Interests = normalize(raw)
	if centroidW > 0 {
		for i := range centroid {
			centroid[i] /= centroidW
		}
		profile.InterestEmbedding = centroid
	}
	profile.RecentlyViewed = recent(interactions, l.cfg.RecentlyViewedLimit)
	return profile
}

// normalize 按属性族归一化，每个族内权重之和为 1。
func normalize(raw map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	for t, w := range raw {
		sums[core.TokenFamily(t)] += w
	}
	out := make(map[string]float64, len(raw))
	for t, w := range raw {
		if s := sums[core.TokenFamily(t)]; s > 0 {
			out[t] = w / s
		}
	}
	return out
}

// recent 返回最近交互过的商品（remove 除外），最新的在前。
func recent(interactions map[string]*interaction, limit int) []string {
	list := make([]*interaction, 0, len(interactions))
	for _, it := range interactions {
		if it.kind != core.EventRemove {
			list = append(list, it)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].lastSeen.Equal(list[j].lastSeen) {
			return list[i].lastSeen.After(list[j].lastSeen)
		}
		return list[i].productID < list[j].productID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.productID
	}
	return out
}
