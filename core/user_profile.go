package core

import (
	"sort"
	"strings"
	"time"
)

// UserProfile 是用户画像的核心抽象。
//
// 一句话定义：用户画像 = 交互流水经时间衰减后的派生结果
//
// 它不是某一个 Node，而是：
//   - 由 Ledger 聚合生成，服务层只读
//   - 驱动召回（兴趣类目、兴趣向量、最近浏览）和排序（兴趣匹配）
//   - 被所有 Node 共享
//
// 设计要点：
//
//	维度          作用
//	显式偏好      尺码 / 性别过滤
//	长期兴趣      Recall / Rank 核心，按属性族归一化
//	短期行为      最近浏览，协同召回种子
//	已购          默认从 For You 中排除
type UserProfile struct {
	UserID string `json:"userID"`

	// 兴趣画像：key 为 "family:value" token，value 为非负权重。
	// 同一属性族内的权重之和不超过 1。
	Interests map[string]float64 `json:"interests"`

	// 最近浏览的商品，最新的在前，长度有上限
	RecentlyViewed []string `json:"recentlyViewed,omitempty"`

	// 回溯窗口内购买过的商品及最近一次购买时间
	Purchased map[string]time.Time `json:"purchased,omitempty"`

	// 显式偏好
	Preferences Preferences `json:"preferences"`

	// 交互商品 embedding 的衰减加权中心
	InterestEmbedding []float64 `json:"interestEmbedding,omitempty"`

	// 参与聚合的事件数
	EventCount int `json:"eventCount"`

	ComputedAt time.Time `json:"computedAt"`
}

// Preferences 是用户的显式偏好，来自特征存储。
type Preferences struct {
	Size   string `json:"size,omitempty" yaml:"size"`
	Gender string `json:"gender,omitempty" yaml:"gender"`
}

// NewUserProfile 创建一个空画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:    userID,
		Interests: make(map[string]float64),
		Purchased: make(map[string]time.Time),
	}
}

// IsColdStart 没有任何兴趣信号时视为冷启动。
func (p *UserProfile) IsColdStart() bool {
	if p == nil {
		return true
	}
	for _, w := range p.Interests {
		if w > 0 {
			return false
		}
	}
	return len(p.RecentlyViewed) == 0 && len(p.InterestEmbedding) == 0
}

// GetInterestWeight 获取 token 的兴趣权重。
func (p *UserProfile) GetInterestWeight(token string) float64 {
	if p == nil || p.Interests == nil {
		return 0
	}
	return p.Interests[token]
}

// HasPurchased 判断是否购买过某商品。
func (p *UserProfile) HasPurchased(productID string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Purchased[productID]
	return ok
}

// TopFamily 返回某属性族中权重最高的 n 个取值（不带前缀），权重相同按字典序。
func (p *UserProfile) TopFamily(family string, n int) []string {
	if p == nil || n <= 0 {
		return nil
	}
	type kv struct {
		value  string
		weight float64
	}
	prefix := family + ":"
	var list []kv
	for token, w := range p.Interests {
		if w <= 0 || !strings.HasPrefix(token, prefix) {
			continue
		}
		list = append(list, kv{value: token[len(prefix):], weight: w})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].weight != list[j].weight {
			return list[i].weight > list[j].weight
		}
		return list[i].value < list[j].value
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.value
	}
	return out
}

// TopCategories 返回权重最高的 n 个类目。
func (p *UserProfile) TopCategories(n int) []string {
	return p.TopFamily(FamilyCategory, n)
}

// Affinity 计算商品 token 与画像的匹配度，取各属性族权重的均值，范围 [0,1]。
func (p *UserProfile) Affinity(tokens []string) float64 {
	if p == nil || len(tokens) == 0 || len(p.Interests) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += p.Interests[t]
	}
	return sum / float64(len(tokens))
}

// Clone 返回深拷贝，调用方可以在副本上合并显式偏好而不影响缓存中的画像。
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Interests = make(map[string]float64, len(p.Interests))
	for k, v := range p.Interests {
		cp.Interests[k] = v
	}
	cp.Purchased = make(map[string]time.Time, len(p.Purchased))
	for k, v := range p.Purchased {
		cp.Purchased[k] = v
	}
	cp.RecentlyViewed = append([]string(nil), p.RecentlyViewed...)
	cp.InterestEmbedding = append([]float64(nil), p.InterestEmbedding...)
	return &cp
}
