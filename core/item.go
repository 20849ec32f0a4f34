package core

import "sort"

// 推荐理由 / 召回来源标签。
const (
	ReasonContentSimilarity = "content_similarity"
	ReasonCoOccurrence      = "co_occurrence"
	ReasonPopularity        = "popularity"
	ReasonInterestMatch     = "interest_match"
	ReasonNewArrival        = "new_arrival"
)

// Item 是推荐链路中的统一承载结构。
// RawScore 是召回阶段的策略分，Score 是排序后的最终分；Sources 与 Features 用于生成推荐理由。
type Item struct {
	ID       string
	Score    float64
	RawScore float64
	Sources  []string // 召回来源，按首次出现顺序
	Features map[string]float64
	Product  *ProductFeatures // 排序阶段补齐，可能为空
}

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Features: make(map[string]float64),
	}
}

// Clone 返回可独立修改的副本，Product 只读共享。
func (it *Item) Clone() *Item {
	c := *it
	c.Sources = append([]string(nil), it.Sources...)
	c.Features = make(map[string]float64, len(it.Features))
	for k, v := range it.Features {
		c.Features[k] = v
	}
	return &c
}

// AddSource 追加召回来源，已存在时忽略。
func (it *Item) AddSource(src string) {
	for _, s := range it.Sources {
		if s == src {
			return
		}
	}
	it.Sources = append(it.Sources, src)
}

// HasSource 判断是否来自某个召回源。
func (it *Item) HasSource(src string) bool {
	for _, s := range it.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// Category 返回补齐后的叶子类目。
func (it *Item) Category() string {
	return it.Product.Category()
}

// CandidateSet 是一次请求内的去重候选集合，按策略分降序、ID 升序排列。
type CandidateSet []*Item

// IDs 返回候选 ID 列表。
func (cs CandidateSet) IDs() []string {
	out := make([]string, len(cs))
	for i, it := range cs {
		out[i] = it.ID
	}
	return out
}

// SortByRawScore 按策略分降序、ID 升序稳定排序。
func SortByRawScore(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RawScore != items[j].RawScore {
			return items[i].RawScore > items[j].RawScore
		}
		return items[i].ID < items[j].ID
	})
}

// RankedItem 是最终推荐结果中的一项。
type RankedItem struct {
	ProductID string   `json:"productID"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}

// RankedResult 是排序器的输出，长度不超过请求的 limit。
type RankedResult struct {
	Items []RankedItem `json:"items"`
}

// BundleItem 是搭配中的一件单品。
type BundleItem struct {
	ProductID          string  `json:"productID"`
	CompatibilityScore float64 `json:"compatibilityScore"`
}

// Bundle 是围绕锚点商品的搭配结果，可以为空。
type Bundle struct {
	AnchorID string       `json:"anchorID"`
	Items    []BundleItem `json:"items"`
	Score    float64      `json:"score"`
}
