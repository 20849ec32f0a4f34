package core

import (
	"strconv"
	"strings"
	"time"
)

// 画像 token 的属性族前缀。UserProfile.Interests 的 key 形如 "category:dresses"。
const (
	FamilyCategory  = "category"
	FamilyColor     = "color"
	FamilyMaterial  = "material"
	FamilySeason    = "season"
	FamilyFormality = "formality"
	FamilyPriceTier = "price_tier"
)

// InterestFamilies 是参与画像归一化的属性族。
var InterestFamilies = []string{FamilyCategory, FamilyColor, FamilyMaterial, FamilySeason, FamilyFormality, FamilyPriceTier}

// Token 拼接属性族与取值，取值统一小写。
func Token(family, value string) string {
	return family + ":" + strings.ToLower(strings.TrimSpace(value))
}

// TokenFamily 返回 token 的属性族。
func TokenFamily(token string) string {
	if i := strings.IndexByte(token, ':'); i > 0 {
		return token[:i]
	}
	return ""
}

// ProductAttributes 是商品的风格属性。
type ProductAttributes struct {
	PriceTier   int    `json:"priceTier,omitempty" yaml:"priceTier"`
	ColorFamily string `json:"colorFamily,omitempty" yaml:"colorFamily"`
	Material    string `json:"material,omitempty" yaml:"material"`
	Season      string `json:"season,omitempty" yaml:"season"`
	Formality   string `json:"formality,omitempty" yaml:"formality"` // casual / smart / business / formal
}

var formalityLevels = map[string]int{"casual": 0, "smart": 1, "business": 2, "formal": 3}

// FormalityLevel 把正式度映射为 0..3，未知返回 -1。
func (a ProductAttributes) FormalityLevel() int {
	if lv, ok := formalityLevels[strings.ToLower(a.Formality)]; ok {
		return lv
	}
	return -1
}

// ProductFeatures 是特征存储提供的只读商品特征。
// 缺失或过期时引擎退化为仅按类目匹配，类目也缺失时只用策略分。
type ProductFeatures struct {
	ProductID    string            `json:"productID" yaml:"id"`
	CategoryPath []string          `json:"categoryPath,omitempty" yaml:"categoryPath"`
	Attributes   ProductAttributes `json:"attributes" yaml:"attributes"`
	Tags         []string          `json:"tags,omitempty" yaml:"tags"`
	Sizes        []string          `json:"sizes,omitempty" yaml:"sizes"`
	Gender       string            `json:"gender,omitempty" yaml:"gender"` // men / women / unisex
	Embedding    []float64         `json:"embedding,omitempty" yaml:"embedding"`
	Popularity   float64           `json:"popularity,omitempty" yaml:"popularity"`
	AddedAt      time.Time         `json:"addedAt,omitempty" yaml:"addedAt"`
}

// Category 返回叶子类目，没有类目时返回空串。
func (p *ProductFeatures) Category() string {
	if p == nil || len(p.CategoryPath) == 0 {
		return ""
	}
	return strings.ToLower(p.CategoryPath[len(p.CategoryPath)-1])
}

// HasTag 判断商品是否带某个标签（忽略大小写）。
func (p *ProductFeatures) HasTag(tag string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HasSize 判断商品是否有某个尺码；没有尺码信息的商品视为全尺码。
func (p *ProductFeatures) HasSize(size string) bool {
	if p == nil || len(p.Sizes) == 0 {
		return true
	}
	for _, s := range p.Sizes {
		if strings.EqualFold(s, size) {
			return true
		}
	}
	return false
}

// AttributeTokens 展开商品的画像 token。只有类目信息时只返回类目 token。
func (p *ProductFeatures) AttributeTokens() []string {
	if p == nil {
		return nil
	}
	tokens := make([]string, 0, 6)
	if c := p.Category(); c != "" {
		tokens = append(tokens, Token(FamilyCategory, c))
	}
	a := p.Attributes
	if a.ColorFamily != "" {
		tokens = append(tokens, Token(FamilyColor, a.ColorFamily))
	}
	if a.Material != "" {
		tokens = append(tokens, Token(FamilyMaterial, a.Material))
	}
	if a.Season != "" {
		tokens = append(tokens, Token(FamilySeason, a.Season))
	}
	if a.Formality != "" {
		tokens = append(tokens, Token(FamilyFormality, a.Formality))
	}
	if a.PriceTier > 0 {
		tokens = append(tokens, Token(FamilyPriceTier, strconv.Itoa(a.PriceTier)))
	}
	return tokens
}
