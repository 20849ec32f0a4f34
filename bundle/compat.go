package bundle

import (
	"strings"

	"github.com/rushteam/lookbook/core"
)

// 中性色与任何颜色都能搭配。
var neutralColors = map[string]bool{
	"black": true, "white": true, "grey": true, "gray": true, "navy": true,
	"beige": true, "cream": true, "brown": true, "denim": true, "camel": true,
}

// 撞色组合，顺序无关。
var clashingColors = map[[2]string]bool{
	{"orange", "red"}:    true,
	{"pink", "red"}:      true,
	{"green", "red"}:     true,
	{"orange", "pink"}:   true,
	{"orange", "purple"}: true,
	{"green", "purple"}:  true,
}

// 相反的季节。
var opposingSeasons = map[[2]string]bool{
	{"summer", "winter"}: true,
	{"autumn", "spring"}: true,
	{"fall", "spring"}:   true,
}

func pair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// ColorScore 返回两种色系的搭配分。
func ColorScore(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	switch {
	case a == "" || b == "":
		return 0.7
	case neutralColors[a] || neutralColors[b]:
		return 1
	case a == b:
		return 0.8
	case clashingColors[pair(a, b)]:
		return 0.2
	default:
		return 0.6
	}
}

// SeasonScore 返回两个季节属性的搭配分，"all" 与任何季节匹配。
func SeasonScore(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	switch {
	case a == "" || b == "" || a == "all" || b == "all" || a == b:
		return 1
	case opposingSeasons[pair(a, b)]:
		return 0.2
	default:
		return 0.6
	}
}

// FormalityScore 按正式程度的距离打分：距离 0 为 1，距离 3 为 0。
func FormalityScore(a, b core.ProductAttributes) float64 {
	la, lb := a.FormalityLevel(), b.FormalityLevel()
	if la < 0 || lb < 0 {
		return 0.7
	}
	d := la - lb
	if d < 0 {
		d = -d
	}
	return 1 - float64(d)/3
}

// Compatibility 计算候选与锚点的属性兼容度，范围 [0,1]。
// 色系权重 0.4，季节 0.3，正式程度 0.3。
func Compatibility(anchor, cand *core.ProductFeatures) float64 {
	if anchor == nil || cand == nil {
		return 0
	}
	a, c := anchor.Attributes, cand.Attributes
	return 0.4*ColorScore(a.ColorFamily, c.ColorFamily) +
		0.3*SeasonScore(a.Season, c.Season) +
		0.3*FormalityScore(a, c)
}
