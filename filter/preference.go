package filter

import (
	"context"
	"strings"

	"github.com/rushteam/lookbook/core"
)

// PreferenceFilter 按用户显式偏好过滤：没有用户尺码的商品、性别不匹配的商品。
// 商品未声明尺码或性别时不过滤，unisex 匹配任意性别。
type PreferenceFilter struct {
	Size   bool
	Gender bool
}

func (f *PreferenceFilter) Name() string {
	return "filter.preference"
}

func (f *PreferenceFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	p := item.Product
	if p == nil || rctx == nil || rctx.Profile == nil {
		return false, nil
	}
	prefs := rctx.Profile.Preferences
	if f.Size && prefs.Size != "" && !p.HasSize(prefs.Size) {
		return true, nil
	}
	if f.Gender && prefs.Gender != "" && p.Gender != "" &&
		!strings.EqualFold(p.Gender, "unisex") && !strings.EqualFold(p.Gender, prefs.Gender) {
		return true, nil
	}
	return false, nil
}
