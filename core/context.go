package core

// RecommendContext 承载用户/场景信息，贯穿整个 Pipeline 透传。
// 每个请求独立创建，不在请求间共享。
type RecommendContext struct {
	UserID string

	// Profile 是本次请求使用的画像（已合并显式偏好），冷启动时为空画像
	Profile *UserProfile

	// AnchorID 是 "Complete the Look" 或相似推荐的锚点商品
	AnchorID string

	// Categories 是调用方给出的类目上下文，可为空
	Categories []string

	// Exclude 是本次请求必须排除的商品
	Exclude map[string]struct{}

	// Limit 是最终返回数量
	Limit int
}

// IsExcluded 判断商品是否在排除集合中。锚点商品始终被排除。
func (rctx *RecommendContext) IsExcluded(id string) bool {
	if rctx == nil {
		return false
	}
	if rctx.AnchorID != "" && id == rctx.AnchorID {
		return true
	}
	_, ok := rctx.Exclude[id]
	return ok
}

// GetUserProfile 获取画像，不会返回 nil。
func (rctx *RecommendContext) GetUserProfile() *UserProfile {
	if rctx.Profile == nil {
		rctx.Profile = NewUserProfile(rctx.UserID)
	}
	return rctx.Profile
}
