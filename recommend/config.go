package recommend

import (
	"time"

	"github.com/rushteam/lookbook/core"
)

// Config 编排层配置
type Config struct {
	// MaxLimit 单次 For You 请求允许的最大条数
	MaxLimit int `koanf:"max_limit" validate:"gt=0"`
	// CandidateFactor 候选集大小 = limit × CandidateFactor
	CandidateFactor int `koanf:"candidate_factor" validate:"gte=1"`

	ForYouTTL   time.Duration `koanf:"for_you_ttl" validate:"gte=0"`
	LookTTL     time.Duration `koanf:"look_ttl" validate:"gte=0"`
	SimilarTTL  time.Duration `koanf:"similar_ttl" validate:"gte=0"`
	DegradedTTL time.Duration `koanf:"degraded_ttl" validate:"gte=0"`

	// ComputeTimeout 单次计算的上限，与调用方的取消无关
	ComputeTimeout time.Duration `koanf:"compute_timeout" validate:"gt=0"`

	// ReShowPurchased 为 true 时不排除已购商品
	ReShowPurchased bool `koanf:"reshow_purchased"`

	Refresh RefreshConfig `koanf:"refresh"`
}

// RefreshConfig 热门榜单刷新配置
type RefreshConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
	// Window 参与热度计算的流水窗口
	Window   time.Duration `koanf:"window" validate:"gt=0"`
	HalfLife time.Duration `koanf:"half_life" validate:"gt=0"`
	// KindWeights 各交互类型对热度的贡献，购买权重最高
	KindWeights map[string]float64 `koanf:"kind_weights" validate:"dive,gte=0"`
	// PriorWeight 目录先验（商品自带 popularity 特征）的权重
	PriorWeight float64 `koanf:"prior_weight" validate:"gte=0"`
	// BatchSize 读取目录特征的批大小
	BatchSize int `koanf:"batch_size" validate:"gt=0"`
	// CacheSweepInterval 结果缓存清理间隔
	CacheSweepInterval time.Duration `koanf:"cache_sweep_interval" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		MaxLimit:        100,
		CandidateFactor: 4,
		ForYouTTL:       2 * time.Minute,
		LookTTL:         5 * time.Minute,
		SimilarTTL:      10 * time.Minute,
		DegradedTTL:     15 * time.Second,
		ComputeTimeout:  2 * time.Second,
		Refresh: RefreshConfig{
			Interval: 10 * time.Minute,
			Window:   30 * 24 * time.Hour,
			HalfLife: 7 * 24 * time.Hour,
			KindWeights: map[string]float64{
				string(core.EventPurchase): 1.0,
				string(core.EventCartAdd):  0.5,
				string(core.EventFavorite): 0.3,
				string(core.EventView):     0.1,
				string(core.EventRemove):   0,
			},
			PriorWeight:        0.1,
			BatchSize:          200,
			CacheSweepInterval: time.Minute,
		},
	}
}
