// Package config 加载服务配置：结构体默认值 → YAML 文件 → 环境变量，逐层覆盖。
package config

import (
	"time"

	"github.com/rushteam/lookbook/bundle"
	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/feature"
	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/pkg/validation"
	"github.com/rushteam/lookbook/rank"
	"github.com/rushteam/lookbook/recall"
	"github.com/rushteam/lookbook/recommend"
	"github.com/rushteam/lookbook/server"
	"github.com/rushteam/lookbook/store"
)

// 存储后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendKV     = "kv"
	BackendFeast  = "feast"
)

// Config 是服务的完整配置。
type Config struct {
	Server    server.Config    `koanf:"server"`
	Logging   logging.Config   `koanf:"logging"`
	Store     StoreConfig      `koanf:"store"`
	Features  FeaturesConfig   `koanf:"features"`
	Ledger    LedgerConfig     `koanf:"ledger"`
	Recall    recall.Config    `koanf:"recall"`
	Rank      rank.Config      `koanf:"rank"`
	Bundle    bundle.Config    `koanf:"bundle"`
	Recommend recommend.Config `koanf:"recommend"`

	// SeedPath 启动时导入的目录种子文件，为空时跳过
	SeedPath string `koanf:"seed_path"`
}

// StoreConfig 键值存储配置：热门榜单、共现表、库存、KV 特征。
type StoreConfig struct {
	Backend string            `koanf:"backend" validate:"oneof=memory redis"`
	Redis   store.RedisConfig `koanf:"redis"`
}

// FeaturesConfig 特征存储配置
type FeaturesConfig struct {
	Backend string              `koanf:"backend" validate:"oneof=kv feast"`
	Feast   feature.FeastConfig `koanf:"feast"`
	Guard   feature.GuardConfig `koanf:"guard"`
	// CacheSize 本地缓存条目数，0 表示不缓存
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

// LedgerConfig 交互流水配置
type LedgerConfig struct {
	Backend string              `koanf:"backend" validate:"oneof=memory badger"`
	Badger  ledger.BadgerConfig `koanf:"badger"`
	Profile ledger.Config       `koanf:"profile"`
}

// Default 返回默认配置：单机内存存储，适合开发与测试。
func Default() Config {
	return Config{
		Server:  server.DefaultConfig(),
		Logging: logging.Config{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: store.RedisConfig{
				Addr:         "127.0.0.1:6379",
				DialTimeout:  time.Second,
				ReadTimeout:  200 * time.Millisecond,
				WriteTimeout: 200 * time.Millisecond,
			},
		},
		Features: FeaturesConfig{
			Backend:   BackendKV,
			Feast:     feature.FeastConfig{Host: "127.0.0.1", Port: 6565, Project: "lookbook"},
			Guard:     feature.DefaultGuardConfig,
			CacheSize: 50000,
			CacheTTL:  5 * time.Minute,
		},
		Ledger: LedgerConfig{
			Backend: BackendMemory,
			Badger:  ledger.BadgerConfig{Dir: "data/ledger"},
			Profile: ledger.DefaultConfig(),
		},
		Recall:    recall.DefaultConfig(),
		Rank:      rank.DefaultConfig(),
		Bundle:    bundle.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	}
}

// Validate 校验整份配置。
func (c *Config) Validate() error {
	if err := validation.Struct(core.ModuleConfig, c); err != nil {
		return err
	}
	if c.Rank.Weights.Sum() <= 0 {
		return core.ValidationError(core.ModuleConfig, "rank.weights must not all be zero")
	}
	if c.Ledger.Backend == BackendBadger && c.Ledger.Badger.Dir == "" && !c.Ledger.Badger.InMemory {
		return core.ValidationError(core.ModuleConfig, "ledger.badger.dir is required")
	}
	if c.Features.Backend == BackendFeast && c.Features.Feast.Host == "" {
		return core.ValidationError(core.ModuleConfig, "features.feast.host is required")
	}
	return nil
}
