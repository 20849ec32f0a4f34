package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀，层级用双下划线分隔：
// LOOKBOOK_RANK__WEIGHTS__STRATEGY=0.5 -> rank.weights.strategy
const EnvPrefix = "LOOKBOOK_"

// PathEnvVar 可以覆盖配置文件路径。
const PathEnvVar = EnvPrefix + "CONFIG"

// DefaultPaths 未指定路径时按顺序查找的配置文件。
var DefaultPaths = []string{
	"lookbook.yaml",
	"lookbook.yml",
	"/etc/lookbook/config.yaml",
}

// 通过环境变量传入时按分号拆分的字段（CEL 表达式里常有逗号）
var sliceKeys = []string{
	"rank.filter_exprs",
	"bundle.deny_rules",
}

// Load 按 默认值 → 配置文件 → 环境变量 的顺序加载并校验配置。
// path 为空时依次尝试 PathEnvVar 与 DefaultPaths，找不到文件时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitSlices(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey 把 LOOKBOOK_RANK__DIVERSITY_K 转换为 rank.diversity_k。
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if s == "config" {
		return ""
	}
	return strings.ReplaceAll(s, "__", ".")
}

func splitSlices(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		v, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(v, ";") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Watch 监听配置文件变化，文件改动后调用 fn。
func Watch(path string, fn func()) error {
	return file.Provider(path).Watch(func(_ any, err error) {
		if err == nil {
			fn()
		}
	})
}
