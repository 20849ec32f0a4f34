package feature

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/lookbook/core"
)

// ProductCollection 是商品 embedding 在向量索引中的集合名。
const ProductCollection = "products"

// Seed 是目录种子文件：商品特征、用户偏好、共现表、库存。
// 用于单机部署与测试，生产环境由离线任务直接写入 Redis / Feast。
//
//	products:
//	  - id: SHIRT-001
//	    categoryPath: [tops, shirts]
//	    attributes: {colorFamily: white, season: all, formality: smart}
//	coOccurrence:
//	  - product: SHIRT-001
//	    neighbors: [{id: PANTS-002, weight: 0.9}]
//	stock: {SHIRT-001: 10}
type Seed struct {
	Products     []*core.ProductFeatures `yaml:"products"`
	Users        []*core.UserFeatures    `yaml:"users"`
	CoOccurrence []SeedNeighbors         `yaml:"coOccurrence"`
	Stock        map[string]int          `yaml:"stock"`
}

// SeedNeighbors 是一个商品的共现邻居列表。
type SeedNeighbors struct {
	Product   string `yaml:"product"`
	Neighbors []struct {
		ID     string  `yaml:"id"`
		Weight float64 `yaml:"weight"`
	} `yaml:"neighbors"`
	// Symmetric 为 true 时同时写入反向关系
	Symmetric bool `yaml:"symmetric"`
}

// LoadSeed 读取 YAML 种子文件。
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, p := range s.Products {
		if p == nil || p.ProductID == "" {
			return nil, fmt.Errorf("parse seed %s: product #%d has no id", path, i)
		}
	}
	return &s, nil
}

// SeedTarget 是种子数据的写入目标，字段为空时跳过对应数据。
type SeedTarget struct {
	Features     *KVStore
	CoOccurrence *KVCoOccurrence
	Availability *KVAvailability
	Vectors      core.VectorIndex
}

// Apply 把种子数据写入目标存储。
func (s *Seed) Apply(ctx context.Context, t SeedTarget) error {
	for _, p := range s.Products {
		if t.Features != nil {
			if err := t.Features.PutProduct(ctx, p); err != nil {
				return fmt.Errorf("seed product %s: %w", p.ProductID, err)
			}
		}
		if t.Vectors != nil && len(p.Embedding) > 0 {
			if err := t.Vectors.Upsert(ctx, ProductCollection, p.ProductID, p.Embedding); err != nil {
				return fmt.Errorf("seed embedding %s: %w", p.ProductID, err)
			}
		}
	}
	if t.Features != nil {
		for _, u := range s.Users {
			if err := t.Features.PutUser(ctx, u); err != nil {
				return fmt.Errorf("seed user %s: %w", u.UserID, err)
			}
		}
	}
	if t.CoOccurrence != nil {
		for _, c := range s.CoOccurrence {
			for _, n := range c.Neighbors {
				if err := t.CoOccurrence.Put(ctx, c.Product, n.ID, n.Weight); err != nil {
					return fmt.Errorf("seed co-occurrence %s: %w", c.Product, err)
				}
				if c.Symmetric {
					if err := t.CoOccurrence.Put(ctx, n.ID, c.Product, n.Weight); err != nil {
						return fmt.Errorf("seed co-occurrence %s: %w", n.ID, err)
					}
				}
			}
		}
	}
	if t.Availability != nil {
		for id, qty := range s.Stock {
			if err := t.Availability.SetStock(ctx, id, qty); err != nil {
				return fmt.Errorf("seed stock %s: %w", id, err)
			}
		}
	}
	return nil
}
