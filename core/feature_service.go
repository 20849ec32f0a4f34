package core

import "context"

// UserFeatures 是特征存储中用户的显式信息。
type UserFeatures struct {
	UserID      string      `json:"userID" yaml:"id"`
	Preferences Preferences `json:"preferences" yaml:"preferences"`
	// Embedding 是离线训练的用户向量，可为空
	Embedding []float64 `json:"embedding,omitempty" yaml:"embedding"`
}

// FeatureStore 是特征存储的领域接口，引擎只读。
//
// 设计原则：
//   - 所有方法都可能超时或失败，调用方把失败当作"特征缺失"处理
//   - 不存在返回 NOT_FOUND，超时/熔断返回 UNAVAILABLE
//   - BatchGetProductFeatures 只返回命中的商品，缺失不报错
//
// 实现：
//   - feature.MemoryStore：内存 / 种子文件
//   - feature.KVStore：基于 core.Store（Redis）
//   - feature.FeastStore：Feast 在线特征
//   - feature.CachedStore、feature.Guarded：缓存与超时熔断装饰器
type FeatureStore interface {
	Name() string
	GetUserFeatures(ctx context.Context, userID string) (*UserFeatures, error)
	GetProductFeatures(ctx context.Context, productID string) (*ProductFeatures, error)
	BatchGetProductFeatures(ctx context.Context, productIDs []string) (map[string]*ProductFeatures, error)
	// ListProductIDs 列出目录中的全部商品，用于热门先验与向量索引构建
	ListProductIDs(ctx context.Context) ([]string, error)
}

// Availability 是库存状态的只读接口。
type Availability interface {
	IsInStock(ctx context.Context, productID string) (bool, error)
}

// Neighbor 是共现表中的一个邻居。Weight 为归一化共现频次，范围 (0,1]。
type Neighbor struct {
	ProductID string
	Weight    float64
}

// CoOccurrenceStore 是只读的商品共现表（离线批量构建）。
// Neighbors 按权重降序返回，权重相同按 ID 升序。
type CoOccurrenceStore interface {
	Neighbors(ctx context.Context, productID string, limit int) ([]Neighbor, error)
}

// 特征错误
var (
	ErrFeatureNotFound = NewDomainError(ModuleFeature, ErrorCodeNotFound, "feature: not found")
)
