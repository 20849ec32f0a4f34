package core

import "context"

// VectorService 是商品 embedding 的近邻检索，内容相似召回依赖它。
type VectorService interface {
	// Search 返回与查询向量最相近的商品，按相似度降序
	Search(ctx context.Context, req *VectorSearchRequest) (*VectorSearchResult, error)
	Close() error
}

// VectorIndex 是可写的 VectorService：启动时从特征存储加载，商品变更时按 ID 重建。
type VectorIndex interface {
	VectorService

	// Upsert 写入或覆盖一个向量；集合的维度由第一次写入决定
	Upsert(ctx context.Context, collection, id string, vector []float64) error

	// Delete 删除向量，不存在时忽略
	Delete(ctx context.Context, collection string, ids ...string) error
}

// VectorSearchRequest 近邻检索请求
type VectorSearchRequest struct {
	Collection string
	Vector     []float64
	TopK       int

	// Metric 为空时使用余弦相似度
	Metric string

	// Exclude 不参与检索的商品，通常是锚点与已购商品
	Exclude map[string]struct{}
}

type VectorSearchItem struct {
	ID    string
	Score float64
}

type VectorSearchResult struct {
	Items []VectorSearchItem
}

// MetricType 相似度度量
type MetricType string

const (
	MetricCosine       MetricType = "cosine"
	MetricEuclidean    MetricType = "euclidean"     // 得分为 1/(1+距离)
	MetricInnerProduct MetricType = "inner_product" // 要求向量已归一化
)

// ValidateVectorMetric 判断 metric 是否为支持的度量。
func ValidateVectorMetric(metric string) bool {
	switch MetricType(metric) {
	case MetricCosine, MetricEuclidean, MetricInnerProduct:
		return true
	}
	return false
}
