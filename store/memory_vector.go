package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rushteam/lookbook/core"
)

// MemoryVectorService 是内存实现的向量索引，用于商品 embedding 的近邻检索。
//
// 特点：
//   - 纯内存实现，暴力扫描，适合万级商品目录
//   - 支持余弦相似度、欧氏距离、内积
//   - 线程安全；集合在首次 Upsert 时按向量维度创建
type MemoryVectorService struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	vectors   map[string][]float64
}

// NewMemoryVectorService 创建内存向量服务实例。
func NewMemoryVectorService() *MemoryVectorService {
	return &MemoryVectorService{collections: make(map[string]*collection)}
}

func (m *MemoryVectorService) Name() string { return "memory_vector" }

// Search 实现 core.VectorService 接口。分数相同按 ID 升序。
func (m *MemoryVectorService) Search(_ context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil || len(req.Vector) == 0 {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector search request is empty")
	}
	metric := req.Metric
	if metric == "" {
		metric = string(core.MetricCosine)
	}
	if !core.ValidateVectorMetric(metric) {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "unknown metric: "+metric)
	}

	m.mu.RLock()
	col, ok := m.collections[req.Collection]
	if !ok {
		m.mu.RUnlock()
		return &core.VectorSearchResult{}, nil
	}
	if len(req.Vector) != col.dimension {
		m.mu.RUnlock()
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector dimension mismatch")
	}
	items := make([]core.VectorSearchItem, 0, len(col.vectors))
	for id, vec := range col.vectors {
		if _, skip := req.Exclude[id]; skip {
			continue
		}
		var score float64
		switch core.MetricType(metric) {
		case core.MetricEuclidean:
			score = 1.0 / (1.0 + euclideanDistance(req.Vector, vec))
		case core.MetricInnerProduct:
			score = innerProduct(req.Vector, vec)
		default:
			score = cosineSimilarity(req.Vector, vec)
		}
		items = append(items, core.VectorSearchItem{ID: id, Score: score})
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	if len(items) > topK {
		items = items[:topK]
	}
	return &core.VectorSearchResult{Items: items}, nil
}

// Upsert 实现 core.VectorIndex 接口。
func (m *MemoryVectorService) Upsert(_ context.Context, collectionName, id string, vector []float64) error {
	if len(vector) == 0 {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "empty vector")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collectionName]
	if !ok {
		col = &collection{dimension: len(vector), vectors: make(map[string][]float64)}
		m.collections[collectionName] = col
	}
	if len(vector) != col.dimension {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector dimension mismatch")
	}
	col.vectors[id] = append([]float64(nil), vector...)
	return nil
}

// Delete 实现 core.VectorIndex 接口。
func (m *MemoryVectorService) Delete(_ context.Context, collectionName string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if col, ok := m.collections[collectionName]; ok {
		for _, id := range ids {
			delete(col.vectors, id)
		}
	}
	return nil
}

// Close 实现 core.VectorService 接口
func (m *MemoryVectorService) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]*collection)
	return nil
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// euclideanDistance 计算欧氏距离
func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// innerProduct 计算内积
func innerProduct(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ core.VectorIndex = (*MemoryVectorService)(nil)
