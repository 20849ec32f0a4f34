package recall

import (
	"context"

	"github.com/rushteam/lookbook/core"
)

// ContentSimilarity 是基于 embedding 的内容相似召回。
//
// 核心思想："和锚点商品（或用户兴趣中心）看起来像的商品"
//   - 有锚点时以锚点商品的 embedding 检索
//   - 否则以画像的兴趣向量检索
//   - 只返回有货的商品
type ContentSimilarity struct {
	Vectors      core.VectorService
	Features     core.FeatureStore
	Availability core.Availability // 可为空，此时不做库存过滤

	// Collection 向量集合名
	Collection string
	// TopK 返回数量
	TopK int
	// Overfetch 为库存过滤预留的额外检索倍数，默认 2
	Overfetch int
}

func (r *ContentSimilarity) Name() string { return core.ReasonContentSimilarity }

func (r *ContentSimilarity) queryVector(ctx context.Context, rctx *core.RecommendContext) ([]float64, error) {
	if rctx.AnchorID != "" {
		pf, err := r.Features.GetProductFeatures(ctx, rctx.AnchorID)
		if err != nil {
			if core.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return pf.Embedding, nil
	}
	return rctx.GetUserProfile().InterestEmbedding, nil
}

func (r *ContentSimilarity) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if r.Vectors == nil || rctx == nil {
		return nil, nil
	}
	vec, err := r.queryVector(ctx, rctx)
	if err != nil || len(vec) == 0 {
		return nil, err
	}

	topK := r.TopK
	if topK <= 0 {
		topK = 50
	}
	overfetch := r.Overfetch
	if overfetch <= 0 {
		overfetch = 2
	}
	exclude := make(map[string]struct{}, len(rctx.Exclude)+1)
	for id := range rctx.Exclude {
		exclude[id] = struct{}{}
	}
	if rctx.AnchorID != "" {
		exclude[rctx.AnchorID] = struct{}{}
	}

	res, err := r.Vectors.Search(ctx, &core.VectorSearchRequest{
		Collection: r.Collection,
		Vector:     vec,
		TopK:       topK * overfetch,
		Metric:     string(core.MetricCosine),
		Exclude:    exclude,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, topK)
	for _, hit := range res.Items {
		if len(out) >= topK {
			break
		}
		if hit.Score <= 0 {
			break
		}
		if r.Availability != nil {
			in, err := r.Availability.IsInStock(ctx, hit.ID)
			if err != nil {
				return nil, err
			}
			if !in {
				continue
			}
		}
		it := core.NewItem(hit.ID)
		it.RawScore = min(hit.Score, 1)
		it.Features["content_similarity"] = it.RawScore
		out = append(out, it)
	}
	return out, nil
}
