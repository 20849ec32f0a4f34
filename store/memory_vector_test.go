package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

func TestMemoryVectorService_Search(t *testing.T) {
	ctx := context.Background()
	vs := NewMemoryVectorService()
	require.NoError(t, vs.Upsert(ctx, "products", "a", []float64{1, 0}))
	require.NoError(t, vs.Upsert(ctx, "products", "b", []float64{0.9, 0.1}))
	require.NoError(t, vs.Upsert(ctx, "products", "c", []float64{0, 1}))

	res, err := vs.Search(ctx, &core.VectorSearchRequest{
		Collection: "products",
		Vector:     []float64{1, 0},
		TopK:       2,
		Exclude:    map[string]struct{}{"a": {}},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "b", res.Items[0].ID)
	assert.Equal(t, "c", res.Items[1].ID)

	require.NoError(t, vs.Delete(ctx, "products", "b"))
	res, err = vs.Search(ctx, &core.VectorSearchRequest{Collection: "products", Vector: []float64{1, 0}, TopK: 5})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestMemoryVectorService_Errors(t *testing.T) {
	ctx := context.Background()
	vs := NewMemoryVectorService()
	require.NoError(t, vs.Upsert(ctx, "products", "a", []float64{1, 0}))

	_, err := vs.Search(ctx, &core.VectorSearchRequest{Collection: "products", Vector: []float64{1, 0, 0}})
	assert.Error(t, err)

	_, err = vs.Search(ctx, &core.VectorSearchRequest{Collection: "products", Vector: []float64{1, 0}, Metric: "hamming"})
	assert.Error(t, err)

	assert.Error(t, vs.Upsert(ctx, "products", "b", []float64{1}))

	res, err := vs.Search(ctx, &core.VectorSearchRequest{Collection: "unknown", Vector: []float64{1}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}
