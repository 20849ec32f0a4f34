package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/feature"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/store"
)

type env struct {
	features *feature.KVStore
	cooc     *feature.KVCoOccurrence
	stock    *feature.KVAvailability
}

func smart(color string) core.ProductAttributes {
	return core.ProductAttributes{ColorFamily: color, Season: "all", Formality: "smart"}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	e := &env{
		features: feature.NewKVStore(kv, feature.DefaultKeyPrefix),
		cooc:     feature.NewKVCoOccurrence(kv),
		stock:    feature.NewKVAvailability(kv),
	}
	products := []*core.ProductFeatures{
		{ProductID: "SHIRT-001", CategoryPath: []string{"tops", "shirts"}, Gender: "men", Attributes: smart("white")},
		{ProductID: "PANTS-002", CategoryPath: []string{"bottoms", "pants"}, Gender: "men", Attributes: smart("navy")},
		{ProductID: "BELT-003", CategoryPath: []string{"accessories", "belts"}, Gender: "unisex", Attributes: smart("brown")},
		{ProductID: "SHOES-004", CategoryPath: []string{"shoes"}, Gender: "men", Attributes: smart("black")},
	}
	for _, p := range products {
		require.NoError(t, e.features.PutProduct(ctx, p))
	}
	for id, w := range map[string]float64{"PANTS-002": 0.8, "BELT-003": 0.6, "SHOES-004": 0.5} {
		require.NoError(t, e.cooc.Put(ctx, "SHIRT-001", id, w))
	}
	return e
}

func (e *env) put(t *testing.T, p *core.ProductFeatures, weight float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.features.PutProduct(ctx, p))
	require.NoError(t, e.cooc.Put(ctx, "SHIRT-001", p.ProductID, weight))
}

func (e *env) composer(t *testing.T, mutate ...func(*Config)) *Composer {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewComposer(cfg, e.features, e.cooc, e.stock, logging.Nop())
	require.NoError(t, err)
	return c
}

func ids(b *core.Bundle) []string {
	out := make([]string, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.ProductID
	}
	return out
}

func TestCompose_ShirtLook(t *testing.T) {
	e := newEnv(t)
	b, err := e.composer(t).Compose(context.Background(), "SHIRT-001", 3)
	require.NoError(t, err)

	assert.Equal(t, "SHIRT-001", b.AnchorID)
	assert.Equal(t, []string{"PANTS-002", "BELT-003", "SHOES-004"}, ids(b))
	assert.InDelta(t, 0.8, b.Items[0].CompatibilityScore, 1e-9)
	assert.InDelta(t, 0.6, b.Items[1].CompatibilityScore, 1e-9)
	assert.InDelta(t, 0.5, b.Items[2].CompatibilityScore, 1e-9)
	assert.InDelta(t, (0.8+0.6+0.5)/3, b.Score, 1e-9)
}

func TestCompose_MaxItems(t *testing.T) {
	e := newEnv(t)
	c := e.composer(t)
	ctx := context.Background()

	b, err := c.Compose(ctx, "SHIRT-001", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PANTS-002"}, ids(b))

	for _, n := range []int{0, 5, -1} {
		_, err := c.Compose(ctx, "SHIRT-001", n)
		assert.True(t, core.IsValidation(err), "maxItems=%d", n)
	}
	_, err = c.Compose(ctx, "bad id", 2)
	assert.True(t, core.IsValidation(err))
}

func TestCompose_AnchorWithoutFeatures(t *testing.T) {
	e := newEnv(t)
	_, err := e.composer(t).Compose(context.Background(), "GHOST-999", 3)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestCompose_NoComplements(t *testing.T) {
	e := newEnv(t)
	b, err := e.composer(t).Compose(context.Background(), "PANTS-002", 4)
	require.NoError(t, err)
	assert.Equal(t, "PANTS-002", b.AnchorID)
	assert.Empty(t, b.Items)
	assert.NotNil(t, b.Items)
	assert.Zero(t, b.Score)
}

func TestCompose_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// 同类目、非叠穿：淘汰
	e.put(t, &core.ProductFeatures{ProductID: "SHIRT-010", CategoryPath: []string{"tops", "shirts"}, Gender: "men", Attributes: smart("grey")}, 0.95)
	// 女装：性别不一致
	e.put(t, &core.ProductFeatures{ProductID: "SKIRT-011", CategoryPath: []string{"skirts"}, Gender: "women", Attributes: smart("black")}, 0.9)
	// 正式度相差两级，兼容度 0.8
	e.put(t, &core.ProductFeatures{ProductID: "HAT-012", CategoryPath: []string{"hats"}, Gender: "men",
		Attributes: core.ProductAttributes{ColorFamily: "orange", Season: "winter", Formality: "formal"}}, 0.85)
	strict := func(cfg *Config) { cfg.MinCompatibility = 0.9 }

	b, err := e.composer(t, strict).Compose(ctx, "SHIRT-001", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"PANTS-002", "BELT-003", "SHOES-004"}, ids(b))

	// 叠穿单品可以与锚点同类目
	e.put(t, &core.ProductFeatures{ProductID: "OVERSHIRT-013", CategoryPath: []string{"tops", "shirts"}, Gender: "men", Tags: []string{"layerable"}, Attributes: smart("denim")}, 0.7)
	b, err = e.composer(t, strict).Compose(ctx, "SHIRT-001", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"PANTS-002", "OVERSHIRT-013", "BELT-003", "SHOES-004"}, ids(b))
}

func TestCompose_StockAndCategorySpread(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.stock.SetStock(ctx, "PANTS-002", 0))
	// 与 PANTS-002 同类目的第二条裤子
	e.put(t, &core.ProductFeatures{ProductID: "PANTS-020", CategoryPath: []string{"bottoms", "pants"}, Gender: "men", Attributes: smart("beige")}, 0.7)
	e.put(t, &core.ProductFeatures{ProductID: "PANTS-021", CategoryPath: []string{"bottoms", "pants"}, Gender: "men", Attributes: smart("black")}, 0.65)

	b, err := e.composer(t).Compose(ctx, "SHIRT-001", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"PANTS-020", "BELT-003", "SHOES-004"}, ids(b))
}

func TestCompose_SingleCategory(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	fs := feature.NewKVStore(kv, feature.DefaultKeyPrefix)
	cooc := feature.NewKVCoOccurrence(kv)
	require.NoError(t, fs.PutProduct(ctx, &core.ProductFeatures{ProductID: "DRESS-1", CategoryPath: []string{"dresses"}, Attributes: smart("red")}))
	for id, w := range map[string]float64{"SHOE-1": 0.4, "SHOE-2": 0.6} {
		require.NoError(t, fs.PutProduct(ctx, &core.ProductFeatures{ProductID: id, CategoryPath: []string{"shoes"}, Attributes: smart("black")}))
		require.NoError(t, cooc.Put(ctx, "DRESS-1", id, w))
	}
	c, err := NewComposer(DefaultConfig(), fs, cooc, nil, logging.Nop())
	require.NoError(t, err)

	b, err := c.Compose(ctx, "DRESS-1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"SHOE-2"}, ids(b))
}

type brokenNeighbors struct{}

func (brokenNeighbors) Neighbors(context.Context, string, int) ([]core.Neighbor, error) {
	return nil, errors.New("redis: connection refused")
}

func TestCompose_Unavailable(t *testing.T) {
	e := newEnv(t)
	c, err := NewComposer(DefaultConfig(), e.features, brokenNeighbors{}, e.stock, logging.Nop())
	require.NoError(t, err)

	_, err = c.Compose(context.Background(), "SHIRT-001", 3)
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
}

func TestNewComposer_InvalidRule(t *testing.T) {
	e := newEnv(t)
	cfg := DefaultConfig()
	cfg.DenyRules = []string{"cand.category =="}
	_, err := NewComposer(cfg, e.features, e.cooc, e.stock, logging.Nop())
	assert.True(t, core.IsValidation(err))

	cfg = DefaultConfig()
	cfg.CandidateLimit = 0
	_, err = NewComposer(cfg, e.features, e.cooc, e.stock, logging.Nop())
	assert.True(t, core.IsValidation(err))
}

func TestCompose_CustomRule(t *testing.T) {
	e := newEnv(t)
	c := e.composer(t, func(cfg *Config) {
		cfg.DenyRules = append(cfg.DenyRules, `cand.category == "belts"`)
	})
	b, err := c.Compose(context.Background(), "SHIRT-001", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"PANTS-002", "SHOES-004"}, ids(b))
}
