package feature

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/store"
)

const seedYAML = `
products:
  - id: SHIRT-001
    categoryPath: [tops, shirts]
    attributes: {colorFamily: white, formality: smart}
    embedding: [1, 0]
  - id: PANTS-002
    categoryPath: [bottoms, pants]
    embedding: [0.8, 0.2]
users:
  - id: u1
    preferences: {size: M}
coOccurrence:
  - product: SHIRT-001
    symmetric: true
    neighbors:
      - {id: PANTS-002, weight: 0.9}
stock:
  PANTS-002: 0
`

func TestSeed_LoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Products, 2)

	ctx := context.Background()
	kv := newKV(t)
	vec := store.NewMemoryVectorService()
	target := SeedTarget{
		Features:     NewKVStore(kv, DefaultKeyPrefix),
		CoOccurrence: NewKVCoOccurrence(kv),
		Availability: NewKVAvailability(kv),
		Vectors:      vec,
	}
	require.NoError(t, seed.Apply(ctx, target))

	pf, err := target.Features.GetProductFeatures(ctx, "SHIRT-001")
	require.NoError(t, err)
	assert.Equal(t, "smart", pf.Attributes.Formality)

	back, err := target.CoOccurrence.Neighbors(ctx, "PANTS-002", 5)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "SHIRT-001", back[0].ProductID)

	in, err := target.Availability.IsInStock(ctx, "PANTS-002")
	require.NoError(t, err)
	assert.False(t, in)

	uf, err := target.Features.GetUserFeatures(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "M", uf.Preferences.Size)
}

func TestLoadSeed_RejectsProductWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - categoryPath: [tops]\n"), 0o600))
	_, err := LoadSeed(path)
	assert.Error(t, err)
}
