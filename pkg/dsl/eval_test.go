package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

func TestProgram_Eval(t *testing.T) {
	shirt := &core.ProductFeatures{
		ProductID:    "SHIRT-001",
		CategoryPath: []string{"tops", "shirts"},
		Gender:       "men",
		Attributes:   core.ProductAttributes{ColorFamily: "white", PriceTier: 2},
	}
	cardigan := &core.ProductFeatures{
		ProductID:    "CARD-009",
		CategoryPath: []string{"tops", "shirts"},
		Tags:         []string{"layerable"},
		Gender:       "women",
	}

	tests := []struct {
		name string
		expr string
		cand *core.ProductFeatures
		want bool
	}{
		{"same category", `anchor.category == cand.category`, cardigan, true},
		{"layerable tag", `"layerable" in cand.tags`, cardigan, true},
		{"layerable missing", `"layerable" in cand.tags`, shirt, false},
		{"gender mismatch", `cand.gender != "unisex" && anchor.gender != "unisex" && cand.gender != anchor.gender`, cardigan, true},
		{"price tier", `cand.price_tier >= 2`, shirt, true},
		{"nil candidate", `cand.category == ""`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Eval(Vars{Anchor: ProductVars(shirt), Cand: ProductVars(tt.cand)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Cached(t *testing.T) {
	a, err := Compile(`cand.popularity > 1.0`)
	require.NoError(t, err)
	b, err := Compile(`cand.popularity > 1.0`)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(`cand.category ==`)
	assert.Error(t, err)

	p, err := Compile(`cand.category`)
	require.NoError(t, err)
	_, err = p.Eval(Vars{Cand: ProductVars(&core.ProductFeatures{CategoryPath: []string{"shoes"}})})
	assert.Error(t, err, "non-bool result")
}

func TestUserVars(t *testing.T) {
	p, err := Compile(`user.cold_start && user.size == ""`)
	require.NoError(t, err)
	got, err := p.Eval(Vars{User: UserVars(nil)})
	require.NoError(t, err)
	assert.True(t, got)
}
