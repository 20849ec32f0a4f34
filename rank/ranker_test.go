package rank

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

var now = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

type mapFeatures map[string]*core.ProductFeatures

func (m mapFeatures) Name() string { return "map" }
func (m mapFeatures) GetUserFeatures(context.Context, string) (*core.UserFeatures, error) {
	return nil, core.NotFoundError(core.ModuleFeature, "user")
}
func (m mapFeatures) GetProductFeatures(_ context.Context, id string) (*core.ProductFeatures, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, core.NotFoundError(core.ModuleFeature, "product %s", id)
}
func (m mapFeatures) BatchGetProductFeatures(_ context.Context, ids []string) (map[string]*core.ProductFeatures, error) {
	out := map[string]*core.ProductFeatures{}
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
func (m mapFeatures) ListProductIDs(context.Context) ([]string, error) { return nil, nil }

type downFeatures struct{ mapFeatures }

func (downFeatures) BatchGetProductFeatures(context.Context, []string) (map[string]*core.ProductFeatures, error) {
	return nil, core.UnavailableError(core.ModuleFeature, errors.New("timeout"), "batch")
}

type soldOut map[string]struct{}

func (s soldOut) IsInStock(_ context.Context, id string) (bool, error) {
	_, out := s[id]
	return !out, nil
}

type stockDown struct{}

func (stockDown) IsInStock(context.Context, string) (bool, error) {
	return false, core.UnavailableError(core.ModuleFeature, errors.New("timeout"), "stock")
}

func candidates(scores map[string]float64, sources ...string) core.CandidateSet {
	var cs core.CandidateSet
	for id, s := range scores {
		it := core.NewItem(id)
		it.RawScore = s
		for _, src := range sources {
			it.AddSource(src)
		}
		cs = append(cs, it)
	}
	core.SortByRawScore(cs)
	return cs
}

func newRanker(t *testing.T, fs core.FeatureStore, av core.Availability) *Ranker {
	t.Helper()
	r, err := NewRanker(DefaultConfig(), fs, av, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return r
}

func TestRank_ScoreAndReasons(t *testing.T) {
	fs := mapFeatures{
		"NEW-DRESS": {ProductID: "NEW-DRESS", CategoryPath: []string{"dresses"}, Popularity: 10, AddedAt: now.Add(-3 * 24 * time.Hour)},
		"OLD-BAG":   {ProductID: "OLD-BAG", CategoryPath: []string{"bags"}, Popularity: 100, AddedAt: now.Add(-90 * 24 * time.Hour)},
	}
	profile := core.NewUserProfile("u1")
	profile.Interests["category:dresses"] = 1

	r := newRanker(t, fs, nil)
	res, err := r.Rank(context.Background(),
		candidates(map[string]float64{"NEW-DRESS": 0.5, "OLD-BAG": 1.0}, core.ReasonContentSimilarity),
		profile, Constraints{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	dress := 0.4*0.5 + 0.3*1 + 0.2*math.Log1p(10)/math.Log1p(100) + 0.1*(1-3.0/30)
	bag := 0.4*1 + 0.2*1
	assert.Equal(t, "NEW-DRESS", res.Items[0].ProductID)
	assert.InDelta(t, dress, res.Items[0].Score, 1e-9)
	assert.InDelta(t, bag, res.Items[1].Score, 1e-9)

	assert.Equal(t, []string{core.ReasonContentSimilarity, core.ReasonInterestMatch, core.ReasonNewArrival}, res.Items[0].Reasons)
	assert.Equal(t, []string{core.ReasonContentSimilarity}, res.Items[1].Reasons)
}

func TestRank_TieBreak(t *testing.T) {
	fs := mapFeatures{
		"B": {ProductID: "B", Popularity: 5},
		"A": {ProductID: "A", Popularity: 5},
		"C": {ProductID: "C", Popularity: 9},
	}
	cfg := DefaultConfig()
	cfg.Weights = Weights{Strategy: 1}
	r, err := NewRanker(cfg, fs, nil)
	require.NoError(t, err)

	res, err := r.Rank(context.Background(), candidates(map[string]float64{"A": 1, "B": 1, "C": 1}), nil, Constraints{Limit: 3})
	require.NoError(t, err)
	got := []string{res.Items[0].ProductID, res.Items[1].ProductID, res.Items[2].ProductID}
	assert.Equal(t, []string{"C", "A", "B"}, got)
}

func TestRank_ConstraintsAndLimit(t *testing.T) {
	fs := mapFeatures{}
	r := newRanker(t, fs, soldOut{"GONE": {}})
	cs := candidates(map[string]float64{"P1": 0.9, "P2": 0.8, "GONE": 0.7, "BOUGHT": 0.6, "P3": 0.5})
	cs = append(cs, cs[0]) // 重复候选

	res, err := r.Rank(context.Background(), cs, nil, Constraints{
		Limit:   2,
		Exclude: map[string]struct{}{"BOUGHT": {}},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "P1", res.Items[0].ProductID)
	assert.Equal(t, "P2", res.Items[1].ProductID)

	res, err = r.Rank(context.Background(), cs, nil, Constraints{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, res.Items, 4, "fewer candidates than limit returns all")

	_, err = r.Rank(context.Background(), cs, nil, Constraints{})
	assert.True(t, core.IsValidation(err))
}

func TestRank_StockOutageRemovesCandidates(t *testing.T) {
	r := newRanker(t, mapFeatures{}, stockDown{})
	res, err := r.Rank(context.Background(), candidates(map[string]float64{"P1": 0.9, "P2": 0.8}), nil, Constraints{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestRank_SizePreference(t *testing.T) {
	fs := mapFeatures{
		"S-ONLY": {ProductID: "S-ONLY", Sizes: []string{"S"}},
		"M-TOO":  {ProductID: "M-TOO", Sizes: []string{"S", "M"}},
	}
	profile := core.NewUserProfile("u1")
	profile.Preferences.Size = "M"
	r := newRanker(t, fs, nil)
	res, err := r.Rank(context.Background(), candidates(map[string]float64{"S-ONLY": 1, "M-TOO": 0.5}), profile, Constraints{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "M-TOO", res.Items[0].ProductID)
}

func TestRank_FeatureOutageFallsBackToStrategyScore(t *testing.T) {
	r := newRanker(t, downFeatures{}, nil)
	res, err := r.Rank(context.Background(), candidates(map[string]float64{"A": 0.2, "B": 0.4}), nil, Constraints{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "B", res.Items[0].ProductID)
	assert.InDelta(t, 0.4, res.Items[0].Score, 1e-9)
	assert.InDelta(t, 0.2, res.Items[1].Score, 1e-9)
}

func TestRank_Diversity(t *testing.T) {
	fs := mapFeatures{}
	scores := map[string]float64{}
	for i, id := range []string{"D1", "D2", "D3", "D4", "D5"} {
		fs[id] = &core.ProductFeatures{ProductID: id, CategoryPath: []string{"dresses"}}
		scores[id] = 1 - float64(i)*0.01
	}
	fs["S1"] = &core.ProductFeatures{ProductID: "S1", CategoryPath: []string{"shoes"}}
	scores["S1"] = 0.5

	r := newRanker(t, fs, nil)
	res, err := r.Rank(context.Background(), candidates(scores), nil, Constraints{Limit: 6})
	require.NoError(t, err)
	assert.Equal(t, "S1", res.Items[3].ProductID)
}

func TestRank_SameCandidatesTwice(t *testing.T) {
	fs := mapFeatures{}
	scores := map[string]float64{}
	for i, id := range []string{"D1", "D2", "D3", "D4", "S1", "S2"} {
		category := "dresses"
		if id[0] == 'S' {
			category = "shoes"
		}
		fs[id] = &core.ProductFeatures{ProductID: id, CategoryPath: []string{category}, Popularity: float64(i)}
		scores[id] = 1 - float64(i)*0.1
	}
	profile := core.NewUserProfile("u1")
	profile.Interests["category:shoes"] = 1

	r := newRanker(t, fs, nil)
	cs := candidates(scores, core.ReasonCoOccurrence)
	first, err := r.Rank(context.Background(), cs, profile, Constraints{Limit: 5})
	require.NoError(t, err)
	second, err := r.Rank(context.Background(), cs, profile, Constraints{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, []string{"D1", "D2", "D3", "D4", "S1", "S2"}, cs.IDs())
	for _, it := range cs {
		assert.Nil(t, it.Product, it.ID)
		assert.Zero(t, it.Score, it.ID)
		assert.Empty(t, it.Features, it.ID)
	}
}

func TestReload(t *testing.T) {
	r := newRanker(t, mapFeatures{}, nil)

	bad := DefaultConfig()
	bad.Weights = Weights{}
	assert.True(t, core.IsValidation(r.Reload(bad)))

	bad = DefaultConfig()
	bad.FilterExprs = []string{"cand.tags in in"}
	assert.True(t, core.IsValidation(r.Reload(bad)))

	bad = DefaultConfig()
	bad.DiversityK = 0
	assert.True(t, core.IsValidation(r.Reload(bad)))
	assert.Equal(t, 3, r.Config().DiversityK, "old config kept")

	good := DefaultConfig()
	good.Weights.Strategy = 1
	require.NoError(t, r.Reload(good))
	assert.Equal(t, 1.0, r.Config().Weights.Strategy)
}
