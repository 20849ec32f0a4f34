package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/logging"
)

type staticSource struct {
	name   string
	scores map[string]float64
	err    error
	delay  time.Duration
	panics bool
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*core.Item, 0, len(s.scores))
	for id, sc := range s.scores {
		it := core.NewItem(id)
		it.RawScore = sc
		out = append(out, it)
	}
	core.SortByRawScore(out)
	return out, nil
}

func TestFanout_MergeKeepsMaxScoreAndUnionOfSources(t *testing.T) {
	g := NewGeneratorWithSources(Config{StrategyTimeout: time.Second}, logging.Nop(),
		&staticSource{name: "a", scores: map[string]float64{"p1": 0.4, "p2": 0.9}},
		&staticSource{name: "b", scores: map[string]float64{"p1": 0.7, "p3": 0.7}},
	)
	cs, err := g.Generate(context.Background(), nil, GenerateContext{}, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "p1", "p3"}, cs.IDs())
	assert.Equal(t, 0.7, cs[1].RawScore)
	assert.Equal(t, []string{"a", "b"}, cs[1].Sources)
}

func TestFanout_ExclusionAndLimit(t *testing.T) {
	g := NewGeneratorWithSources(Config{StrategyTimeout: time.Second}, logging.Nop(),
		&staticSource{name: "a", scores: map[string]float64{"p1": 0.9, "p2": 0.8, "p3": 0.7, "anchor": 1}},
	)
	cs, err := g.Generate(context.Background(), nil,
		GenerateContext{AnchorID: "anchor"},
		map[string]struct{}{"p1": {}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, cs.IDs())
}

func TestFanout_FailSoft(t *testing.T) {
	g := NewGeneratorWithSources(Config{StrategyTimeout: 20 * time.Millisecond, PerStrategyLimit: 1}, logging.Nop(),
		&staticSource{name: "slow", delay: time.Second, scores: map[string]float64{"x": 1}},
		&staticSource{name: "broken", err: errors.New("down")},
		&staticSource{name: "panicky", panics: true},
		&staticSource{name: "ok", scores: map[string]float64{"p1": 0.5, "p2": 0.4}},
	)
	start := time.Now()
	cs, err := g.Generate(context.Background(), nil, GenerateContext{}, nil, 10)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"p1"}, cs.IDs(), "per-strategy cap applies")
}

func TestFanout_AllStrategiesFailed(t *testing.T) {
	g := NewGeneratorWithSources(Config{StrategyTimeout: time.Second}, logging.Nop(),
		&staticSource{name: "a", err: errors.New("down")},
		&staticSource{name: "b", err: errors.New("down")},
	)
	cs, err := g.Generate(context.Background(), nil, GenerateContext{}, nil, 10)
	assert.ErrorIs(t, err, core.ErrAllStrategiesFailed)
	assert.True(t, core.IsUnavailable(err))
	assert.Empty(t, cs)
}

func TestFanout_Deterministic(t *testing.T) {
	sources := []Source{
		&staticSource{name: "a", scores: map[string]float64{"p1": 0.5, "p2": 0.5, "p3": 0.5}},
		&staticSource{name: "b", scores: map[string]float64{"p4": 0.5, "p2": 0.5}},
	}
	g := NewGeneratorWithSources(Config{StrategyTimeout: time.Second}, logging.Nop(), sources...)
	first, err := g.Generate(context.Background(), nil, GenerateContext{}, nil, 0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := g.Generate(context.Background(), nil, GenerateContext{}, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, first.IDs(), again.IDs())
	}
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, first.IDs())
}
