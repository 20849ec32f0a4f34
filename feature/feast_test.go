package feature

import (
	"context"
	"errors"
	"testing"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

func strList(v ...string) *types.Value {
	return &types.Value{Val: &types.Value_StringListVal{StringListVal: &types.StringList{Val: v}}}
}

// newFeastWithRows 模拟在线特征服务：每个请求实体返回一行，未知实体返回空行。
func newFeastWithRows(rows map[string]feastsdk.Row, err error) (*FeastStore, *feastsdk.OnlineFeaturesRequest) {
	s := NewFeastStore(nil, FeastConfig{Project: "lookbook"}, nil)
	var seen feastsdk.OnlineFeaturesRequest
	s.fetch = func(_ context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
		seen = *req
		if err != nil {
			return nil, err
		}
		out := make([]feastsdk.Row, len(req.Entities))
		for i, entity := range req.Entities {
			out[i] = feastsdk.Row{}
			for _, id := range entity {
				if row, ok := rows[id.GetStringVal()]; ok {
					out[i] = row
				}
			}
		}
		return out, nil
	}
	return s, &seen
}

func TestFeastStore_DecodeProducts(t *testing.T) {
	rows := map[string]feastsdk.Row{
		"SHIRT-001": {
			"product_features:category_path": strList("tops", "shirts"),
			"product_features:color_family":  feastsdk.StrVal("white"),
			"product_features:price_tier":    feastsdk.Int64Val(2),
			"product_features:tags":          strList("linen"),
			"product_features:embedding":     {Val: &types.Value_FloatListVal{FloatListVal: &types.FloatList{Val: []float32{0.5, 1}}}},
			"product_features:added_at":      feastsdk.Int64Val(1750000000),
		},
		"GHOST": {
			// 没有类目，视为缺失
			"product_features:color_family": feastsdk.StrVal("black"),
		},
	}
	s, req := newFeastWithRows(rows, nil)

	got, err := s.BatchGetProductFeatures(context.Background(), []string{"SHIRT-001", "GHOST"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	pf := got["SHIRT-001"]
	assert.Equal(t, "shirts", pf.Category())
	assert.Equal(t, 2, pf.Attributes.PriceTier)
	assert.Equal(t, []float64{0.5, 1}, pf.Embedding)
	assert.True(t, pf.HasTag("linen"))
	assert.False(t, pf.AddedAt.IsZero())

	assert.Equal(t, "lookbook", req.Project)
	assert.Contains(t, req.Features, "product_features:category_path")
	require.Len(t, req.Entities, 2)
	assert.Equal(t, "SHIRT-001", req.Entities[0]["product_id"].GetStringVal())

	_, err = s.GetProductFeatures(context.Background(), "GHOST")
	assert.True(t, core.IsNotFound(err))
	require.Len(t, req.Entities, 1)

	pf, err = s.GetProductFeatures(context.Background(), "SHIRT-001")
	require.NoError(t, err)
	assert.Equal(t, "SHIRT-001", pf.ProductID)
}

func TestFeastStore_RowCountMismatch(t *testing.T) {
	s := NewFeastStore(nil, FeastConfig{}, nil)
	s.fetch = func(context.Context, *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
		return []feastsdk.Row{{}, {}}, nil
	}
	_, err := s.GetProductFeatures(context.Background(), "SHIRT-001")
	assert.True(t, core.IsUnavailable(err))
}

func TestFeastStore_Errors(t *testing.T) {
	s, _ := newFeastWithRows(nil, errors.New("dial tcp: refused"))
	_, err := s.BatchGetProductFeatures(context.Background(), []string{"a"})
	assert.True(t, core.IsUnavailable(err))

	_, err = s.ListProductIDs(context.Background())
	assert.True(t, core.IsNotSupported(err))
}

func TestFeastStore_User(t *testing.T) {
	s, _ := newFeastWithRows(map[string]feastsdk.Row{"u1": {"pref_size": feastsdk.StrVal("L")}}, nil)
	uf, err := s.GetUserFeatures(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "L", uf.Preferences.Size)

	_, err = s.GetUserFeatures(context.Background(), "u2")
	assert.True(t, core.IsNotFound(err))
}
