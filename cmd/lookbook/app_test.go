package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rushteam/lookbook/config"
	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const seedYAML = `
products:
  - id: SHIRT-001
    categoryPath: [Tops, Shirts]
    gender: men
    attributes: {colorFamily: white, season: all, formality: smart}
    embedding: [1, 0]
    popularity: 0.9
  - id: PANTS-002
    categoryPath: [Bottoms, Pants]
    gender: men
    attributes: {colorFamily: navy, season: all, formality: smart}
    embedding: [0.9, 0.1]
    popularity: 0.5
  - id: SHOES-004
    categoryPath: [Shoes]
    gender: unisex
    attributes: {colorFamily: black, season: all, formality: smart}
    embedding: [0, 1]
    popularity: 0.6
coOccurrence:
  - product: SHIRT-001
    symmetric: true
    neighbors:
      - {id: PANTS-002, weight: 0.8}
      - {id: SHOES-004, weight: 0.5}
stock:
  SHIRT-001: 3
  PANTS-002: 5
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	cfg := config.Default()
	cfg.SeedPath = path
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Ledger.Backend = config.BackendBadger
	cfg.Ledger.Badger.InMemory = true
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestBuild_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := build(ctx, testConfig(t), logging.Nop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	now := time.Now().UTC()
	require.NoError(t, a.service.Record(ctx, core.InteractionEvent{
		UserID: "U-1", ProductID: "SHIRT-001", Kind: core.EventView, Timestamp: now.Add(-time.Hour),
	}))
	require.NoError(t, a.refresher.Refresh(ctx))

	resp, err := a.service.RecommendForYou(ctx, "U-1", 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	for _, it := range resp.Items {
		assert.NotEmpty(t, it.Reasons, it.ProductID)
	}

	look, err := a.service.CompleteTheLook(ctx, "SHIRT-001", 3)
	require.NoError(t, err)
	assert.False(t, look.Degraded)
	got := make([]string, len(look.Items))
	for i, it := range look.Items {
		got[i] = it.ProductID
	}
	assert.Equal(t, []string{"PANTS-002", "SHOES-004"}, got)

	assert.True(t, a.service.Health(ctx).Ready)
}

func TestBuild_BadSeed(t *testing.T) {
	cfg := config.Default()
	cfg.SeedPath = filepath.Join(t.TempDir(), "missing.yaml")
	a, err := build(context.Background(), &cfg, logging.Nop())
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestBuild_FailureReleasesLedger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Badger = ledger.BadgerConfig{Dir: t.TempDir()}
	cfg.Rank.FilterExprs = []string{"cand.price_tier <<< 2"}

	a, err := build(context.Background(), cfg, logging.Nop())
	require.Error(t, err)
	assert.Nil(t, a)

	// 目录锁已释放，同一目录可以再次打开
	cfg.Rank.FilterExprs = nil
	a, err = build(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestSupervise_StopsOnCancel(t *testing.T) {
	a, err := build(context.Background(), testConfig(t), logging.Nop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.supervise().Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestReload_KeepsConfigOnError(t *testing.T) {
	a, err := build(context.Background(), testConfig(t), logging.Nop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	path := filepath.Join(t.TempDir(), "lookbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rank:\n  filter_exprs:\n    - \"cand.price_tier <= 2\"\n"), 0o600))
	a.reload(path)
	assert.Equal(t, []string{"cand.price_tier <= 2"}, a.ranker.Config().FilterExprs)

	require.NoError(t, os.WriteFile(path, []byte("rank:\n  filter_exprs:\n    - \"cand.price_tier <=\"\n"), 0o600))
	a.reload(path)
	assert.Equal(t, []string{"cand.price_tier <= 2"}, a.ranker.Config().FilterExprs)
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\nledger:\n  backend: badger\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "--config", path})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "config ok: store=memory features=kv ledger=badger addr=:9090\n", out.String())
}
