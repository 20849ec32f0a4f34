package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/lookbook/core"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 14*24*time.Hour, cfg.Ledger.Profile.HalfLife)
	assert.InDelta(t, 1.0, cfg.Rank.Weights.Sum(), 1e-9)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
ledger:
  backend: badger
  badger:
    dir: /var/lib/lookbook
  profile:
    half_life: 72h
rank:
  weights:
    strategy: 0.5
    affinity: 0.5
    popularity: 0
    recency: 0
  filter_exprs:
    - cand.price_tier > 4
recommend:
  for_you_ttl: 30s
`)
	t.Setenv("LOOKBOOK_SERVER__ADDR", ":7070")
	t.Setenv("LOOKBOOK_RANK__DIVERSITY_K", "2")
	t.Setenv("LOOKBOOK_BUNDLE__DENY_RULES", `cand.category == "socks"; cand.gender == "kids"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, BackendBadger, cfg.Ledger.Backend)
	assert.Equal(t, "/var/lib/lookbook", cfg.Ledger.Badger.Dir)
	assert.Equal(t, 72*time.Hour, cfg.Ledger.Profile.HalfLife)
	assert.Equal(t, 90*24*time.Hour, cfg.Ledger.Profile.Lookback, "untouched defaults survive")
	assert.InDelta(t, 0.5, cfg.Rank.Weights.Strategy, 1e-9)
	assert.Equal(t, []string{"cand.price_tier > 4"}, cfg.Rank.FilterExprs)
	assert.Equal(t, 2, cfg.Rank.DiversityK)
	assert.Equal(t, []string{`cand.category == "socks"`, `cand.gender == "kids"`}, cfg.Bundle.DenyRules)
	assert.Equal(t, 30*time.Second, cfg.Recommend.ForYouTTL)
	assert.Equal(t, 5*time.Minute, cfg.Recommend.LookTTL)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "store:\n  backend: cassandra\n",
		"zero weights":    "rank:\n  weights: {strategy: 0, affinity: 0, popularity: 0, recency: 0}\n",
		"retention":       "ledger:\n  profile:\n    retention: 24h\n",
		"feast host":      "features:\n  backend: feast\n  feast:\n    host: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			require.Error(t, err)
			assert.True(t, core.IsValidation(err), "%v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.False(t, core.IsValidation(err))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "rank.weights.strategy", envKey("LOOKBOOK_RANK__WEIGHTS__STRATEGY"))
	assert.Equal(t, "seed_path", envKey("LOOKBOOK_SEED_PATH"))
	assert.Empty(t, envKey("LOOKBOOK_CONFIG"))
}
