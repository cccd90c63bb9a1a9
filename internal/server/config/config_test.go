package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"server"}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, ":8080", cfg.EndpointAddr)
	assert.Equal(t, int64(200), cfg.TokensPerCredit)
	assert.Equal(t, int64(1500), cfg.PlanBaseCredits)
	assert.Equal(t, 100, cfg.SyncPullLimit)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
}

func TestParseEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CHERISHLY_ADDR", ":9090")
	t.Setenv("CHERISHLY_TOKENS_PER_CREDIT", "100")
	t.Setenv("CHERISHLY_AI_TIMEOUT", "45s")
	t.Setenv("CHERISHLY_SYNC_PULL_LIMIT", "25")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, ":9090", cfg.EndpointAddr)
	assert.Equal(t, int64(100), cfg.TokensPerCredit)
	assert.Equal(t, 45*time.Second, cfg.AITimeout)
	assert.Equal(t, 25, cfg.SyncPullLimit)
}

func TestParseEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("CHERISHLY_TOKENS_PER_CREDIT", "lots")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, int64(200), cfg.TokensPerCredit)
}

func TestParseJsonOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")
	body := `{
		"endpoint_addr": ":7070",
		"access_token_validity_duration": "30m",
		"plan_base_credits": 3000,
		"sync_pull_limit": 50
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	resetArgs(t, "-c", path)

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, ":7070", cfg.EndpointAddr)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, int64(3000), cfg.PlanBaseCredits)
	assert.Equal(t, 50, cfg.SyncPullLimit)
	// untouched fields keep defaults
	assert.Equal(t, int64(200), cfg.TokensPerCredit)
}

func TestParseFlags(t *testing.T) {
	resetArgs(t, "-a", ":6060", "-d", "postgres://x", "-t", "5")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":6060", cfg.EndpointAddr)
	assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenValidityDuration)
}
