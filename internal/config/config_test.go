package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"
log_level = "debug"

[gomarket]
exchanges = ["binance", "okx"]
fetch_timeout = "3s"

[monitor]
min_profit_pct = 0.25
staleness_limit = "45s"

[[sessions]]
owner = "ops"
kind = "arbitrage"
symbols = ["BTC-USDT"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, []string{"binance", "okx"}, cfg.GoMarket.Exchanges)
	assert.Equal(t, 3*time.Second, cfg.GoMarket.FetchTimeout.Duration)
	assert.Equal(t, 0.25, cfg.Monitor.MinProfitPct)
	assert.Equal(t, 45*time.Second, cfg.Monitor.StalenessLimit.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1.0, cfg.Monitor.MinProfitAbs)
	assert.Equal(t, 100, cfg.Limits.MaxTotal)

	require.Len(t, cfg.Sessions, 1)
	assert.Equal(t, "ops", cfg.Sessions[0].Owner)
	assert.Equal(t, []string{"BTC-USDT"}, cfg.Sessions[0].Symbols)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "monitor"`)

	t.Setenv("ARBSENTINEL_MODE", "full")
	t.Setenv("ARBSENTINEL_NOTIFY_TELEGRAM_TOKEN", "123:secret")
	t.Setenv("ARBSENTINEL_GOMARKET_EXCHANGES", "binance, deribit")
	t.Setenv("ARBSENTINEL_MONITOR_MIN_PROFIT_PCT", "0.75")
	t.Setenv("ARBSENTINEL_LIMITS_STOP_TIMEOUT", "9s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "123:secret", cfg.Notify.TelegramToken)
	assert.Equal(t, []string{"binance", "deribit"}, cfg.GoMarket.Exchanges)
	assert.Equal(t, 0.75, cfg.Monitor.MinProfitPct)
	assert.Equal(t, 9*time.Second, cfg.Limits.StopTimeout.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.GoMarket.Exchanges = nil
	cfg.Monitor.MinProfitPct = -1
	cfg.Cache.Backend = "etcd"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
	assert.Contains(t, err.Error(), "exchange")
	assert.Contains(t, err.Error(), "min_profit_pct")
	assert.Contains(t, err.Error(), "backend")
}

func TestValidateSeedSessions(t *testing.T) {
	cfg := Defaults()
	cfg.Sessions = []SeedSession{{
		Owner:     "ops",
		Kind:      "arbitrage",
		Symbols:   []string{"BTC-USDT"},
		Exchanges: []string{"binance"},
	}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two exchanges")

	cfg.Sessions[0].Exchanges = nil // falls back to the gomarket exchange list
	assert.NoError(t, cfg.Validate())
}

func TestValidateRedisBackendNeedsAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Backend = "redis"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
