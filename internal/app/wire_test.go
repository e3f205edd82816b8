package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goquant/arbsentinel/internal/config"
)

func TestSessionDefaultsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Monitor.HistorySize = 250

	d := sessionDefaults(&cfg)
	assert.Equal(t, cfg.GoMarket.Exchanges, d.Exchanges)
	assert.Equal(t, cfg.Monitor.MinProfitPct, d.MinProfitPct)
	assert.Equal(t, cfg.Monitor.MinProfitAbs, d.MinProfitAbs)
	assert.Equal(t, 250, d.HistorySize)
	assert.Equal(t, cfg.Monitor.StalenessLimit.Duration, d.StalenessLimit)
	assert.Equal(t, cfg.GoMarket.FetchTimeout.Duration, d.FetchTimeout)
}

func TestSeedConfigOverlay(t *testing.T) {
	cfg := config.Defaults()
	defaults := sessionDefaults(&cfg)

	seed := config.SeedSession{
		Owner:        "ops",
		Kind:         "arbitrage",
		Symbols:      []string{"BTC-USDT"},
		MinProfitPct: 2,
	}
	got := seedConfig(defaults, seed)

	assert.Equal(t, []string{"BTC-USDT"}, got.Symbols)
	// Omitted fields inherit the configured defaults.
	assert.Equal(t, defaults.Exchanges, got.Exchanges)
	assert.Equal(t, defaults.MinProfitAbs, got.MinProfitAbs)
	assert.Equal(t, defaults.HistorySize, got.HistorySize)
	assert.Equal(t, defaults.Channel, got.Channel)
	assert.Equal(t, 2.0, got.MinProfitPct)
	assert.Equal(t, defaults.UpdateFrequency, got.UpdateFrequency)
}
