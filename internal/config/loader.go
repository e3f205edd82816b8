package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSENTINEL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSENTINEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── GoMarket ──
	setStr(&cfg.GoMarket.BaseURL, "ARBSENTINEL_GOMARKET_BASE_URL")
	setStr(&cfg.GoMarket.WsURL, "ARBSENTINEL_GOMARKET_WS_URL")
	setStr(&cfg.GoMarket.ApiKey, "ARBSENTINEL_GOMARKET_API_KEY")
	setStr(&cfg.GoMarket.AccessCode, "ARBSENTINEL_GOMARKET_ACCESS_CODE")
	setDuration(&cfg.GoMarket.FetchTimeout, "ARBSENTINEL_GOMARKET_FETCH_TIMEOUT")
	setStringSlice(&cfg.GoMarket.Exchanges, "ARBSENTINEL_GOMARKET_EXCHANGES")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "ARBSENTINEL_CACHE_BACKEND")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBSENTINEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSENTINEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSENTINEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSENTINEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSENTINEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSENTINEL_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSENTINEL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSENTINEL_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSENTINEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSENTINEL_POSTGRES_POOL_MIN_CONNS")

	// ── Monitor defaults ──
	setDuration(&cfg.Monitor.StalenessLimit, "ARBSENTINEL_MONITOR_STALENESS_LIMIT")
	setDuration(&cfg.Monitor.EvalInterval, "ARBSENTINEL_MONITOR_EVAL_INTERVAL")
	setDuration(&cfg.Monitor.UpdateFrequency, "ARBSENTINEL_MONITOR_UPDATE_FREQUENCY")
	setFloat64(&cfg.Monitor.SignificantChangePct, "ARBSENTINEL_MONITOR_SIGNIFICANT_CHANGE_PCT")
	setFloat64(&cfg.Monitor.MinProfitPct, "ARBSENTINEL_MONITOR_MIN_PROFIT_PCT")
	setFloat64(&cfg.Monitor.MinProfitAbs, "ARBSENTINEL_MONITOR_MIN_PROFIT_ABS")
	setInt(&cfg.Monitor.HistorySize, "ARBSENTINEL_MONITOR_HISTORY_SIZE")

	// ── Limits ──
	setInt(&cfg.Limits.MaxArbitragePerOwner, "ARBSENTINEL_LIMITS_MAX_ARBITRAGE_PER_OWNER")
	setInt(&cfg.Limits.MaxMarketViewPerOwner, "ARBSENTINEL_LIMITS_MAX_MARKET_VIEW_PER_OWNER")
	setInt(&cfg.Limits.MaxTotal, "ARBSENTINEL_LIMITS_MAX_TOTAL")
	setDuration(&cfg.Limits.StopTimeout, "ARBSENTINEL_LIMITS_STOP_TIMEOUT")

	// ── Alert ──
	setDuration(&cfg.Alert.DebounceWindow, "ARBSENTINEL_ALERT_DEBOUNCE_WINDOW")
	setInt(&cfg.Alert.RateLimit, "ARBSENTINEL_ALERT_RATE_LIMIT")
	setDuration(&cfg.Alert.RateWindow, "ARBSENTINEL_ALERT_RATE_WINDOW")
	setInt(&cfg.Alert.MaxRetries, "ARBSENTINEL_ALERT_MAX_RETRIES")
	setDuration(&cfg.Alert.RetryDelay, "ARBSENTINEL_ALERT_RETRY_DELAY")
	setInt(&cfg.Alert.HistorySize, "ARBSENTINEL_ALERT_HISTORY_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSENTINEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.DefaultChannel, "ARBSENTINEL_NOTIFY_DEFAULT_CHANNEL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSENTINEL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSENTINEL_SERVER_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSENTINEL_MODE")
	setStr(&cfg.LogLevel, "ARBSENTINEL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
