// Package config defines the top-level configuration for the signal engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSENTINEL_* environment variables.
type Config struct {
	GoMarket GoMarketConfig `toml:"gomarket"`
	Cache    CacheConfig    `toml:"cache"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Limits   LimitsConfig   `toml:"limits"`
	Alert    AlertConfig    `toml:"alert"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Sessions []SeedSession  `toml:"sessions"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// GoMarketConfig holds GoMarket API endpoints and credentials.
type GoMarketConfig struct {
	BaseURL      string   `toml:"base_url"`
	WsURL        string   `toml:"ws_url"`
	ApiKey       string   `toml:"api_key"`
	AccessCode   string   `toml:"access_code"`
	FetchTimeout duration `toml:"fetch_timeout"`
	Exchanges    []string `toml:"exchanges"`
}

// CacheConfig selects the quote cache backend.
type CacheConfig struct {
	// Backend is "memory" for a single-process cache or "redis" for a
	// shared one.
	Backend string `toml:"backend"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the opportunity
// history store. Disabled by default; history then stays in memory only.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// MonitorConfig holds the default parameters new monitor sessions start with.
// Per-session values override these.
type MonitorConfig struct {
	StalenessLimit       duration `toml:"staleness_limit"`
	EvalInterval         duration `toml:"eval_interval"`
	UpdateFrequency      duration `toml:"update_frequency"`
	SignificantChangePct float64  `toml:"significant_change_pct"`
	MinProfitPct         float64  `toml:"min_profit_pct"`
	MinProfitAbs         float64  `toml:"min_profit_abs"`
	HistorySize          int      `toml:"history_size"`
}

// LimitsConfig holds session concurrency caps.
type LimitsConfig struct {
	MaxArbitragePerOwner  int      `toml:"max_arbitrage_per_owner"`
	MaxMarketViewPerOwner int      `toml:"max_market_view_per_owner"`
	MaxTotal              int      `toml:"max_total"`
	StopTimeout           duration `toml:"stop_timeout"`
}

// AlertConfig holds alert dispatch parameters.
type AlertConfig struct {
	DebounceWindow duration `toml:"debounce_window"`
	// RateLimit ops per RateWindow per channel.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay duration `toml:"retry_delay"`
	// HistorySize bounds the per-channel alert record ring.
	HistorySize int `toml:"history_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token"`
	DefaultChannel string `toml:"default_channel"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// SeedSession describes a monitor session started automatically at boot.
type SeedSession struct {
	Owner     string   `toml:"owner"`
	Kind      string   `toml:"kind"`
	Symbols   []string `toml:"symbols"`
	Exchanges []string `toml:"exchanges"`
	// Zero values fall back to the [monitor] defaults.
	MinProfitPct         float64  `toml:"min_profit_pct"`
	MinProfitAbs         float64  `toml:"min_profit_abs"`
	SignificantChangePct float64  `toml:"significant_change_pct"`
	UpdateFrequency      duration `toml:"update_frequency"`
	Channel              string   `toml:"channel"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		GoMarket: GoMarketConfig{
			BaseURL:      "https://gomarket-api.goquant.io",
			WsURL:        "wss://gomarket-api.goquant.io/ws",
			FetchTimeout: duration{10 * time.Second},
			Exchanges:    []string{"binance", "okx", "bybit", "deribit"},
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Monitor: MonitorConfig{
			StalenessLimit:       duration{30 * time.Second},
			EvalInterval:         duration{time.Second},
			UpdateFrequency:      duration{30 * time.Second},
			SignificantChangePct: 0.1,
			MinProfitPct:         0.5,
			MinProfitAbs:         1.0,
			HistorySize:          1000,
		},
		Limits: LimitsConfig{
			MaxArbitragePerOwner:  10,
			MaxMarketViewPerOwner: 20,
			MaxTotal:              100,
			StopTimeout:           duration{5 * time.Second},
		},
		Alert: AlertConfig{
			DebounceWindow: duration{60 * time.Second},
			RateLimit:      1,
			RateWindow:     duration{time.Second},
			MaxRetries:     3,
			RetryDelay:     duration{500 * time.Millisecond},
			HistorySize:    100,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validKinds = map[string]bool{
	"arbitrage":   true,
	"market_view": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.GoMarket.BaseURL == "" {
		errs = append(errs, "gomarket: base_url must not be empty")
	}
	if c.GoMarket.FetchTimeout.Duration <= 0 {
		errs = append(errs, "gomarket: fetch_timeout must be positive")
	}
	if len(c.GoMarket.Exchanges) == 0 {
		errs = append(errs, "gomarket: at least one exchange must be configured")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when cache.backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, "postgres: dsn must not be empty when enabled")
	}

	if c.Monitor.MinProfitPct < 0 {
		errs = append(errs, "monitor: min_profit_pct must not be negative")
	}
	if c.Monitor.MinProfitAbs < 0 {
		errs = append(errs, "monitor: min_profit_abs must not be negative")
	}
	if c.Monitor.StalenessLimit.Duration <= 0 {
		errs = append(errs, "monitor: staleness_limit must be positive")
	}
	if c.Monitor.EvalInterval.Duration <= 0 {
		errs = append(errs, "monitor: eval_interval must be positive")
	}
	if c.Monitor.UpdateFrequency.Duration <= 0 {
		errs = append(errs, "monitor: update_frequency must be positive")
	}
	if c.Monitor.SignificantChangePct < 0 {
		errs = append(errs, "monitor: significant_change_pct must not be negative")
	}

	if c.Limits.MaxArbitragePerOwner <= 0 {
		errs = append(errs, "limits: max_arbitrage_per_owner must be positive")
	}
	if c.Limits.MaxMarketViewPerOwner <= 0 {
		errs = append(errs, "limits: max_market_view_per_owner must be positive")
	}
	if c.Limits.MaxTotal <= 0 {
		errs = append(errs, "limits: max_total must be positive")
	}

	if c.Alert.RateLimit <= 0 {
		errs = append(errs, "alert: rate_limit must be positive")
	}
	if c.Alert.RateWindow.Duration <= 0 {
		errs = append(errs, "alert: rate_window must be positive")
	}
	if c.Alert.MaxRetries < 0 {
		errs = append(errs, "alert: max_retries must not be negative")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	for i, s := range c.Sessions {
		if s.Owner == "" {
			errs = append(errs, fmt.Sprintf("sessions[%d]: owner must not be empty", i))
		}
		if !validKinds[s.Kind] {
			errs = append(errs, fmt.Sprintf("sessions[%d]: unknown kind %q (valid: arbitrage, market_view)", i, s.Kind))
		}
		if len(s.Symbols) == 0 {
			errs = append(errs, fmt.Sprintf("sessions[%d]: at least one symbol required", i))
		}
		// An empty exchange list falls back to the [gomarket] exchanges.
		exchanges := len(s.Exchanges)
		if exchanges == 0 {
			exchanges = len(c.GoMarket.Exchanges)
		}
		if s.Kind == "arbitrage" && exchanges < 2 {
			errs = append(errs, fmt.Sprintf("sessions[%d]: arbitrage needs at least two exchanges", i))
		}
		if s.MinProfitPct < 0 || s.MinProfitAbs < 0 {
			errs = append(errs, fmt.Sprintf("sessions[%d]: thresholds must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
