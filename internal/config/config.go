// Package config defines the top-level configuration for the arbitrage
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Binance   BinanceConfig   `toml:"binance"`
	Bitget    BitgetConfig    `toml:"bitget"`
	Intervals IntervalsConfig `toml:"intervals"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`

	// ConfigServiceURL is where the non-config stages fetch the initial
	// runtime profile from on startup.
	ConfigServiceURL string `toml:"config_service_url"`

	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. When DSN is set it
// wins over the individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When URL is set it wins over
// Addr/Password/DB.
type RedisConfig struct {
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// BinanceConfig holds the Binance USDT-margined futures REST endpoint.
type BinanceConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BitgetConfig holds the Bitget mix-market REST endpoint and scan bounds.
type BitgetConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProductType    string `toml:"product_type"`
	SymbolLimit    int    `toml:"symbol_limit"`
	Concurrency    int    `toml:"concurrency"`
}

// IntervalsConfig holds the fallback loop cadences, in seconds. The live
// values come from the configuration service profile; these apply until the
// first profile is fetched.
type IntervalsConfig struct {
	ScanSeconds  float64 `toml:"scan_seconds"`
	CloseSeconds float64 `toml:"close_seconds"`
	OpenSeconds  float64 `toml:"open_seconds"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per client IP per window; 0 disables limiting.
	RateLimit           int     `toml:"rate_limit"`
	RateLimitWindowSecs float64 `toml:"rate_limit_window_seconds"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Binance: BinanceConfig{
			BaseURL:        "https://fapi.binance.com",
			TimeoutSeconds: 10,
		},
		Bitget: BitgetConfig{
			BaseURL:        "https://api.bitget.com",
			TimeoutSeconds: 10,
			ProductType:    "USDT-FUTURES",
			SymbolLimit:    0,
			Concurrency:    5,
		},
		Intervals: IntervalsConfig{
			ScanSeconds:  30,
			CloseSeconds: 10,
			OpenSeconds:  5,
		},
		Server: ServerConfig{
			Enabled:             true,
			Port:                8000,
			CORSOrigins:         []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:           0,
			RateLimitWindowSecs: 1,
		},
		Notify: NotifyConfig{
			Events: []string{"open", "close", "error"},
		},
		ConfigServiceURL: "http://localhost:8000",
		Mode:             "full",
		LogLevel:         "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"feed":    true,
	"engine":  true,
	"gateway": true,
	"risk":    true,
	"config":  true,
	"stats":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: feed, engine, gateway, risk, config, stats, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if strings.TrimSpace(c.Redis.URL) == "" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty (or set redis.url)")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Venues
	if c.Binance.BaseURL == "" {
		errs = append(errs, "binance: base_url must not be empty")
	}
	if c.Bitget.BaseURL == "" {
		errs = append(errs, "bitget: base_url must not be empty")
	}
	if c.Bitget.Concurrency < 1 {
		errs = append(errs, "bitget: concurrency must be >= 1")
	}
	if c.Bitget.SymbolLimit < 0 {
		errs = append(errs, "bitget: symbol_limit must be >= 0")
	}

	// Intervals
	if c.Intervals.ScanSeconds <= 0 {
		errs = append(errs, "intervals: scan_seconds must be > 0")
	}
	if c.Intervals.CloseSeconds <= 0 {
		errs = append(errs, "intervals: close_seconds must be > 0")
	}
	if c.Intervals.OpenSeconds <= 0 {
		errs = append(errs, "intervals: open_seconds must be > 0")
	}

	// Config service — every stage except the config service itself needs it.
	if c.Mode != "config" && strings.TrimSpace(c.ConfigServiceURL) == "" {
		errs = append(errs, "config_service_url must not be empty for mode "+c.Mode)
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify — Telegram token and chat id go together.
	if (c.Notify.TelegramToken != "") != (c.Notify.TelegramChatID != "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
