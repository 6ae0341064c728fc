package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "https://fapi.binance.com", cfg.Binance.BaseURL)
	assert.Equal(t, 30.0, cfg.Intervals.ScanSeconds)
	require.NoError(t, cfg.Validate())
}

func TestLoadTOMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "feed"
log_level = "debug"

[redis]
addr = "redis.internal:6380"

[bitget]
symbol_limit = 25
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "feed", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 25, cfg.Bitget.SymbolLimit)
	// Unset sections keep their defaults.
	assert.Equal(t, 5, cfg.Bitget.Concurrency)
	assert.Equal(t, "https://api.bitget.com", cfg.Bitget.BaseURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBBOT_MODE", "engine")
	t.Setenv("ARBBOT_REDIS_ADDR", "cache:6379")
	t.Setenv("ARBBOT_INTERVALS_SCAN_SECONDS", "7.5")
	t.Setenv("ARBBOT_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("ARBBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 7.5, cfg.Intervals.ScanSeconds)
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvAliases(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/arb")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100555")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/arb", cfg.Postgres.DSN)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "123:abc", cfg.Notify.TelegramToken)
	assert.Equal(t, "-100555", cfg.Notify.TelegramChatID)
}

func TestPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://alias:6379")
	t.Setenv("ARBBOT_REDIS_URL", "redis://prefixed:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://prefixed:6379", cfg.Redis.URL)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Intervals.ScanSeconds = 0
	cfg.Notify.TelegramToken = "token-without-chat"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "turbo"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "redis: addr must not be empty")
	assert.Contains(t, msg, "intervals: scan_seconds must be > 0")
	assert.Contains(t, msg, "telegram_token and telegram_chat_id must be set together")
	assert.Equal(t, 5, strings.Count(msg, "\n  - "), "every problem is reported")
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:p@db:5432/arb"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""

	require.NoError(t, cfg.Validate())
}

func TestValidateConfigModeSkipsServiceURL(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "config"
	cfg.ConfigServiceURL = ""
	require.NoError(t, cfg.Validate())

	cfg.Mode = "risk"
	assert.Error(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:secret@db/arb"
	cfg.Postgres.Password = "secret"
	cfg.Redis.URL = "redis://:secret@cache"
	cfg.Redis.Password = "secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.DSN)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.URL)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)

	// Non-secret fields survive, and the original is untouched.
	assert.Equal(t, cfg.Postgres.Host, red.Postgres.Host)
	assert.Equal(t, "secret", cfg.Postgres.Password)
}
