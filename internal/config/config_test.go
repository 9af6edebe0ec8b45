package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"DISCORD_TOKEN", "CHANNEL_ID", "DATABASE_URL", "MONGO_DATABASE", "WEB_BIND", "JWT_SECRET", "SETTLE_INTERVAL", "SETTLE_CONCURRENCY", "INBOX_SHARDS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://piebot.db", cfg.DatabaseURL)
	assert.Equal(t, "pie", cfg.MongoDatabase)
	assert.Equal(t, "0.0.0.0:3000", cfg.WebBind)
	assert.Equal(t, "dev-only-change-me", cfg.JWTSecret)
	assert.Equal(t, time.Duration(0), cfg.SettleInterval)
	assert.Equal(t, 4, cfg.SettleConcurrency)
	assert.Equal(t, 8, cfg.InboxShards)
	assert.NoError(t, cfg.Validate(false))
	assert.Error(t, cfg.Validate(true))
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://localhost/pie")
	t.Setenv("CHANNEL_ID", "C1")
	t.Setenv("SETTLE_INTERVAL", "1h")
	t.Setenv("INBOX_SHARDS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SettleInterval)
	assert.Equal(t, 2, cfg.InboxShards)
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SETTLE_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DiscordToken:      "t",
			DatabaseURL:       "memory://",
			WebBind:           ":3000",
			JWTSecret:         "s",
			SettleConcurrency: 1,
			InboxShards:       1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.DatabaseURL = "" }},
		{"interval without channel", func(c *Config) { c.SettleInterval = time.Minute }},
		{"negative interval", func(c *Config) { c.SettleInterval = -time.Minute }},
		{"zero concurrency", func(c *Config) { c.SettleConcurrency = 0 }},
		{"zero shards", func(c *Config) { c.InboxShards = 0 }},
		{"bad bind", func(c *Config) { c.WebBind = "localhost" }},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }},
	}

	base := valid()
	require.NoError(t, base.Validate(true))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate(true))
		})
	}
}
