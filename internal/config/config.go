package config

import (
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Discord Bot
	DiscordToken string `env:"DISCORD_TOKEN"`
	// ChannelID receives pie announcements and scheduled reports. Empty
	// means the channel each command came from.
	ChannelID string `env:"CHANNEL_ID"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"sqlite://piebot.db"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"pie"`

	// Web Server
	WebBind string `env:"WEB_BIND" envDefault:"0.0.0.0:3000"`

	// Session
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-only-change-me"`

	// Settlement
	SettleInterval    time.Duration `env:"SETTLE_INTERVAL" envDefault:"0s"`
	SettleConcurrency int           `env:"SETTLE_CONCURRENCY" envDefault:"4"`
	InboxShards       int           `env:"INBOX_SHARDS" envDefault:"8"`
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs. Discord settings are
// checked only when the bot is going to connect.
func (c *Config) Validate(requireDiscord bool) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if requireDiscord && c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("SETTLE_INTERVAL must not be negative")
	}
	if c.SettleInterval > 0 && c.ChannelID == "" {
		return fmt.Errorf("CHANNEL_ID is required when SETTLE_INTERVAL is set")
	}
	if c.SettleConcurrency < 1 {
		return fmt.Errorf("SETTLE_CONCURRENCY must be at least 1")
	}
	if c.InboxShards < 1 {
		return fmt.Errorf("INBOX_SHARDS must be at least 1")
	}
	if _, _, err := net.SplitHostPort(c.WebBind); err != nil {
		return fmt.Errorf("WEB_BIND %q: %w", c.WebBind, err)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}
