// Package config loads server settings from the environment. A local .env
// file is honored for development.
package config

import (
	"fmt"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port int `envconfig:"PORT" default:"8080"`

	// DatabaseURL enables the match-history archive when set. Live room
	// state is never persisted; only finished matches are archived.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// ChatRateLimit is the per-author chat event budget per window.
	ChatRateLimit  int `envconfig:"CHAT_RATE_LIMIT" default:"20"`
	ChatRateWindow int `envconfig:"CHAT_RATE_WINDOW_SECONDS" default:"10"`

	// ConnRateLimit is the per-connection message budget per second.
	ConnRateLimit int `envconfig:"CONN_RATE_LIMIT" default:"10"`

	// DefaultGame is the variant new rooms start with.
	DefaultGame string `envconfig:"DEFAULT_GAME" default:"liars"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}
