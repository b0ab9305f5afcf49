package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	// Server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`

	// Storage
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass   string `env:"REDIS_PASS"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`

	// Caching
	ConfigCacheTTL  time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"5m"`
	SegmentCacheTTL time.Duration `env:"SEGMENT_CACHE_TTL" envDefault:"1h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment into AppConfig.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
