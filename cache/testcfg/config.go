package testcfg

import (
	"github.com/caarlos0/env/v11"
)

// Config holds settings for cache tests that need a live Redis server
type Config struct {
	RedisURL string `env:"PULSE_TEST_REDIS_URL"`
}

// parseConfig wraps env.Parse to return (Config, error) for use with env.Must
func parseConfig() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}

// New loads test configuration from environment variables
func New() Config {
	return env.Must(parseConfig())
}
