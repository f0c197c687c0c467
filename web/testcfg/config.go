package testcfg

import (
	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for web API acceptance tests
type Config struct {
	LogLevel         string `env:"PULSE_TEST_LOG_LEVEL" envDefault:"info"`
	LogHumanFriendly bool   `env:"PULSE_TEST_LOG_HUMAN_FRIENDLY" envDefault:"true"`
	MockSeed         uint64 `env:"PULSE_TEST_MOCK_SEED" envDefault:"42"`
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
