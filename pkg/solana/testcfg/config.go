package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for solana client acceptance tests
type Config struct {
	Samples     int           `env:"SOLANA_TEST_SAMPLES" envDefault:"10"`
	HTTPTimeout time.Duration `env:"SOLANA_TEST_HTTP_TIMEOUT" envDefault:"30s"`
	BaseURL     string        `env:"SOLANA_TEST_BASE_URL" envDefault:"https://api.mainnet-beta.solana.com"`
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
