package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Sentinel errors for configuration loading
var (
	ErrDotEnv      = errors.New("failed to load .env file")
	ErrEnvironment = errors.New("invalid environment configuration")
	ErrUnknownMode = errors.New("unknown data source mode")
)

// Mode selects where snapshot data comes from
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing
func (m *Mode) UnmarshalText(text []byte) error {
	switch mode := Mode(text); mode {
	case ModeMock, ModeLive:
		*m = mode
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, text)
	}
}

// Config holds all configuration loaded from environment variables
type Config struct {
	HTTPPort         string        `env:"PULSE_HTTP_PORT" envDefault:"8080"`
	HTTPHost         string        `env:"PULSE_HTTP_HOST" envDefault:"localhost"`
	ShutdownTimeout  time.Duration `env:"PULSE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogHumanFriendly bool          `env:"LOG_HUMAN_FRIENDLY" envDefault:"false"`

	Mode         Mode          `env:"PULSE_DATA_SOURCE" envDefault:"mock"`
	PollInterval time.Duration `env:"PULSE_POLL_INTERVAL" envDefault:"30s"`
	MaxRetries   int           `env:"PULSE_MAX_RETRIES" envDefault:"3"`
	RetryDelay   time.Duration `env:"PULSE_RETRY_DELAY" envDefault:"1s"`

	MockSeed        uint64  `env:"PULSE_MOCK_SEED" envDefault:"0"` // zero picks a random seed
	MockFailureRate float64 `env:"PULSE_MOCK_FAILURE_RATE" envDefault:"0.01"`
	FeedSize        int     `env:"PULSE_FEED_SIZE" envDefault:"200"`
	FeedRealtime    bool    `env:"PULSE_FEED_REALTIME" envDefault:"true"`

	RedisURL string        `env:"PULSE_REDIS_URL"` // empty keeps the cache in memory
	CacheTTL time.Duration `env:"PULSE_CACHE_TTL" envDefault:"5m"`

	SolanaRPCURL      string        `env:"PULSE_SOLANA_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	SolanaWSURL       string        `env:"PULSE_SOLANA_WS_URL"` // empty uses synthetic push events
	SolanaAccount     string        `env:"PULSE_SOLANA_ACCOUNT"`
	CoinGeckoURL      string        `env:"PULSE_COINGECKO_URL" envDefault:"https://api.coingecko.com/api/v3"`
	HTTPClientTimeout time.Duration `env:"PULSE_HTTP_CLIENT_TIMEOUT" envDefault:"10s"`
}

// Load reads the given .env files, then parses the environment. Missing
// files are skipped; variables already set take precedence over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrDotEnv, file, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return cfg, nil
}

// New loads all configuration from .env and environment variables
func New() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
