// Package retry computes backoff delays and runs operations under them.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/zkx401/pulse/pkg/clock"
)

// Config defines retry behavior
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration // zero means unbounded
	Multiplier    float64
	Linear        bool // delay grows as InitialDelay × attempt instead of exponentially
	JitterEnabled bool
}

// DefaultConfig returns the dashboard fetch retry settings: 1s, 2s, 4s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before the given 1-based retry attempt.
func (cfg Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay float64
	switch {
	case cfg.Linear:
		delay = float64(cfg.InitialDelay) * float64(attempt)
	default:
		multiplier := cfg.Multiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
		delay = float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	}

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// ±15% spread keeps reconnecting clients apart
	if cfg.JitterEnabled {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// Exhausted reports whether attempt is past the configured maximum.
func (cfg Config) Exhausted(attempt int) bool {
	return attempt > cfg.MaxRetries
}

// WithBackoff executes fn, retrying failures up to MaxRetries times.
func WithBackoff(ctx context.Context, cfg Config, c clock.Clock, logger *slog.Logger, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.InfoContext(ctx, "Operation succeeded after retries",
					slog.String("operation", operation),
					slog.Int("retries", attempt))
			}
			return nil
		}

		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(attempt + 1)
		logger.WarnContext(ctx, "Operation failed, retrying",
			slog.String("operation", operation),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Duration("retry_in", delay),
			slog.Any("error", lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-c.After(delay):
		}
	}

	return fmt.Errorf("%w: %s after %d retries: %w", ErrExhausted, operation, cfg.MaxRetries, lastErr)
}
