// Package monitor samples the USDC price and Solana network health on a
// schedule, independent of the main polling store.
package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zkx401/pulse/dashboard"
)

// Default configuration values
const (
	DefaultPriceSpec   = "@every 10s"
	DefaultNetworkSpec = "@every 5s"
	DefaultSampleLimit = 25 * time.Second

	PriceHistorySize = 24
	InitialPrice     = 1.0008
	BaseUptime       = 99.8
	UptimeSpread     = 0.2
	ActiveValidators = 350
)

// PriceSource provides the current price quote
type PriceSource interface {
	PriceInfo(ctx context.Context) (dashboard.PriceInfo, error)
}

// NetworkSource provides current network statistics
type NetworkSource interface {
	NetworkStats(ctx context.Context) (dashboard.NetworkStats, error)
}

// PriceView is the price monitor state
type PriceView struct {
	Current float64   `json:"currentPrice"`
	History []float64 `json:"priceHistory"`
	Change  float64   `json:"priceChange"` // percent against the oldest kept sample
}

// NetworkView is the network monitor state
type NetworkView struct {
	TPS              float64 `json:"tps"`
	BlockHeight      int64   `json:"blockHeight"`
	Uptime           float64 `json:"uptime"`
	ActiveValidators int     `json:"activeValidators"`
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSchedules overrides the cron specs of the two samplers
func WithSchedules(priceSpec, networkSpec string) Option {
	return func(m *Monitor) {
		m.priceSpec = priceSpec
		m.networkSpec = networkSpec
	}
}

// WithUptime replaces the uptime estimate
func WithUptime(fn func() float64) Option {
	return func(m *Monitor) { m.uptime = fn }
}

// WithLogger routes sampling failures to logger
func WithLogger(logger cron.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// Monitor keeps a rolling price history and the latest network health
type Monitor struct {
	prices      PriceSource
	network     NetworkSource
	priceSpec   string
	networkSpec string
	uptime      func() float64
	logger      cron.Logger

	mu      sync.RWMutex
	current float64
	history []float64
	stats   NetworkView
}

// New creates a Monitor. Both views start from the documented initial values.
func New(prices PriceSource, network NetworkSource, opts ...Option) *Monitor {
	m := &Monitor{
		prices:      prices,
		network:     network,
		priceSpec:   DefaultPriceSpec,
		networkSpec: DefaultNetworkSpec,
		uptime:      func() float64 { return BaseUptime + rand.Float64()*UptimeSpread },
		logger:      cron.DiscardLogger,
		current:     InitialPrice,
		stats:       NetworkView{Uptime: BaseUptime, ActiveValidators: ActiveValidators},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Price returns a copy of the price view
func (m *Monitor) Price() PriceView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := PriceView{Current: m.current, History: slices.Clone(m.history)}
	if len(m.history) > 1 && m.history[0] != 0 {
		v.Change = (m.current - m.history[0]) / m.history[0] * 100
	}
	return v
}

// Network returns the network view
func (m *Monitor) Network() NetworkView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// SamplePrice records one price quote. On failure the view is unchanged.
func (m *Monitor) SamplePrice(ctx context.Context) error {
	info, err := m.prices.PriceInfo(ctx)
	if err != nil {
		return fmt.Errorf("price sample: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = info.Price
	m.history = append(m.history, info.Price)
	if extra := len(m.history) - PriceHistorySize; extra > 0 {
		m.history = slices.Delete(m.history, 0, extra)
	}
	return nil
}

// SampleNetwork records one network reading. On failure the view is unchanged.
func (m *Monitor) SampleNetwork(ctx context.Context) error {
	stats, err := m.network.NetworkStats(ctx)
	if err != nil {
		return fmt.Errorf("network sample: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = NetworkView{
		TPS:              stats.TPS,
		BlockHeight:      stats.BlockHeight,
		Uptime:           m.uptime(),
		ActiveValidators: ActiveValidators,
	}
	return nil
}

// Start schedules both samplers. Cancelling ctx stops the scheduler;
// the returned channel closes once running samples have finished.
func (m *Monitor) Start(ctx context.Context) (<-chan struct{}, error) {
	c := cron.New(cron.WithChain(cron.Recover(m.logger)), cron.WithLogger(m.logger))

	jobs := []struct {
		spec   string
		name   string
		sample func(context.Context) error
	}{
		{m.priceSpec, "price", m.SamplePrice},
		{m.networkSpec, "network", m.SampleNetwork},
	}
	for _, job := range jobs {
		sample := job.sample
		name := job.name
		_, err := c.AddFunc(job.spec, func() {
			// keep each sample bounded
			sctx, cancel := context.WithTimeout(ctx, DefaultSampleLimit)
			defer cancel()
			if err := sample(sctx); err != nil {
				m.logger.Error(err, "monitor sample failed", "monitor", name)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s monitor %q: %w", name, job.spec, err)
		}
	}

	c.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return done, nil
}
