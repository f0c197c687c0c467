// Package marketdata assembles snapshot sub-records from live Solana and
// CoinGecko data. Upstream failures never surface: the affected record is
// replaced by its fallback constants and reported through a hook.
package marketdata

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
	"github.com/zkx401/pulse/pkg/coingecko"
	"github.com/zkx401/pulse/pkg/solana"
)

// ErrNoVolume is reported when the quote carries no trading volume
var ErrNoVolume = errors.New("quote has no 24h volume")

// Sections reported to the fallback hook
const (
	SectionNetwork  = "network"
	SectionProtocol = "protocol"
	SectionPrice    = "price"
)

// Estimates used where no upstream provides a figure
const (
	PerformanceSamples   = 720
	RecentSamples        = 10
	AverageSlotTime      = 400 // milliseconds
	BaseFee              = 0.000005
	AverageTransactionUS = 100 // dollars per protocol transaction
	ActiveFacilitators   = 23
	AverageProtocolFee   = 0.003
	EcosystemMarketCap   = 1.2e9
)

// Chain is the Solana RPC surface the source reads
type Chain interface {
	RecentPerformanceSamples(ctx context.Context, limit int) ([]solana.PerformanceSample, error)
	Slot(ctx context.Context) (int64, error)
}

// Quotes is the price API surface the source reads
type Quotes interface {
	SimplePrice(ctx context.Context, id, vs string) (coingecko.Quote, error)
}

// Simulated provides the records no public API serves
type Simulated interface {
	Proofs() dashboard.ProofStats
	VolumeHistory() []int64
}

// Option configures the Source
type Option func(*Source)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithOnFallback registers a hook called whenever a section falls back
func WithOnFallback(fn func(section string, err error)) Option {
	return func(s *Source) { s.onFallback = fn }
}

// Source implements the snapshot sub-record fetches on live data
type Source struct {
	chain      Chain
	quotes     Quotes
	simulated  Simulated
	clock      clock.Clock
	onFallback func(string, error)
	inflight   singleflight.Group
}

// NewSource creates a Source
func NewSource(chain Chain, quotes Quotes, simulated Simulated, opts ...Option) *Source {
	s := &Source{
		chain:      chain,
		quotes:     quotes,
		simulated:  simulated,
		clock:      clock.SystemClock{},
		onFallback: func(string, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NetworkStats derives throughput from the most recent performance samples
func (s *Source) NetworkStats(ctx context.Context) (dashboard.NetworkStats, error) {
	var (
		samples []solana.PerformanceSample
		slot    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		samples, err = s.chain.RecentPerformanceSamples(gctx, PerformanceSamples)
		return err
	})
	g.Go(func() (err error) {
		slot, err = s.chain.Slot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.onFallback(SectionNetwork, err)
		return dashboard.FallbackNetwork, nil
	}

	var txs, secs int64
	for _, sample := range samples[:min(RecentSamples, len(samples))] {
		txs += sample.NumTransactions
		secs += sample.SamplePeriodSecs
	}
	var tps float64
	if secs > 0 {
		tps = math.Round(float64(txs) / float64(secs))
	}

	return dashboard.NetworkStats{
		TPS:               tps,
		BlockHeight:       slot,
		AverageSlotTime:   AverageSlotTime,
		TotalTransactions: txs,
		FeePerTransaction: BaseFee,
	}, nil
}

// ProtocolMetrics estimates protocol activity from the USDC trading volume
func (s *Source) ProtocolMetrics(ctx context.Context) (dashboard.ProtocolMetrics, error) {
	quote, err := s.quote(ctx)
	if err == nil && quote.Volume24h == 0 {
		err = ErrNoVolume
	}
	if err != nil {
		s.onFallback(SectionProtocol, err)
		return dashboard.FallbackProtocol, nil
	}
	return dashboard.ProtocolMetrics{
		TotalTransactions:  int64(quote.Volume24h / AverageTransactionUS),
		TotalVolume:        quote.Volume24h,
		ActiveFacilitators: ActiveFacilitators,
		AverageFee:         AverageProtocolFee,
		MarketCap:          EcosystemMarketCap,
	}, nil
}

// ProofStats has no public source and is simulated
func (s *Source) ProofStats(context.Context) (dashboard.ProofStats, error) {
	return s.simulated.Proofs(), nil
}

// PriceInfo returns the USDC quote
func (s *Source) PriceInfo(ctx context.Context) (dashboard.PriceInfo, error) {
	quote, err := s.quote(ctx)
	if err != nil {
		s.onFallback(SectionPrice, err)
		fallback := dashboard.FallbackPrice
		fallback.LastUpdated = s.clock.Now()
		return fallback, nil
	}
	return dashboard.PriceInfo{
		Price:       quote.Price,
		Change24h:   quote.Change24h,
		MarketCap:   quote.MarketCap,
		Volume24h:   quote.Volume24h,
		LastUpdated: quote.LastUpdated,
	}, nil
}

// VolumeHistory has no public source and is simulated
func (s *Source) VolumeHistory(context.Context) ([]int64, error) {
	return s.simulated.VolumeHistory(), nil
}

// quote shares one CoinGecko call between the records of a fetch cycle
func (s *Source) quote(ctx context.Context) (coingecko.Quote, error) {
	ch := s.inflight.DoChan(coingecko.USDCoin, func() (any, error) {
		return s.quotes.SimplePrice(context.WithoutCancel(ctx), coingecko.USDCoin, coingecko.USD)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return coingecko.Quote{}, res.Err
		}
		return res.Val.(coingecko.Quote), nil
	case <-ctx.Done():
		return coingecko.Quote{}, ctx.Err()
	}
}
