package mockdata

import (
	"context"
	"errors"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
)

// ErrNetworkTimeout simulates an upstream that did not answer in time
var ErrNetworkTimeout = errors.New("network timeout")

// Default simulated behaviour
const (
	DefaultLatency         = 800 * time.Millisecond
	DefaultActivityLatency = 400 * time.Millisecond
	DefaultFailureRate     = 0.01 // per sub-record, about 5% per five-way fetch cycle
)

// SourceOption configures the Source
type SourceOption func(*Source)

// WithLatency sets the simulated delay of each snapshot sub-record fetch
func WithLatency(d time.Duration) SourceOption {
	return func(s *Source) { s.latency = d }
}

// WithActivityLatency sets the simulated delay of an activity list fetch
func WithActivityLatency(d time.Duration) SourceOption {
	return func(s *Source) { s.activityLatency = d }
}

// WithFailureRate sets the probability that a single fetch fails
func WithFailureRate(p float64) SourceOption {
	return func(s *Source) { s.failureRate = p }
}

// WithSourceClock injects a custom Clock for simulated latency
func WithSourceClock(c clock.Clock) SourceOption {
	return func(s *Source) { s.clock = c }
}

// Source serves generated data with simulated latency and failures.
type Source struct {
	gen             *Generator
	clock           clock.Clock
	latency         time.Duration
	activityLatency time.Duration
	failureRate     float64
}

// NewSource wraps gen with the default latency and failure rate.
func NewSource(gen *Generator, opts ...SourceOption) *Source {
	s := &Source{
		gen:             gen,
		clock:           clock.SystemClock{},
		latency:         DefaultLatency,
		activityLatency: DefaultActivityLatency,
		failureRate:     DefaultFailureRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// simulate waits d and rolls for a failure.
func (s *Source) simulate(ctx context.Context, d time.Duration) error {
	if !clock.Sleep(s.clock, d, ctx.Done()) {
		return ctx.Err()
	}
	if s.gen.Chance(s.failureRate) {
		return ErrNetworkTimeout
	}
	return nil
}

// NetworkStats returns generated network stats
func (s *Source) NetworkStats(ctx context.Context) (dashboard.NetworkStats, error) {
	if err := s.simulate(ctx, s.latency); err != nil {
		return dashboard.NetworkStats{}, err
	}
	return s.gen.Network(), nil
}

// ProtocolMetrics returns generated x402 metrics
func (s *Source) ProtocolMetrics(ctx context.Context) (dashboard.ProtocolMetrics, error) {
	if err := s.simulate(ctx, s.latency); err != nil {
		return dashboard.ProtocolMetrics{}, err
	}
	return s.gen.Protocol(), nil
}

// ProofStats returns generated proof stats
func (s *Source) ProofStats(ctx context.Context) (dashboard.ProofStats, error) {
	if err := s.simulate(ctx, s.latency); err != nil {
		return dashboard.ProofStats{}, err
	}
	return s.gen.Proofs(), nil
}

// PriceInfo returns a generated USDC quote
func (s *Source) PriceInfo(ctx context.Context) (dashboard.PriceInfo, error) {
	if err := s.simulate(ctx, s.latency); err != nil {
		return dashboard.PriceInfo{}, err
	}
	return s.gen.Price(), nil
}

// VolumeHistory returns a generated 24h volume history
func (s *Source) VolumeHistory(ctx context.Context) ([]int64, error) {
	if err := s.simulate(ctx, s.latency); err != nil {
		return nil, err
	}
	return s.gen.VolumeHistory(), nil
}

// Activities returns ActivityCount generated records, newest first
func (s *Source) Activities(ctx context.Context) ([]dashboard.Activity, error) {
	if err := s.simulate(ctx, s.activityLatency); err != nil {
		return nil, err
	}
	return s.gen.Activities(ActivityCount), nil
}
