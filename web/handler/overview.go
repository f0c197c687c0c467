package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/zkx401/pulse/boundary"
	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/monitor"
	"github.com/zkx401/pulse/pkg/httpkit"
	"github.com/zkx401/pulse/web/api"
)

const (
	GetOverviewRoute   = http.MethodGet + " " + "/api/overview"
	RetryOverviewRoute = http.MethodPost + " " + "/api/overview/retry"
)

// SectionTimeout bounds a single section render
const SectionTimeout = 5 * time.Second

// Section names reported with failures
const (
	SectionNetwork  = "networkStats"
	SectionProtocol = "x402Metrics"
	SectionProofs   = "proofStats"
	SectionPrice    = "priceMonitor"
	SectionHealth   = "networkMonitor"
)

// OverviewSource fetches the live sections of the overview
type OverviewSource interface {
	NetworkStats(ctx context.Context) (dashboard.NetworkStats, error)
	ProtocolMetrics(ctx context.Context) (dashboard.ProtocolMetrics, error)
	ProofStats(ctx context.Context) (dashboard.ProofStats, error)
}

// Overview renders every dashboard section behind its own boundary, so one
// failing section degrades to its fallback without taking the page down.
type Overview struct {
	// life bounds the automatic retries scheduled by failed renders
	life context.Context

	network  *boundary.Boundary[dashboard.NetworkStats]
	protocol *boundary.Boundary[dashboard.ProtocolMetrics]
	proofs   *boundary.Boundary[dashboard.ProofStats]
	price    *boundary.Boundary[monitor.PriceView]
	health   *boundary.Boundary[monitor.NetworkView]
}

// NewOverview creates the overview handler. Automatic section retries stop
// when ctx is cancelled.
func NewOverview(ctx context.Context, src OverviewSource, monitors Monitors, opts ...Option) *Overview {
	o := newOptions(opts)
	bopts := []boundary.Option{
		boundary.WithLevel(boundary.LevelWidget),
		boundary.WithClock(o.clock),
		boundary.WithOnError(o.onError),
	}

	return &Overview{
		life:     ctx,
		network:  boundary.New(SectionNetwork, timed(src.NetworkStats), dashboard.FallbackNetwork, bopts...),
		protocol: boundary.New(SectionProtocol, timed(src.ProtocolMetrics), dashboard.FallbackProtocol, bopts...),
		proofs:   boundary.New(SectionProofs, timed(src.ProofStats), dashboard.FallbackProofs, bopts...),
		price: boundary.New(SectionPrice, func(context.Context) (monitor.PriceView, error) {
			return monitors.Price(), nil
		}, monitor.PriceView{}, bopts...),
		health: boundary.New(SectionHealth, func(context.Context) (monitor.NetworkView, error) {
			return monitors.Network(), nil
		}, monitor.NetworkView{}, bopts...),
	}
}

func (h *Overview) AddRoutes(m *http.ServeMux) {
	m.Handle(GetOverviewRoute, httpkit.HandlerFunc(h.GetOverview))
	m.Handle(RetryOverviewRoute, httpkit.HandlerFunc(h.RetryOverview))
}

func (h *Overview) GetOverview(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(api.OverviewResponse{
		Network:  h.network.Render(h.life),
		Protocol: h.protocol.Render(h.life),
		Proofs:   h.proofs.Render(h.life),
		Price:    h.price.Render(h.life),
		Health:   h.health.Render(h.life),
	})
}

// RetryOverview re-renders failed sections. A section whose retry budget is
// spent starts over with a fresh budget.
func (h *Overview) RetryOverview(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return httpkit.JSON(api.OverviewResponse{
		Network:  retrySection(h.life, h.network),
		Protocol: retrySection(h.life, h.protocol),
		Proofs:   retrySection(h.life, h.proofs),
		Price:    retrySection(h.life, h.price),
		Health:   retrySection(h.life, h.health),
	})
}

func retrySection[T any](ctx context.Context, b *boundary.Boundary[T]) boundary.View[T] {
	if b.Exhausted() {
		b.Reset()
		return b.Render(ctx)
	}
	return b.Retry(ctx)
}

func timed[T any](fetch func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, SectionTimeout)
		defer cancel()
		return fetch(ctx)
	}
}
