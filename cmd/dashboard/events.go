package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zkx401/pulse/feed"
	"github.com/zkx401/pulse/pkg/telemetry"
	"github.com/zkx401/pulse/poller"
)

// subscribe turns polling store events into log lines and metrics.
// The returned function waits until the event channel is drained.
func subscribe(events <-chan poller.Event, log *slog.Logger, metrics *telemetry.Metrics) func() {
	return poller.NewSubscriber(events,
		poller.OnFetchStarted(func(e poller.FetchStarted) {
			log.Debug("Fetch started", slog.String("trigger", string(e.Trigger)))
		}),
		poller.OnFetchSucceeded(func(e poller.FetchSucceeded) {
			metrics.FetchFinished(string(e.Trigger), telemetry.OutcomeSuccess, e.Duration)
			log.Info("Snapshot updated",
				slog.String("trigger", string(e.Trigger)),
				slog.Uint64("cycle", e.Cycle),
				slog.Int("activities", e.Activities),
				slog.Duration("duration", e.Duration),
			)
		}),
		poller.OnFetchFailed(func(e poller.FetchFailed) {
			metrics.FetchFinished(string(e.Trigger), telemetry.OutcomeFailure, 0)
			log.Warn("Snapshot fetch failed",
				slog.String("trigger", string(e.Trigger)),
				slog.Int("retry_count", e.RetryCount),
				slog.Any("error", e.Err),
			)
		}),
		poller.OnFetchCancelled(func(e poller.FetchCancelled) {
			metrics.FetchFinished(string(e.Trigger), telemetry.OutcomeCancelled, 0)
			log.Debug("Fetch superseded", slog.String("trigger", string(e.Trigger)))
		}),
		poller.OnRetryScheduled(func(e poller.RetryScheduled) {
			metrics.RetriesScheduled.Inc()
			log.Info("Retry scheduled", slog.Int("attempt", e.Attempt), slog.Duration("delay", e.Delay))
		}),
		poller.OnRetriesExhausted(func(e poller.RetriesExhausted) {
			metrics.RetriesExhausted.Inc()
			log.Error("Retries exhausted", slog.Int("attempts", e.Attempts), slog.Any("error", e.Err))
		}),
		poller.OnRealtimeApplied(func(e poller.RealtimeApplied) {
			metrics.RealtimeEvents.WithLabelValues(string(e.Type)).Inc()
		}),
		poller.OnRealtimeError(func(e poller.RealtimeError) {
			log.Warn("Realtime stream error", slog.Any("error", e.Err))
		}),
		poller.OnCacheSeeded(func(e poller.CacheSeeded) {
			log.Info("Snapshot seeded from cache",
				slog.Uint64("cycle", e.Cycle),
				slog.Time("fetched_at", e.FetchedAt),
			)
		}),
		poller.OnCacheError(func(e poller.CacheError) {
			log.Warn("Snapshot cache error", slog.Any("error", e.Err))
		}),
		poller.OnShutdown(func(e poller.Shutdown) {
			log.Info("Polling stopped", slog.Any("reason", e.Reason))
		}),
	)
}

// meteredFeed reports the window size after every command that changes it
type meteredFeed struct {
	*feed.Store
	gauge prometheus.Gauge
}

func (f *meteredFeed) LoadMore(ctx context.Context) bool {
	defer f.observe()
	return f.Store.LoadMore(ctx)
}

func (f *meteredFeed) Refresh(ctx context.Context) feed.View {
	view := f.Store.Refresh(ctx)
	f.gauge.Set(float64(len(view.Items)))
	return view
}

func (f *meteredFeed) observe() {
	f.gauge.Set(float64(len(f.View().Items)))
}
