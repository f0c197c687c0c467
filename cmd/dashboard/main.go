package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zkx401/pulse/cache"
	"github.com/zkx401/pulse/cmd/dashboard/config"
	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/feed"
	"github.com/zkx401/pulse/marketdata"
	"github.com/zkx401/pulse/mockdata"
	"github.com/zkx401/pulse/monitor"
	"github.com/zkx401/pulse/pkg/coingecko"
	"github.com/zkx401/pulse/pkg/logger"
	"github.com/zkx401/pulse/pkg/solana"
	"github.com/zkx401/pulse/pkg/telemetry"
	"github.com/zkx401/pulse/poller"
	"github.com/zkx401/pulse/realtime"
	"github.com/zkx401/pulse/web/handler"
	"github.com/zkx401/pulse/web/stream"
)

var (
	version = "dev"
	date    = "unknown"
)

// Stream topics of the feed that are not realtime event types
const feedInsertTopic = "feed_insert"

func main() {
	// Load configuration
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	// Prepare context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Pulse dashboard service starting",
		slog.String("version", version),
		slog.String("date", date),
		slog.String("mode", string(cfg.Mode)),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "Service failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.InfoContext(ctx, "Server exited gracefully")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	// Data sources
	var genOpts []mockdata.Option
	if cfg.MockSeed != 0 {
		genOpts = append(genOpts, mockdata.WithSeed(cfg.MockSeed))
	}
	gen := mockdata.NewGenerator(genOpts...)
	mock := mockdata.NewSource(gen, mockdata.WithFailureRate(cfg.MockFailureRate))
	source := newSource(cfg, log, gen, mock)

	snapshots, closeCache := newCache(ctx, cfg, log)
	defer closeCache()

	pool := pond.NewPool(poller.DefaultWorkers)
	defer pool.StopAndWait()

	// Push stream
	hub := stream.NewHub(stream.WithOnClients(func(n int) {
		metrics.StreamClients.Set(float64(n))
	}))

	// Polling store
	svc := poller.NewService(source,
		poller.WithPollInterval(cfg.PollInterval),
		poller.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		poller.WithActivities(mock),
		poller.WithRealtime(newRealtime(cfg, log, gen)),
		poller.WithCache(snapshots),
		poller.WithPool(pool),
	)
	unsubscribe := svc.SubscribeRealtime(func(ev realtime.Event) {
		frame, err := realtime.Encode(ev)
		if err != nil {
			log.Warn("Dropped realtime event", slog.String("type", string(ev.Type)), slog.Any("error", err))
			return
		}
		_ = hub.Publish(string(ev.Type), frame)
	})
	defer unsubscribe()

	events, svcDone := svc.Start(ctx)
	waitEvents := subscribe(events, log, metrics)

	// Activity feed
	feedStore := feed.NewStore(gen.Activities(cfg.FeedSize), gen,
		feed.WithRealtime(cfg.FeedRealtime),
		feed.WithOnInsert(func(a dashboard.Activity) {
			metrics.FeedInjected.Inc()
			_ = hub.Broadcast(feedInsertTopic, a, a.Timestamp)
		}),
	)
	window := &meteredFeed{Store: feedStore, gauge: metrics.FeedWindow}
	window.observe()
	feedDone := feedStore.Start(ctx)

	// Monitors
	monitors := monitor.New(source, source, monitor.WithLogger(logger.NewCronLogger(log)))
	monitorsDone, err := monitors.Start(ctx)
	if err != nil {
		return err
	}

	// First fetch; failures keep the fallback snapshot
	svc.Initialize(ctx)

	// Create HTTP server
	mux := http.NewServeMux()
	opts := []handler.Option{handler.WithRecorder(metrics), handler.WithLogger(log)}
	handler.NewSnapshot(svc, opts...).AddRoutes(mux)
	handler.NewActivities(svc, opts...).AddRoutes(mux)
	handler.NewFeed(window, feed.NewTrigger(window)).AddRoutes(mux)
	handler.NewFacilitators(dashboard.Facilitators(), opts...).AddRoutes(mux)
	handler.NewMonitor(monitors).AddRoutes(mux)
	handler.NewOverview(ctx, source, monitors, opts...).AddRoutes(mux)
	handler.NewSystem(hub, telemetry.Handler(reg)).AddRoutes(mux)

	// Metrics read the matched route, so they wrap the mux directly
	root := logger.NewMiddleware(log)(telemetry.NewMiddleware(metrics)(mux))

	addr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:    addr,
		Handler: root,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a failed listener
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.InfoContext(ctx, "Shutting down server...")

	// Hijacked WebSocket connections are not tracked by Shutdown
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Server forced to shutdown", slog.Any("error", err))
	}

	<-svcDone
	waitEvents()
	<-feedDone
	<-monitorsDone
	return nil
}

// newSource picks mock or live snapshot data
func newSource(cfg config.Config, log *slog.Logger, gen *mockdata.Generator, mock *mockdata.Source) poller.Source {
	if cfg.Mode != config.ModeLive {
		return mock
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	return marketdata.NewSource(
		solana.NewClient(httpClient, cfg.SolanaRPCURL),
		coingecko.NewClient(httpClient, cfg.CoinGeckoURL),
		gen,
		marketdata.WithOnFallback(func(section string, err error) {
			log.Debug("Live data fell back", slog.String("section", section), slog.Any("error", err))
		}),
	)
}

// newCache uses Redis when configured and reachable, memory otherwise
func newCache(ctx context.Context, cfg config.Config, log *slog.Logger) (poller.Cache, func()) {
	memory := cache.NewMemory(cache.WithTTL(cfg.CacheTTL))
	if cfg.RedisURL == "" {
		return memory, func() {}
	}

	client, err := cache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		log.WarnContext(ctx, "Redis unavailable, caching in memory", slog.Any("error", err))
		return memory, func() {}
	}
	return cache.NewRedis(client, cache.DefaultKey, cfg.CacheTTL), func() { _ = client.Close() }
}

// newRealtime streams from a Solana WebSocket when configured, synthetic events otherwise
func newRealtime(cfg config.Config, log *slog.Logger, gen *mockdata.Generator) realtime.Source {
	if cfg.SolanaWSURL == "" {
		return realtime.NewSynthetic(gen)
	}

	opts := []realtime.WebSocketOption{
		realtime.WithErrorHandler(func(err error) {
			log.Warn("Realtime stream error", slog.Any("error", err))
		}),
	}
	if cfg.SolanaAccount != "" {
		opts = append(opts, realtime.WithAccount(cfg.SolanaAccount))
	}
	return realtime.NewWebSocket(cfg.SolanaWSURL, opts...)
}
