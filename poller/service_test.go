package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock/clocktest"
	"github.com/zkx401/pulse/poller"
	"github.com/zkx401/pulse/realtime"
)

var errUpstreamTimeout = errors.New("network timeout")

// TestServiceFetchBehavior tests the fan-out fetch cycle
func TestServiceFetchBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it stores a snapshot whose sub-records come from one fetch cycle", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		svc := poller.NewService(src, poller.WithActivities(src))

		// Act
		state := svc.Initialize(t.Context())

		// Assert
		assertSnapshotFromCycle(t, state.Snapshot, 1)
		assert.Equal(t, uint64(1), state.Snapshot.Cycle)
		assert.False(t, state.Loading)
		assert.False(t, state.Refreshing)
		assert.Empty(t, state.Error)
		assert.True(t, state.Connected)
		assert.False(t, state.LastUpdated.IsZero())
		require.Len(t, state.Activities, 1)
		assert.Equal(t, "activity-1", state.Activities[0].ID)
	})

	t.Run("it keeps fallback data and records the error when the first fetch fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := failingSource()
		svc := poller.NewService(src)

		// Act
		state := svc.Initialize(t.Context())

		// Assert
		assert.Equal(t, dashboard.FallbackNetwork, state.Snapshot.Network)
		assert.Equal(t, dashboard.FallbackProofs, state.Snapshot.Proofs)
		assert.Contains(t, state.Error, "fetch failed")
		assert.Contains(t, state.Error, "network timeout")
		assert.False(t, state.Loading)
		assert.False(t, state.Connected)
	})

	t.Run("it keeps the previous snapshot when a refresh fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		svc := poller.NewService(src)
		svc.Initialize(t.Context())
		src.failing.Store(true)

		// Act
		state := svc.Refresh(t.Context())

		// Assert
		assertSnapshotFromCycle(t, state.Snapshot, 1)
		assert.NotEmpty(t, state.Error)
		assert.False(t, state.Refreshing)
	})

	t.Run("it clears the error on the next successful refresh", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := failingSource()
		svc := poller.NewService(src)
		svc.Initialize(t.Context())
		src.failing.Store(false)

		// Act
		state := svc.Refresh(t.Context())

		// Assert
		assert.Empty(t, state.Error)
		assert.Equal(t, 0, state.RetryCount)
		assertSnapshotFromCycle(t, state.Snapshot, 2)
	})

	t.Run("it cancels a superseded fetch without touching state", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		src.holdFirstCycle()
		svc := poller.NewService(src)

		firstDone := make(chan poller.State, 1)
		go func() { firstDone <- svc.Refresh(t.Context()) }()
		<-src.firstCycleStarted

		// Act
		second := svc.Refresh(t.Context())
		<-firstDone

		// Assert
		assertSnapshotFromCycle(t, second.Snapshot, 2)
		assertSnapshotFromCycle(t, svc.State().Snapshot, 2)
		assert.Equal(t, uint64(1), svc.State().Snapshot.Cycle)
		assert.Empty(t, svc.State().Error)
	})

	t.Run("it returns copies of the state", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		svc := poller.NewService(src, poller.WithActivities(src))
		svc.Initialize(t.Context())

		// Act
		state := svc.State()
		state.Snapshot.VolumeHistory[0] = -1
		state.Activities[0].ID = "mutated"

		// Assert
		assert.Equal(t, int64(1), svc.State().Snapshot.VolumeHistory[0])
		assert.Equal(t, "activity-1", svc.State().Activities[0].ID)
	})
}

// TestServiceRetryBehavior tests automatic retry with backoff
func TestServiceRetryBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it retries at 1s, 2s and 4s then stops", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		clk, svc := clockControlledService(src, poller.WithRetry(3, time.Second))
		events := runService(t, svc)
		svc.Initialize(t.Context())
		src.failing.Store(true)

		// Act
		svc.Refresh(t.Context())
		delays := driveRetries(t, clk, events, 3)
		exhausted := <-events.exhausted

		// Assert
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
		assert.Equal(t, 3, exhausted.Attempts)
		require.ErrorIs(t, exhausted.Err, poller.ErrFetchFailed)
		assert.ErrorIs(t, exhausted.Err, errUpstreamTimeout)
		assertOnlyRefreshTimerPending(t, clk)

		state := svc.State()
		assert.NotEmpty(t, state.Error)
		assert.True(t, state.Exhausted)
		assert.Equal(t, 3, state.RetryCount)
		assertSnapshotFromCycle(t, state.Snapshot, 1)
	})

	t.Run("it resets the retry budget on manual retry", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := failingSource()
		clk, svc := clockControlledService(src, poller.WithRetry(1, time.Second))
		events := runService(t, svc)
		svc.Initialize(t.Context())
		driveRetries(t, clk, events, 1)
		<-events.exhausted

		// Act
		state := svc.Retry(t.Context())
		scheduled := <-events.retryScheduled

		// Assert
		assert.Equal(t, 1, state.RetryCount)
		assert.False(t, state.Exhausted)
		assert.Equal(t, poller.RetryScheduled{Attempt: 1, Delay: time.Second}, scheduled)
	})

	t.Run("it does not retry when retries are disabled", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := failingSource()
		clk, svc := clockControlledService(src, poller.WithRetry(0, time.Second))
		events := runService(t, svc)

		// Act
		svc.Initialize(t.Context())
		failure := <-events.failed

		// Assert
		assert.Equal(t, 0, failure.RetryCount)
		assert.ErrorIs(t, failure.Err, poller.ErrFetchFailed)
		assertOnlyRefreshTimerPending(t, clk)
	})
}

// TestServicePollingBehavior tests periodic refresh
func TestServicePollingBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it refreshes on the configured interval", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		clk, svc := clockControlledService(src)
		events := runService(t, svc)

		// Act
		clk.WaitFor(poller.DefaultPollInterval)
		clk.Advance(poller.DefaultPollInterval)
		succeeded := <-events.succeeded

		// Assert
		assert.Equal(t, poller.TriggerInterval, succeeded.Trigger)
		assert.Equal(t, uint64(1), succeeded.Cycle)
		assertSnapshotFromCycle(t, svc.State().Snapshot, 1)
	})

	t.Run("it emits shutdown when the context is cancelled", func(t *testing.T) {
		t.Parallel()

		// Arrange
		_, svc := clockControlledService(newCycleSource())
		ctx, cancel := context.WithCancel(t.Context())
		stream, done := svc.Start(ctx)
		shutdown := make(chan poller.Shutdown, 1)
		closer := poller.NewSubscriber(stream, poller.OnShutdown(func(e poller.Shutdown) { shutdown <- e }))

		// Act
		cancel()
		<-done
		closer()

		// Assert
		assert.ErrorIs(t, (<-shutdown).Reason, context.Canceled)
	})

	t.Run("it runs only once when started twice", func(t *testing.T) {
		t.Parallel()

		// Arrange
		_, svc := clockControlledService(newCycleSource())
		ctx, cancel := context.WithCancel(t.Context())
		stream, done := svc.Start(ctx)
		closer := poller.NewSubscriber(stream)

		// Act
		var (
			again     <-chan poller.Event
			againDone <-chan struct{}
		)
		require.NotPanics(t, func() { again, againDone = svc.Start(ctx) })
		cancel()
		<-done
		closer()

		// Assert
		_, open := <-again
		assert.False(t, open, "second events channel should be closed")
		assert.NotPanics(t, func() { <-againDone })
	})
}

// TestServiceRealtimeBehavior tests push event handling
func TestServiceRealtimeBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it updates only the sub-record matching the event", func(t *testing.T) {
		t.Parallel()

		// Arrange
		src := newCycleSource()
		svc := poller.NewService(src)
		svc.Initialize(t.Context())
		before := svc.State().Snapshot

		price := dashboard.PriceInfo{Price: 1.0001, Change24h: 0.01}

		// Act
		svc.Apply(realtime.Event{Type: realtime.TypePrice, Price: &price})

		// Assert
		after := svc.State().Snapshot
		assert.Equal(t, price, after.Price)
		assert.Equal(t, before.Network, after.Network)
		assert.Equal(t, before.Proofs, after.Proofs)
		assert.Equal(t, before.Protocol, after.Protocol)
		assert.Equal(t, before.VolumeHistory, after.VolumeHistory)
	})

	t.Run("it counts transactions and raises the block height", func(t *testing.T) {
		t.Parallel()

		// Arrange
		svc := poller.NewService(newCycleSource())
		before := svc.State().Snapshot.Network

		// Act
		svc.Apply(realtime.Event{Type: realtime.TypeTransaction, Transaction: &realtime.Transaction{Slot: before.BlockHeight + 10}})
		svc.Apply(realtime.Event{Type: realtime.TypeTransaction, Transaction: &realtime.Transaction{Slot: 1}})

		// Assert
		after := svc.State().Snapshot.Network
		assert.Equal(t, before.TotalTransactions+2, after.TotalTransactions)
		assert.Equal(t, before.BlockHeight+10, after.BlockHeight)
	})

	t.Run("it replaces network stats on a stats tick", func(t *testing.T) {
		t.Parallel()

		svc := poller.NewService(newCycleSource())
		stats := dashboard.NetworkStats{TPS: 2500, BlockHeight: 7}

		svc.Apply(realtime.Event{Type: realtime.TypeStats, Stats: &stats})

		assert.Equal(t, stats, svc.State().Snapshot.Network)
	})

	t.Run("it prepends activities without duplicates up to the cap", func(t *testing.T) {
		t.Parallel()

		// Arrange
		svc := poller.NewService(newCycleSource(), poller.WithMaxActivities(2))

		// Act
		for _, id := range []string{"a", "b", "b", "c"} {
			svc.Apply(realtime.Event{Type: realtime.TypeActivity, Activity: &dashboard.Activity{ID: id, Type: dashboard.KindUser}})
		}

		// Assert
		activities := svc.State().Activities
		require.Len(t, activities, 2)
		assert.Equal(t, "c", activities[0].ID)
		assert.Equal(t, "b", activities[1].ID)
	})

	t.Run("it notifies subscribers until they unsubscribe", func(t *testing.T) {
		t.Parallel()

		// Arrange
		svc := poller.NewService(newCycleSource())
		var received []realtime.Type
		unsubscribe := svc.SubscribeRealtime(func(e realtime.Event) { received = append(received, e.Type) })
		stats := dashboard.NetworkStats{TPS: 1}

		// Act
		svc.Apply(realtime.Event{Type: realtime.TypeStats, Stats: &stats})
		unsubscribe()
		svc.Apply(realtime.Event{Type: realtime.TypeStats, Stats: &stats})

		// Assert
		assert.Equal(t, []realtime.Type{realtime.TypeStats}, received)
	})

	t.Run("it ignores events without a matching payload", func(t *testing.T) {
		t.Parallel()

		svc := poller.NewService(newCycleSource())
		before := svc.State()

		svc.Apply(realtime.Event{Type: realtime.TypePrice})

		assert.Equal(t, before.Snapshot, svc.State().Snapshot)
	})

	t.Run("it applies events from the stream and reports disconnects", func(t *testing.T) {
		t.Parallel()

		// Arrange
		stream := &fakeStream{ch: make(chan realtime.Event, 1)}
		_, svc := clockControlledService(newCycleSource(), poller.WithRealtime(stream))
		events := runService(t, svc)
		price := dashboard.PriceInfo{Price: 0.9995}

		// Act
		stream.ch <- realtime.Event{Type: realtime.TypePrice, Price: &price}
		applied := <-events.applied
		streamingWhileOpen := svc.State().Streaming
		close(stream.ch)
		disconnect := <-events.realtimeErr

		// Assert
		assert.Equal(t, realtime.TypePrice, applied.Type)
		assert.InDelta(t, 0.9995, svc.State().Snapshot.Price.Price, 1e-9)
		assert.True(t, streamingWhileOpen)
		assert.ErrorIs(t, disconnect.Err, realtime.ErrDisconnected)
		assert.False(t, svc.State().Streaming)
	})

	t.Run("it reports a stream that cannot be opened", func(t *testing.T) {
		t.Parallel()

		// Arrange
		stream := &fakeStream{openErr: realtime.ErrDial}
		_, svc := clockControlledService(newCycleSource(), poller.WithRealtime(stream))

		// Act
		events := runService(t, svc)
		failure := <-events.realtimeErr

		// Assert
		require.ErrorIs(t, failure.Err, poller.ErrRealtimeOpen)
		assert.ErrorIs(t, failure.Err, realtime.ErrDial)
	})
}

// TestServiceCacheBehavior tests last-known-good caching
func TestServiceCacheBehavior(t *testing.T) {
	t.Parallel()

	t.Run("it seeds the state from the cache on start", func(t *testing.T) {
		t.Parallel()

		// Arrange
		cached := dashboard.Fallback(clocktest.Epoch)
		cached.Cycle = 41
		cached.Network.TPS = 1234
		c := &fakeCache{snap: cached, found: true}
		_, svc := clockControlledService(newCycleSource(), poller.WithCache(c))

		// Act
		events := runService(t, svc)
		seeded := <-events.seeded

		// Assert
		assert.Equal(t, uint64(41), seeded.Cycle)
		assert.InDelta(t, 1234.0, svc.State().Snapshot.Network.TPS, 1e-9)
		assert.Equal(t, clocktest.Epoch, svc.State().LastUpdated)
	})

	t.Run("it continues cycle numbering after the cached snapshot and writes back", func(t *testing.T) {
		t.Parallel()

		// Arrange
		cached := dashboard.Fallback(clocktest.Epoch)
		cached.Cycle = 41
		c := &fakeCache{snap: cached, found: true}
		_, svc := clockControlledService(newCycleSource(), poller.WithCache(c))
		events := runService(t, svc)
		<-events.seeded

		// Act
		state := svc.Refresh(t.Context())

		// Assert
		assert.Equal(t, uint64(42), state.Snapshot.Cycle)
		saved := c.lastSaved()
		require.NotNil(t, saved)
		assert.Equal(t, uint64(42), saved.Cycle)
	})

	t.Run("it reports cache failures without failing the fetch", func(t *testing.T) {
		t.Parallel()

		// Arrange
		c := &fakeCache{saveErr: errors.New("redis down")}
		_, svc := clockControlledService(newCycleSource(), poller.WithCache(c))
		events := runService(t, svc)

		// Act
		state := svc.Refresh(t.Context())
		cacheErr := <-events.cacheErr

		// Assert
		assert.Empty(t, state.Error)
		assert.ErrorIs(t, cacheErr.Err, poller.ErrCacheSave)
	})
}

// Domain-specific test builders

func clockControlledService(src *cycleSource, opts ...poller.Option) (*clocktest.Clock, *poller.Service) {
	clk := clocktest.New(time.Time{})
	opts = append([]poller.Option{poller.WithClock(clk)}, opts...)
	return clk, poller.NewService(src, opts...)
}

func failingSource() *cycleSource {
	src := newCycleSource()
	src.failing.Store(true)
	return src
}

// capturedEvents exposes service events as channels
type capturedEvents struct {
	succeeded      chan poller.FetchSucceeded
	failed         chan poller.FetchFailed
	retryScheduled chan poller.RetryScheduled
	exhausted      chan poller.RetriesExhausted
	applied        chan poller.RealtimeApplied
	realtimeErr    chan poller.RealtimeError
	seeded         chan poller.CacheSeeded
	cacheErr       chan poller.CacheError
}

func runService(t *testing.T, svc *poller.Service) capturedEvents {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())

	stream, done := svc.Start(ctx)

	captured := capturedEvents{
		succeeded:      make(chan poller.FetchSucceeded, 16),
		failed:         make(chan poller.FetchFailed, 16),
		retryScheduled: make(chan poller.RetryScheduled, 16),
		exhausted:      make(chan poller.RetriesExhausted, 16),
		applied:        make(chan poller.RealtimeApplied, 16),
		realtimeErr:    make(chan poller.RealtimeError, 16),
		seeded:         make(chan poller.CacheSeeded, 16),
		cacheErr:       make(chan poller.CacheError, 16),
	}

	subCloser := poller.NewSubscriber(stream,
		poller.OnFetchSucceeded(func(e poller.FetchSucceeded) { captured.succeeded <- e }),
		poller.OnFetchFailed(func(e poller.FetchFailed) { captured.failed <- e }),
		poller.OnRetryScheduled(func(e poller.RetryScheduled) { captured.retryScheduled <- e }),
		poller.OnRetriesExhausted(func(e poller.RetriesExhausted) { captured.exhausted <- e }),
		poller.OnRealtimeApplied(func(e poller.RealtimeApplied) { captured.applied <- e }),
		poller.OnRealtimeError(func(e poller.RealtimeError) { captured.realtimeErr <- e }),
		poller.OnCacheSeeded(func(e poller.CacheSeeded) { captured.seeded <- e }),
		poller.OnCacheError(func(e poller.CacheError) { captured.cacheErr <- e }),
	)

	t.Cleanup(func() {
		cancel()
		<-done
		subCloser()
	})

	return captured
}

// driveRetries fires n scheduled retries and returns their delays
func driveRetries(t *testing.T, clk *clocktest.Clock, events capturedEvents, n int) []time.Duration {
	t.Helper()

	delays := make([]time.Duration, 0, n)
	for range n {
		scheduled := <-events.retryScheduled
		delays = append(delays, scheduled.Delay)
		clk.WaitFor(scheduled.Delay)
		clk.Advance(scheduled.Delay)
	}
	return delays
}

// Domain-specific assertions

func assertSnapshotFromCycle(t *testing.T, snap dashboard.Snapshot, cycle int) {
	t.Helper()
	want := float64(cycle)
	assert.InDelta(t, want, snap.Network.TPS, 1e-9, "network stats from another cycle")
	assert.Equal(t, int64(cycle), snap.Protocol.TotalTransactions, "protocol metrics from another cycle")
	assert.Equal(t, int64(cycle), snap.Proofs.ProofsGenerated, "proof stats from another cycle")
	assert.InDelta(t, want, snap.Price.Price, 1e-9, "price info from another cycle")
	require.NotEmpty(t, snap.VolumeHistory)
	assert.Equal(t, int64(cycle), snap.VolumeHistory[0], "volume history from another cycle")
}

func assertOnlyRefreshTimerPending(t *testing.T, clk *clocktest.Clock) {
	t.Helper()
	clk.WaitFor(poller.DefaultPollInterval)
	assert.Equal(t, []time.Duration{poller.DefaultPollInterval}, clk.Requested(), "no retry timer should remain")
}

// Mock implementations

// cycleSource tags every sub-record with the number of the fetch cycle that
// requested it. Sub-records of one cycle share the group context.
type cycleSource struct {
	mu                sync.Mutex
	cycles            map[context.Context]int
	next              int
	failing           atomic.Bool
	hold              chan struct{}
	firstCycleStarted chan struct{}
}

func newCycleSource() *cycleSource {
	return &cycleSource{cycles: make(map[context.Context]int)}
}

func (s *cycleSource) holdFirstCycle() {
	s.hold = make(chan struct{})
	s.firstCycleStarted = make(chan struct{})
}

func (s *cycleSource) result(ctx context.Context) (int, error) {
	s.mu.Lock()
	cycle, ok := s.cycles[ctx]
	if !ok {
		s.next++
		cycle = s.next
		s.cycles[ctx] = cycle
		if cycle == 1 && s.firstCycleStarted != nil {
			close(s.firstCycleStarted)
		}
	}
	s.mu.Unlock()

	if cycle == 1 && s.hold != nil {
		select {
		case <-s.hold:
		case <-ctx.Done():
			return cycle, ctx.Err()
		}
	}
	if s.failing.Load() {
		return cycle, errUpstreamTimeout
	}
	return cycle, nil
}

func (s *cycleSource) NetworkStats(ctx context.Context) (dashboard.NetworkStats, error) {
	c, err := s.result(ctx)
	return dashboard.NetworkStats{TPS: float64(c), BlockHeight: 100}, err
}

func (s *cycleSource) ProtocolMetrics(ctx context.Context) (dashboard.ProtocolMetrics, error) {
	c, err := s.result(ctx)
	return dashboard.ProtocolMetrics{TotalTransactions: int64(c)}, err
}

func (s *cycleSource) ProofStats(ctx context.Context) (dashboard.ProofStats, error) {
	c, err := s.result(ctx)
	return dashboard.ProofStats{ProofsGenerated: int64(c)}, err
}

func (s *cycleSource) PriceInfo(ctx context.Context) (dashboard.PriceInfo, error) {
	c, err := s.result(ctx)
	return dashboard.PriceInfo{Price: float64(c)}, err
}

func (s *cycleSource) VolumeHistory(ctx context.Context) ([]int64, error) {
	c, err := s.result(ctx)
	return []int64{int64(c)}, err
}

func (s *cycleSource) Activities(ctx context.Context) ([]dashboard.Activity, error) {
	c, err := s.result(ctx)
	return []dashboard.Activity{{ID: "activity-" + string(rune('0'+c)), Type: dashboard.KindProof}}, err
}

// fakeStream implements realtime.Source over a test-owned channel
type fakeStream struct {
	ch      chan realtime.Event
	openErr error
	closed  atomic.Bool
}

func (f *fakeStream) Open(context.Context) (<-chan realtime.Event, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.ch, nil
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeStream) Connected() bool { return !f.closed.Load() }

// fakeCache implements poller.Cache in memory
type fakeCache struct {
	mu      sync.Mutex
	snap    dashboard.Snapshot
	found   bool
	saveErr error
	saved   *dashboard.Snapshot
}

func (c *fakeCache) Load(context.Context) (dashboard.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.found, nil
}

func (c *fakeCache) Save(_ context.Context, snap dashboard.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = &snap
	return nil
}

func (c *fakeCache) lastSaved() *dashboard.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved
}
