package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
	"github.com/zkx401/pulse/pkg/retry"
	"github.com/zkx401/pulse/realtime"
)

// Option configures the Service
// ------------------------------------------------
type Option func(*Service)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPollInterval sets the periodic refresh interval
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithRetry sets the automatic retry policy. MaxRetries of zero disables retries.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Service) {
		s.retry.MaxRetries = maxRetries
		s.retry.InitialDelay = delay
	}
}

// WithActivities fetches the activity list together with the snapshot
func WithActivities(src ActivitySource) Option {
	return func(s *Service) { s.activities = src }
}

// WithMaxActivities caps the activity list
func WithMaxActivities(n int) Option {
	return func(s *Service) { s.maxActivities = n }
}

// WithRealtime subscribes the run loop to a push event source
func WithRealtime(src realtime.Source) Option {
	return func(s *Service) { s.stream = src }
}

// WithCache seeds the state from and writes successful fetches to cache
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPool runs fan-out fetches on a shared worker pool
func WithPool(p pond.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// Service holds the latest snapshot and keeps it fresh
// -----------------------------------------------------
type Service struct {
	source        Source
	activities    ActivitySource
	stream        realtime.Source
	cache         Cache
	clock         Clock
	pool          pond.Pool
	pollInterval  time.Duration
	retry         retry.Config
	maxActivities int

	mu       sync.Mutex
	state    State
	cycle    uint64
	fetchGen uint64
	cancel   context.CancelFunc

	handlers  *xsync.Map[uint64, func(realtime.Event)]
	handlerID atomic.Uint64

	lifeMu   sync.RWMutex
	started  bool
	running  bool
	stopping chan struct{}
	events   chan Event
	retries  chan time.Duration
}

// NewService constructs a Service with required dependencies and options
// ---------------------------------------------------------------------
// By default, it uses a real clock, a 30s refresh interval and three
// retries starting at one second. The state starts with fallback data.
func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:        source,
		clock:         clock.SystemClock{},
		pollInterval:  DefaultPollInterval,
		retry:         retry.Config{MaxRetries: DefaultMaxRetries, InitialDelay: DefaultRetryDelay, Multiplier: 2},
		maxActivities: DefaultMaxActivities,
		handlers:      xsync.NewMap[uint64, func(realtime.Event)](),
		stopping:      make(chan struct{}),
		events:        make(chan Event, 64),
		retries:       make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = pond.NewPool(DefaultWorkers)
	}
	s.state = State{Snapshot: dashboard.Fallback(s.clock.Now()), Loading: true}
	return s
}

// State returns a copy of the current state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotState()
}

func (s *Service) snapshotState() State {
	out := s.state
	out.Snapshot = s.state.Snapshot.Clone()
	out.Activities = slices.Clone(s.state.Activities)
	return out
}

// Initialize performs the first fetch. Failures leave the fallback data in place.
func (s *Service) Initialize(ctx context.Context) State {
	return s.fetch(ctx, TriggerInitial)
}

// Refresh fetches a new snapshot, keeping the previous one on failure.
func (s *Service) Refresh(ctx context.Context) State {
	return s.fetch(ctx, TriggerManual)
}

// Retry resets the automatic retry budget and refreshes.
func (s *Service) Retry(ctx context.Context) State {
	s.mu.Lock()
	s.state.RetryCount = 0
	s.state.Exhausted = false
	s.mu.Unlock()
	return s.fetch(ctx, TriggerRetry)
}

// SubscribeRealtime registers handler for every applied push event.
// The returned function removes the handler.
func (s *Service) SubscribeRealtime(handler func(realtime.Event)) func() {
	id := s.handlerID.Add(1)
	s.handlers.Store(id, handler)
	return func() { s.handlers.Delete(id) }
}

// Start launches the refresh loop and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Service stops producing events and closes events channel
//  3. Wait for complete shutdown: <-done
//
// Events are only delivered between Start and shutdown. A Service runs
// once: later calls return an events channel and done channel that are
// already closed.
func (s *Service) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	s.lifeMu.Lock()
	if s.started {
		s.lifeMu.Unlock()
		return closedEvents(), closedDone()
	}
	s.started = true
	s.running = true
	s.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer s.shutdown()
		s.run(ctx)
	}()
	return s.events, done
}

func (s *Service) shutdown() {
	close(s.stopping)

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.running = false
	close(s.events)
}

func closedEvents() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

func closedDone() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// emit delivers e unless the service is not running.
func (s *Service) emit(e Event) {
	s.lifeMu.RLock()
	defer s.lifeMu.RUnlock()
	if !s.running {
		return
	}
	select {
	case s.events <- e:
	case <-s.stopping:
	}
}

// run owns the refresh timer, the retry timer and the realtime stream
// -------------------------------------------------------------------
func (s *Service) run(ctx context.Context) {
	s.seedFromCache(ctx)

	var stream <-chan realtime.Event
	if s.stream != nil {
		events, err := s.stream.Open(ctx)
		if err != nil {
			s.emit(RealtimeError{Err: fmt.Errorf("%w: %w", ErrRealtimeOpen, err)})
		} else {
			stream = events
			s.setStreaming(true)
		}
	}

	refresh := s.clock.After(s.pollInterval)
	var retryTimer <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if s.stream != nil {
				_ = s.stream.Close()
			}
			s.cancelInflight()
			s.emit(Shutdown{Reason: ctx.Err()})
			return
		case <-refresh:
			s.fetch(ctx, TriggerInterval)
			refresh = s.clock.After(s.pollInterval)
		case d := <-s.retries:
			if d < 0 {
				retryTimer = nil
				continue
			}
			retryTimer = s.clock.After(d)
		case <-retryTimer:
			retryTimer = nil
			s.fetch(ctx, TriggerRetry)
		case ev, ok := <-stream:
			if !ok {
				stream = nil
				s.setStreaming(false)
				s.emit(RealtimeError{Err: realtime.ErrDisconnected})
				continue
			}
			s.Apply(ev)
		}
	}
}

func (s *Service) seedFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	snap, ok, err := s.cache.Load(ctx)
	if err != nil {
		s.emit(CacheError{Err: fmt.Errorf("%w: %w", ErrCacheLoad, err)})
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	if s.state.LastUpdated.IsZero() {
		s.state.Snapshot = snap
		s.state.LastUpdated = snap.FetchedAt
		s.cycle = max(s.cycle, snap.Cycle)
	}
	s.mu.Unlock()
	s.emit(CacheSeeded{Cycle: snap.Cycle, FetchedAt: snap.FetchedAt})
}

func (s *Service) setStreaming(on bool) {
	s.mu.Lock()
	s.state.Streaming = on
	s.mu.Unlock()
}

func (s *Service) cancelInflight() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

// scheduleRetry hands a retry delay to the run loop. A negative delay drops
// any pending retry.
func (s *Service) scheduleRetry(d time.Duration) {
	s.lifeMu.RLock()
	defer s.lifeMu.RUnlock()
	if !s.running {
		return
	}
	for {
		select {
		case s.retries <- d:
			return
		case <-s.stopping:
			return
		default:
		}
		// replace a request the loop has not picked up yet
		select {
		case <-s.retries:
		default:
		}
	}
}

// fetch runs one fan-out fetch cycle, superseding any fetch in flight
// -------------------------------------------------------------------
func (s *Service) fetch(ctx context.Context, trigger Trigger) State {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.fetchGen++
	gen := s.fetchGen
	if trigger == TriggerInitial {
		s.state.Loading = true
	} else {
		s.state.Refreshing = true
	}
	s.mu.Unlock()
	defer cancel()

	s.emit(FetchStarted{Trigger: trigger})
	start := s.clock.Now()

	snap, activities, err := s.collect(fetchCtx)

	s.mu.Lock()
	if gen != s.fetchGen {
		// superseded; the newer fetch owns the state
		state := s.snapshotState()
		s.mu.Unlock()
		s.emit(FetchCancelled{Trigger: trigger})
		return state
	}
	s.cancel = nil
	s.state.Loading = false
	s.state.Refreshing = false

	if err != nil && fetchCtx.Err() != nil {
		state := s.snapshotState()
		s.mu.Unlock()
		s.emit(FetchCancelled{Trigger: trigger})
		return state
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		s.state.Error = err.Error()
		s.state.Connected = false

		var delay time.Duration
		exhausted := false
		switch {
		case s.retry.MaxRetries <= 0:
		case s.state.RetryCount < s.retry.MaxRetries:
			s.state.RetryCount++
			delay = s.retry.Delay(s.state.RetryCount)
		default:
			exhausted = !s.state.Exhausted
			s.state.Exhausted = true
		}
		retryCount := s.state.RetryCount
		state := s.snapshotState()
		s.mu.Unlock()

		s.emit(FetchFailed{Trigger: trigger, Err: err, RetryCount: retryCount})
		switch {
		case delay > 0:
			s.scheduleRetry(delay)
			s.emit(RetryScheduled{Attempt: retryCount, Delay: delay})
		case exhausted:
			s.emit(RetriesExhausted{Attempts: retryCount, Err: err})
		}
		return state
	}

	s.cycle++
	snap.Cycle = s.cycle
	snap.FetchedAt = s.clock.Now()
	s.state.Snapshot = snap
	if activities != nil {
		s.state.Activities = dashboard.PrependActivities(nil, s.maxActivities, activities...)
	}
	s.state.Error = ""
	s.state.LastUpdated = snap.FetchedAt
	s.state.Connected = true
	hadRetries := s.state.RetryCount > 0
	s.state.RetryCount = 0
	s.state.Exhausted = false
	state := s.snapshotState()
	s.mu.Unlock()

	if hadRetries {
		s.scheduleRetry(-1)
	}
	if s.cache != nil {
		if err := s.cache.Save(ctx, snap); err != nil {
			s.emit(CacheError{Err: fmt.Errorf("%w: %w", ErrCacheSave, err)})
		}
	}
	s.emit(FetchSucceeded{
		Trigger:    trigger,
		Cycle:      snap.Cycle,
		Activities: len(state.Activities),
		Duration:   s.clock.Now().Sub(start),
	})
	return state
}

// collect fetches every sub-record concurrently; any failure fails the cycle
func (s *Service) collect(ctx context.Context) (dashboard.Snapshot, []dashboard.Activity, error) {
	var (
		snap       dashboard.Snapshot
		activities []dashboard.Activity
	)

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.SubmitErr(
		func() error {
			n, err := s.source.NetworkStats(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrNetworkStats, err)
			}
			snap.Network = n
			return nil
		},
		func() error {
			m, err := s.source.ProtocolMetrics(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProtocolMetrics, err)
			}
			snap.Protocol = m
			return nil
		},
		func() error {
			p, err := s.source.ProofStats(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProofStats, err)
			}
			snap.Proofs = p
			return nil
		},
		func() error {
			p, err := s.source.PriceInfo(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPriceInfo, err)
			}
			snap.Price = p
			return nil
		},
		func() error {
			h, err := s.source.VolumeHistory(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrVolumeHistory, err)
			}
			snap.VolumeHistory = slices.Clone(h)
			return nil
		},
	)
	if s.activities != nil {
		group.SubmitErr(func() error {
			a, err := s.activities.Activities(groupCtx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrActivities, err)
			}
			activities = a
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if errors.Is(err, pond.ErrGroupStopped) && ctx.Err() != nil {
			return dashboard.Snapshot{}, nil, ctx.Err()
		}
		return dashboard.Snapshot{}, nil, err
	}
	if activities == nil && s.activities != nil {
		activities = []dashboard.Activity{}
	}
	return snap, activities, nil
}

// Apply folds a push event into its snapshot sub-record and notifies subscribers.
// Other sub-records are left untouched.
func (s *Service) Apply(ev realtime.Event) {
	if !ev.Valid() {
		s.emit(RealtimeError{Err: fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Type)})
		return
	}

	s.mu.Lock()
	snap := s.state.Snapshot
	switch ev.Type {
	case realtime.TypeTransaction:
		network := snap.Network
		network.TotalTransactions++
		network.BlockHeight = max(network.BlockHeight, ev.Transaction.Slot)
		s.state.Snapshot = snap.WithNetwork(network)
	case realtime.TypePrice:
		s.state.Snapshot = snap.WithPrice(*ev.Price)
	case realtime.TypeStats:
		s.state.Snapshot = snap.WithNetwork(*ev.Stats)
	case realtime.TypeActivity:
		s.state.Activities = dashboard.PrependActivities(s.state.Activities, s.maxActivities, *ev.Activity)
	}
	s.mu.Unlock()

	s.emit(RealtimeApplied{Type: ev.Type})
	s.handlers.Range(func(_ uint64, handler func(realtime.Event)) bool {
		handler(ev)
		return true
	})
}
