// Package feed reveals a long activity list through a growing window and
// injects synthetic records on a randomized timer.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
)

// ErrRefreshInterrupted is recorded when a refresh is cancelled mid-way.
var ErrRefreshInterrupted = errors.New("failed to refresh")

// Default configuration values
const (
	DefaultInitialSize    = 20
	DefaultIncrementSize  = 10
	DefaultMaxSize        = 1000
	DefaultLoadLatency    = 500 * time.Millisecond
	DefaultRefreshLatency = time.Second
	DefaultInjectMin      = 5 * time.Second
	DefaultInjectMax      = 15 * time.Second
)

// Generator creates the records injected by the realtime timer
type Generator interface {
	Activity(at time.Time) dashboard.Activity
	Jitter(lo, hi time.Duration) time.Duration
}

// Clock abstracts time for production and testing
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// View is a consistent copy of the store state
type View struct {
	Items      []dashboard.Activity `json:"items"`
	Loading    bool                 `json:"isLoading"`
	Refreshing bool                 `json:"isRefreshing"`
	HasMore    bool                 `json:"hasMore"`
	TotalCount int                  `json:"totalCount"`
	Error      string               `json:"error,omitempty"`
	Realtime   bool                 `json:"realtime"`
}

// Option configures the Store
type Option func(*Store)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSizes sets the initial window, the growth step and the window cap
func WithSizes(initial, increment, maxSize int) Option {
	return func(s *Store) {
		s.initialSize = initial
		s.incrementSize = increment
		s.maxSize = maxSize
	}
}

// WithLatency sets the simulated load and refresh delays
func WithLatency(load, refresh time.Duration) Option {
	return func(s *Store) {
		s.loadLatency = load
		s.refreshLatency = refresh
	}
}

// WithInjectInterval sets the bounds of the randomized injection interval
func WithInjectInterval(lo, hi time.Duration) Option {
	return func(s *Store) {
		s.injectMin = lo
		s.injectMax = hi
	}
}

// WithRealtime sets whether injection starts enabled
func WithRealtime(enabled bool) Option {
	return func(s *Store) { s.realtime = enabled }
}

// WithOnInsert registers a hook called with every injected record
func WithOnInsert(fn func(dashboard.Activity)) Option {
	return func(s *Store) { s.onInsert = fn }
}

// Store holds the full list and the size of its visible prefix
type Store struct {
	gen            Generator
	clock          Clock
	initialSize    int
	incrementSize  int
	maxSize        int
	loadLatency    time.Duration
	refreshLatency time.Duration
	injectMin      time.Duration
	injectMax      time.Duration
	onInsert       func(dashboard.Activity)

	mu           sync.Mutex
	source       []dashboard.Activity
	displayCount int
	totalCount   int
	loading      bool
	refreshing   int
	epoch        uint64
	err          string
	realtime     bool
	toggled      chan struct{}
}

// NewStore creates a Store over items, newest first.
func NewStore(items []dashboard.Activity, gen Generator, opts ...Option) *Store {
	s := &Store{
		gen:            gen,
		clock:          clock.SystemClock{},
		initialSize:    DefaultInitialSize,
		incrementSize:  DefaultIncrementSize,
		maxSize:        DefaultMaxSize,
		loadLatency:    DefaultLoadLatency,
		refreshLatency: DefaultRefreshLatency,
		injectMin:      DefaultInjectMin,
		injectMax:      DefaultInjectMax,
		realtime:       true,
		toggled:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initialSize = min(s.initialSize, s.maxSize)
	s.source = slices.Clone(items)
	if len(s.source) > s.maxSize {
		s.source = s.source[:s.maxSize]
	}
	s.displayCount = s.initialSize
	s.totalCount = len(s.source)
	return s
}

// View returns the visible window and flags
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Items:      slices.Clone(s.window()),
		Loading:    s.loading,
		Refreshing: s.refreshing > 0,
		HasMore:    s.hasMore(),
		TotalCount: s.totalCount,
		Error:      s.err,
		Realtime:   s.realtime,
	}
}

func (s *Store) window() []dashboard.Activity {
	return s.source[:min(s.displayCount, len(s.source))]
}

func (s *Store) hasMore() bool {
	return s.displayCount < len(s.source) && s.displayCount < s.maxSize
}

// LoadMore grows the window by one increment after the simulated latency.
// It is a no-op returning false while a load is running or nothing is left.
func (s *Store) LoadMore(ctx context.Context) bool {
	s.mu.Lock()
	if s.loading || !s.hasMore() {
		s.mu.Unlock()
		return false
	}
	s.loading = true
	epoch := s.epoch
	s.mu.Unlock()

	waited := s.wait(ctx, s.loadLatency)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if !waited || epoch != s.epoch {
		// cancelled, or a refresh reset the window meanwhile
		return false
	}
	s.displayCount = min(s.displayCount+s.incrementSize, s.maxSize)
	s.err = ""
	return true
}

// Refresh resets the window to its initial size and restores the total count.
func (s *Store) Refresh(ctx context.Context) View {
	s.mu.Lock()
	s.epoch++
	s.refreshing++
	s.displayCount = s.initialSize
	s.mu.Unlock()

	waited := s.wait(ctx, s.refreshLatency)

	s.mu.Lock()
	s.refreshing--
	if waited {
		s.totalCount = len(s.source)
		s.err = ""
	} else {
		s.err = fmt.Errorf("%w: %w", ErrRefreshInterrupted, ctx.Err()).Error()
	}
	s.mu.Unlock()
	return s.View()
}

// SetRealtime toggles injection. Records injected so far are kept.
func (s *Store) SetRealtime(enabled bool) {
	s.mu.Lock()
	s.realtime = enabled
	s.mu.Unlock()

	select {
	case s.toggled <- struct{}{}:
	default:
	}
}

// Inject prepends rec, keeping the window size. The oldest visible record
// slides out of the window and stays reachable through LoadMore.
func (s *Store) Inject(rec dashboard.Activity) {
	s.mu.Lock()
	if slices.ContainsFunc(s.source, func(a dashboard.Activity) bool { return a.ID == rec.ID }) {
		s.mu.Unlock()
		return
	}
	s.source = dashboard.PrependActivities(s.source, s.maxSize, rec)
	s.totalCount++
	s.mu.Unlock()

	if s.onInsert != nil {
		s.onInsert(rec)
	}
}

// Start runs the injection timer until ctx is cancelled. The returned
// channel is closed once the timer goroutine has stopped.
func (s *Store) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()
	return done
}

func (s *Store) run(ctx context.Context) {
	var tick <-chan time.Time
	arm := func() {
		switch {
		case !s.realtimeEnabled():
			tick = nil
		case tick == nil:
			tick = s.clock.After(s.gen.Jitter(s.injectMin, s.injectMax))
		}
	}

	arm()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.toggled:
			arm()
		case <-tick:
			tick = nil
			if s.realtimeEnabled() {
				s.Inject(s.gen.Activity(s.clock.Now()))
			}
			arm()
		}
	}
}

func (s *Store) realtimeEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realtime
}

// wait sleeps on the store clock, returning false when ctx ends first.
func (s *Store) wait(ctx context.Context, d time.Duration) bool {
	if err := ctx.Err(); err != nil {
		return false
	}
	return clock.Sleep(s.clock, d, ctx.Done())
}
