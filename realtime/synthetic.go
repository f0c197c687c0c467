package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock"
)

// Default synthetic tick intervals
const (
	DefaultTransactionEvery = 3 * time.Second
	DefaultPriceEvery       = 5 * time.Second
	DefaultStatsEvery       = 10 * time.Second
	DefaultActivityEvery    = 4 * time.Second

	// SyntheticFee is the fee of a simulated transaction in SOL
	SyntheticFee = 0.000005
)

// Generator produces the payloads of synthetic events
type Generator interface {
	Network() dashboard.NetworkStats
	Price() dashboard.PriceInfo
	LiveBatch() []dashboard.Activity
	Signature() string
	Slot() int64
}

// Intervals sets how often each synthetic event type fires
type Intervals struct {
	Transaction time.Duration
	Price       time.Duration
	Stats       time.Duration
	Activity    time.Duration
}

// SyntheticOption configures a Synthetic source
type SyntheticOption func(*Synthetic)

// WithSyntheticClock injects a custom Clock
func WithSyntheticClock(c clock.Clock) SyntheticOption {
	return func(s *Synthetic) { s.clock = c }
}

// WithIntervals overrides the tick intervals
func WithIntervals(iv Intervals) SyntheticOption {
	return func(s *Synthetic) { s.intervals = iv }
}

// Synthetic emits generated events on fixed timers
type Synthetic struct {
	gen       Generator
	clock     clock.Clock
	intervals Intervals

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected atomic.Bool
}

// NewSynthetic creates a timer driven source over gen
func NewSynthetic(gen Generator, opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		gen:   gen,
		clock: clock.SystemClock{},
		intervals: Intervals{
			Transaction: DefaultTransactionEvery,
			Price:       DefaultPriceEvery,
			Stats:       DefaultStatsEvery,
			Activity:    DefaultActivityEvery,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the timers. The channel closes when ctx ends or Close is called.
func (s *Synthetic) Open(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, ErrAlreadyOpen
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	out := make(chan Event, 16)
	s.connected.Store(true)

	go func(done chan struct{}) {
		defer close(done)
		defer close(out)
		defer s.connected.Store(false)
		s.run(runCtx, out)
	}(s.done)
	return out, nil
}

// Close stops the timers and waits for the channel to close
func (s *Synthetic) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Connected reports whether the timers are running
func (s *Synthetic) Connected() bool {
	return s.connected.Load()
}

func (s *Synthetic) run(ctx context.Context, out chan<- Event) {
	tx := s.clock.After(s.intervals.Transaction)
	price := s.clock.After(s.intervals.Price)
	stats := s.clock.After(s.intervals.Stats)
	activity := s.clock.After(s.intervals.Activity)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var ok bool
		select {
		case <-ctx.Done():
			return
		case <-tx:
			now := s.clock.Now()
			tx = s.clock.After(s.intervals.Transaction)
			ok = send(Event{Type: TypeTransaction, Timestamp: now, Transaction: &Transaction{
				Signature: s.gen.Signature(),
				Slot:      s.gen.Slot(),
				Fee:       SyntheticFee,
				Status:    "confirmed",
			}})
		case <-price:
			now := s.clock.Now()
			price = s.clock.After(s.intervals.Price)
			p := s.gen.Price()
			ok = send(Event{Type: TypePrice, Timestamp: now, Price: &p})
		case <-stats:
			now := s.clock.Now()
			stats = s.clock.After(s.intervals.Stats)
			n := s.gen.Network()
			ok = send(Event{Type: TypeStats, Timestamp: now, Stats: &n})
		case <-activity:
			now := s.clock.Now()
			activity = s.clock.After(s.intervals.Activity)
			ok = true
			for _, a := range s.gen.LiveBatch() {
				if !send(Event{Type: TypeActivity, Timestamp: now, Activity: &a}) {
					ok = false
					break
				}
			}
		}
		if !ok {
			return
		}
	}
}
