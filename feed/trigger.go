package feed

import (
	"context"
	"sync"
	"time"

	"github.com/zkx401/pulse/pkg/clock"
)

// Default trigger settings
const (
	DefaultRootMargin      = 50
	DefaultThreshold       = 0.8
	DefaultTriggerDebounce = 250 * time.Millisecond
)

// Intersection is the geometry of the sentinel element below the window,
// in the same units as the viewport.
type Intersection struct {
	Top            float64 `json:"top"`
	Height         float64 `json:"height"`
	ViewportBottom float64 `json:"viewportBottom"`
}

// Loader grows a window on demand
type Loader interface {
	LoadMore(ctx context.Context) bool
}

// TriggerOption configures the Trigger
type TriggerOption func(*Trigger)

// WithRootMargin extends the viewport downward so loading starts early
func WithRootMargin(margin float64) TriggerOption {
	return func(t *Trigger) { t.margin = margin }
}

// WithThreshold sets the visible fraction of the sentinel that fires a load
func WithThreshold(ratio float64) TriggerOption {
	return func(t *Trigger) { t.threshold = ratio }
}

// WithDebounce sets the window in which repeated observations are ignored
func WithDebounce(d time.Duration) TriggerOption {
	return func(t *Trigger) { t.debounce = d }
}

// WithTriggerClock injects a custom Clock
func WithTriggerClock(c Clock) TriggerOption {
	return func(t *Trigger) { t.clock = c }
}

// Trigger calls LoadMore when the sentinel scrolls into view
type Trigger struct {
	loader    Loader
	clock     Clock
	margin    float64
	threshold float64
	debounce  time.Duration

	mu    sync.Mutex
	fired time.Time
}

// NewTrigger creates a Trigger for loader
func NewTrigger(loader Loader, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		loader:    loader,
		clock:     clock.SystemClock{},
		margin:    DefaultRootMargin,
		threshold: DefaultThreshold,
		debounce:  DefaultTriggerDebounce,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ratio returns the visible fraction of the sentinel within the extended viewport
func (t *Trigger) Ratio(in Intersection) float64 {
	bottom := in.ViewportBottom + t.margin
	if in.Height <= 0 {
		if in.Top <= bottom {
			return 1
		}
		return 0
	}
	visible := min(max(bottom-in.Top, 0), in.Height)
	return visible / in.Height
}

// Observe reports one sentinel position and returns whether the window grew.
func (t *Trigger) Observe(ctx context.Context, in Intersection) bool {
	if t.Ratio(in) < t.threshold {
		return false
	}

	t.mu.Lock()
	now := t.clock.Now()
	if !t.fired.IsZero() && now.Sub(t.fired) < t.debounce {
		t.mu.Unlock()
		return false
	}
	t.fired = now
	t.mu.Unlock()

	return t.loader.LoadMore(ctx)
}
