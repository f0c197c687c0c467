// Package boundary isolates failures of one dashboard section so the rest
// keeps rendering. A failed section shows its last good value or a fallback
// and retries itself when the failure looks transient.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zkx401/pulse/pkg/clock"
	"github.com/zkx401/pulse/pkg/retry"
)

// ErrPanic wraps a value recovered from a panicking render
var ErrPanic = errors.New("section panicked")

// Default retry settings
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// retryableMarkers are message fragments of transient failures
var retryableMarkers = []string{"Network Error", "fetch", "timeout", "ECONNRESET"}

// Level is the scope of the guarded section
type Level string

const (
	LevelPage      Level = "page"
	LevelComponent Level = "component"
	LevelWidget    Level = "widget"
)

// Status of a boundary
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Report describes a captured failure
type Report struct {
	ErrorID    string    `json:"errorId"`
	Section    string    `json:"section"`
	Level      Level     `json:"level"`
	Message    string    `json:"message"`
	Stack      string    `json:"-"`
	Retryable  bool      `json:"retryable"`
	RetryCount int       `json:"retryCount"`
	At         time.Time `json:"timestamp"`
	Err        error     `json:"-"`
}

// View is what a section displays
type View[T any] struct {
	Value      T       `json:"value"`
	Fallback   bool    `json:"isFallback"`
	Status     Status  `json:"status"`
	Error      *Report `json:"error,omitempty"`
	RetryCount int     `json:"retryCount"`
}

// IsRetryable reports whether err looks like a transient network failure
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Option configures a Boundary
type Option func(*options)

type options struct {
	level   Level
	clock   clock.Clock
	retry   retry.Config
	onError func(Report)
}

// WithLevel sets the section scope reported with failures
func WithLevel(l Level) Option {
	return func(o *options) { o.level = l }
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRetry sets the automatic retry policy
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(o *options) {
		o.retry.MaxRetries = maxRetries
		o.retry.InitialDelay = base
	}
}

// WithOnError registers a hook receiving every captured failure
func WithOnError(fn func(Report)) Option {
	return func(o *options) { o.onError = fn }
}

// Boundary guards one section render function
type Boundary[T any] struct {
	name     string
	render   func(context.Context) (T, error)
	fallback T
	opts     options

	mu         sync.Mutex
	last       T
	hasLast    bool
	status     Status
	report     *Report
	retryCount int
	scheduled  bool
}

// New creates a Boundary named after the section it guards
func New[T any](name string, render func(context.Context) (T, error), fallback T, opts ...Option) *Boundary[T] {
	o := options{
		level:   LevelComponent,
		clock:   clock.SystemClock{},
		retry:   retry.Config{MaxRetries: DefaultMaxRetries, InitialDelay: DefaultBaseDelay, Multiplier: 2},
		onError: func(Report) {},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Boundary[T]{name: name, render: render, fallback: fallback, opts: o, status: StatusOK}
}

// Name returns the guarded section name
func (b *Boundary[T]) Name() string { return b.name }

// Render runs the section. A failure is captured, never returned: the view
// carries the last good value or the fallback, and a transient failure
// schedules an automatic retry bounded by ctx.
func (b *Boundary[T]) Render(ctx context.Context) View[T] {
	value, err := b.call(ctx)

	b.mu.Lock()
	if err == nil {
		b.last = value
		b.hasLast = true
		b.status = StatusOK
		b.report = nil
		view := b.view()
		b.mu.Unlock()
		return view
	}

	report := b.capture(err)
	schedule := report.Retryable && !b.scheduled && b.retryCount < b.opts.retry.MaxRetries
	if schedule {
		b.scheduled = true
	}
	view := b.view()
	b.mu.Unlock()

	b.opts.onError(report)
	if schedule {
		go b.autoRetry(ctx)
	}
	return view
}

// View returns the current display state without rendering
func (b *Boundary[T]) View() View[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view()
}

// Retry re-renders a failed section. It does nothing once the retry budget is spent.
func (b *Boundary[T]) Retry(ctx context.Context) View[T] {
	b.mu.Lock()
	if b.status == StatusOK || b.retryCount >= b.opts.retry.MaxRetries {
		view := b.view()
		b.mu.Unlock()
		return view
	}
	b.retryCount++
	b.status = StatusRetrying
	b.mu.Unlock()

	return b.Render(ctx)
}

// Exhausted reports whether the section is failing with its retry budget spent
func (b *Boundary[T]) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status != StatusOK && b.retryCount >= b.opts.retry.MaxRetries
}

// Reset clears the failure and the retry budget
func (b *Boundary[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusOK
	b.report = nil
	b.retryCount = 0
}

func (b *Boundary[T]) autoRetry(ctx context.Context) {
	b.mu.Lock()
	delay := b.opts.retry.Delay(b.retryCount + 1)
	b.mu.Unlock()

	waited := clock.Sleep(b.opts.clock, delay, ctx.Done())

	b.mu.Lock()
	b.scheduled = false
	b.mu.Unlock()
	if waited {
		b.Retry(ctx)
	}
}

func (b *Boundary[T]) call(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return b.render(ctx)
}

func (b *Boundary[T]) capture(err error) Report {
	report := Report{
		ErrorID:    "error-" + uuid.NewString(),
		Section:    b.name,
		Level:      b.opts.level,
		Message:    err.Error(),
		Retryable:  IsRetryable(err),
		RetryCount: b.retryCount,
		At:         b.opts.clock.Now(),
		Err:        err,
	}
	var pe *panicError
	if errors.As(err, &pe) {
		report.Stack = string(pe.stack)
	}
	b.status = StatusFailed
	b.report = &report
	return report
}

func (b *Boundary[T]) view() View[T] {
	v := View[T]{Status: b.status, RetryCount: b.retryCount}
	switch {
	case b.hasLast:
		v.Value = b.last
	default:
		v.Value = b.fallback
		v.Fallback = true
	}
	if b.report != nil {
		r := *b.report
		v.Error = &r
	}
	return v
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("%s: %v", ErrPanic, e.value) }

func (e *panicError) Unwrap() error { return ErrPanic }
