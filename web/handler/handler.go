// Package handler serves the dashboard stores over JSON/HTTP.
package handler

import (
	"log/slog"

	"github.com/zkx401/pulse/boundary"
	"github.com/zkx401/pulse/pkg/clock"
)

// Recorder counts the requests that produce business events
type Recorder interface {
	Searched(index string)
	Exported(kind, format string)
}

type nopRecorder struct{}

func (nopRecorder) Searched(string)         {}
func (nopRecorder) Exported(string, string) {}

// Option configures a handler
type Option func(*options)

type options struct {
	clock    clock.Clock
	recorder Recorder
	onError  func(boundary.Report)
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRecorder sets the business event counters
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithErrorReporter registers a hook receiving section failures
func WithErrorReporter(fn func(boundary.Report)) Option {
	return func(o *options) { o.onError = fn }
}

// WithLogger reports section failures to logger
func WithLogger(logger *slog.Logger) Option {
	return WithErrorReporter(func(r boundary.Report) {
		logger.Warn("Section render failed",
			slog.String("section", r.Section),
			slog.String("error_id", r.ErrorID),
			slog.Bool("retryable", r.Retryable),
			slog.Int("retry_count", r.RetryCount),
			slog.Any("error", r.Err),
		)
	})
}

func newOptions(opts []Option) options {
	o := options{
		clock:    clock.SystemClock{},
		recorder: nopRecorder{},
		onError:  func(boundary.Report) {},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
