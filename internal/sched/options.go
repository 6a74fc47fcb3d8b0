package sched

import (
	"log/slog"
	"time"
)

// DefaultFrameInterval is how long a host turn may run before ShouldYield
// starts reporting true.
const DefaultFrameInterval = 5 * time.Millisecond

// Options holds configuration options for the [Scheduler].
type Options struct {
	Clock         Clock
	Logger        *slog.Logger
	Observers     []Observer
	FrameInterval time.Duration
	ErrorHandler  func(error)
}

// Option is a function that configures [Options].
type Option func(*Options)

// WithClock sets the time source. Defaults to a [MonotonicClock].
func WithClock(c Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithLogger sets the logger for the [Scheduler].
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithObserver adds an event observer. It may be given more than once.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observers = append(o.Observers, obs)
	}
}

// WithFrameInterval sets the default yield budget of a host turn.
func WithFrameInterval(d time.Duration) Option {
	return func(o *Options) {
		o.FrameInterval = d
	}
}

// WithErrorHandler sets the function that receives callback failures at the
// host boundary. The default logs them.
func WithErrorHandler(fn func(error)) Option {
	return func(o *Options) {
		o.ErrorHandler = fn
	}
}
