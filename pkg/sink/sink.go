package sink

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sink: closed")

// Stats contains delivery counters for a sink.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Skipped   uint64
}

// counters is embedded by every sink.
type counters struct {
	closed    atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64
	skipped   atomic.Uint64
}

// Stats returns the sink's delivery counters.
func (c *counters) Stats() Stats {
	return Stats{
		Delivered: c.delivered.Load(),
		Dropped:   c.dropped.Load(),
		Skipped:   c.skipped.Load(),
	}
}

// DropWhenFull tells the hub to drop payloads for a backed-up sink instead
// of removing it, so a slow broker only costs messages.
func (c *counters) DropWhenFull() bool { return true }

// Drop records a payload the hub could not queue for the sink.
func (c *counters) Drop() { c.dropped.Add(1) }

// drop records a failed delivery. The error is logged, not returned.
func (c *counters) drop(logger *slog.Logger, err error) error {
	c.dropped.Add(1)
	logger.Warn("delivery dropped", "error", err)
	return nil
}

// Option configures a sink.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the sink logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}
