// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options shared by reactor components.

package reactor

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/control"
	"github.com/momentics/hioload-dispatch/logs"
)

type options struct {
	logger       *zap.Logger
	metrics      *control.Metrics
	errorHandler api.ErrorHandler
	cpu          int
	cpus         []int
	name         string
}

func defaultOptions(component string) options {
	return options{
		logger:       logs.Named(component),
		errorHandler: func(error) {},
		cpu:          -1,
		name:         component,
	}
}

// Option customizes a reactor component.
type Option func(*options)

// WithLogger overrides the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithErrorHandler sets the sink for failures escaping a dispatch thread.
// The default discards them.
func WithErrorHandler(h api.ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.errorHandler = h
		}
	}
}

// WithCPU pins dispatch threads to a logical CPU. Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(o *options) {
		o.cpu = cpu
	}
}

// WithCPUs spreads a ThreadedDispatcher's threads round-robin over cpus.
func WithCPUs(cpus []int) Option {
	return func(o *options) {
		o.cpus = append([]int(nil), cpus...)
	}
}

// WithName labels the component in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

type watchConfig struct {
	reentrancy api.DispatchReentrancy
	owned      bool
}

// WatchOption customizes one AddWatch call.
type WatchOption func(*watchConfig)

// WithReentrancy selects Sequential (default) or Parallel dispatch for the watch.
func WithReentrancy(r api.DispatchReentrancy) WatchOption {
	return func(c *watchConfig) {
		c.reentrancy = r
	}
}

// Owned hands the dispatchable to the reactor: if it implements io.Closer it is
// closed once removed and no dispatch references it any more.
func Owned() WatchOption {
	return func(c *watchConfig) {
		c.owned = true
	}
}
