//go:build linux
// +build linux

// File: reactor/threaded_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadedDispatcher drives one dispatchable from a resizable set of
// dispatch threads. Pair it with a MultiplexingDispatchable whose Parallel
// watches may then be dispatched concurrently.

package reactor

import (
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/momentics/hioload-dispatch/api"
)

// ThreadedDispatcher owns a pool of DispatchThreads over the same dispatchable.
type ThreadedDispatcher struct {
	mu         sync.Mutex
	dispatchee api.Dispatchable
	threads    []*DispatchThread
	opts       []Option
	cpus       []int
	name       string
	closed     bool
}

// NewThreadedDispatcher starts n threads over d. With WithCPUs thread i is
// pinned to cpus[i%len(cpus)].
func NewThreadedDispatcher(name string, d api.Dispatchable, n int, opts ...Option) (*ThreadedDispatcher, error) {
	o := defaultOptions(name)
	for _, opt := range opts {
		opt(&o)
	}
	td := &ThreadedDispatcher{dispatchee: d, opts: opts, cpus: o.cpus, name: name}
	for i := 0; i < n; i++ {
		if err := td.AddThread(); err != nil {
			_ = td.Close()
			return nil, err
		}
	}
	return td, nil
}

// AddThread grows the pool by one thread.
func (td *ThreadedDispatcher) AddThread() error {
	td.mu.Lock()
	defer td.mu.Unlock()
	if td.closed {
		return api.ErrClosed
	}
	i := len(td.threads)
	opts := append(append([]Option(nil), td.opts...), WithName(td.name+"-"+strconv.Itoa(i)))
	if len(td.cpus) > 0 {
		opts = append(opts, WithCPU(td.cpus[i%len(td.cpus)]))
	}
	t, err := NewDispatchThread(td.dispatchee, opts...)
	if err != nil {
		return err
	}
	td.threads = append(td.threads, t)
	return nil
}

// RemoveThread stops the most recently added thread and waits for it.
// It must not be called from one of the pool's own dispatch callbacks.
func (td *ThreadedDispatcher) RemoveThread() error {
	td.mu.Lock()
	n := len(td.threads)
	if n == 0 {
		td.mu.Unlock()
		return api.ErrInvalidArgument.WithContext("threads", 0)
	}
	t := td.threads[n-1]
	td.threads = td.threads[:n-1]
	td.mu.Unlock()
	return t.Close()
}

// Resize adds or removes threads until the pool has n of them.
func (td *ThreadedDispatcher) Resize(n int) error {
	if n < 0 {
		return api.ErrInvalidArgument.WithContext("threads", n)
	}
	for td.Len() < n {
		if err := td.AddThread(); err != nil {
			return err
		}
	}
	for td.Len() > n {
		if err := td.RemoveThread(); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of threads in the pool.
func (td *ThreadedDispatcher) Len() int {
	td.mu.Lock()
	defer td.mu.Unlock()
	return len(td.threads)
}

// Close stops every thread.
func (td *ThreadedDispatcher) Close() error {
	td.mu.Lock()
	td.closed = true
	threads := td.threads
	td.threads = nil
	td.mu.Unlock()

	var err error
	for _, t := range threads {
		err = multierr.Append(err, t.Close())
	}
	return err
}
