//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipe-backed Dispatchable recording how it is driven.

package fake

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

// Dispatchable watches the read end of a non-blocking pipe.
type Dispatchable struct {
	r, w     int
	relevant api.FdEvents

	// Hook, when set before the dispatchable is watched, replaces the
	// default drain-and-continue behaviour.
	Hook func(d *Dispatchable, events api.FdEvents) bool

	calls       atomic.Int64
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	closed      atomic.Bool
	lateClose   atomic.Bool

	mu   sync.Mutex // guards w and seen
	seen []api.FdEvents
}

// NewDispatchable opens a pipe; relevant defaults to Readable when zero.
func NewDispatchable(relevant api.FdEvents) (*Dispatchable, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if relevant == 0 {
		relevant = api.Readable
	}
	return &Dispatchable{r: p[0], w: p[1], relevant: relevant}, nil
}

func (d *Dispatchable) WatchFd() int { return d.r }

func (d *Dispatchable) RelevantEvents() api.FdEvents { return d.relevant }

func (d *Dispatchable) Dispatch(events api.FdEvents) bool {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		cur := d.maxInFlight.Load()
		if n <= cur || d.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	d.calls.Add(1)
	d.mu.Lock()
	d.seen = append(d.seen, events)
	d.mu.Unlock()

	if d.Hook != nil {
		return d.Hook(d, events)
	}
	d.Drain()
	return true
}

// Trigger makes the read end readable.
func (d *Dispatchable) Trigger() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w < 0 {
		return unix.EPIPE
	}
	_, err := unix.Write(d.w, []byte{1})
	return err
}

// Drain empties the pipe.
func (d *Dispatchable) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(d.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// HangUp closes the write end so the read end reports RemoteClosed.
func (d *Dispatchable) HangUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w < 0 {
		return nil
	}
	err := unix.Close(d.w)
	d.w = -1
	return err
}

// Close releases both ends. Closing while a Dispatch is running is recorded.
func (d *Dispatchable) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.inFlight.Load() > 0 {
		d.lateClose.Store(true)
	}
	_ = d.HangUp()
	return unix.Close(d.r)
}

func (d *Dispatchable) Calls() int64 { return d.calls.Load() }

func (d *Dispatchable) MaxInFlight() int32 { return d.maxInFlight.Load() }

func (d *Dispatchable) Closed() bool { return d.closed.Load() }

// ClosedWhileInFlight reports whether Close ran concurrently with Dispatch.
func (d *Dispatchable) ClosedWhileInFlight() bool { return d.lateClose.Load() }

// Events returns every event set passed to Dispatch so far.
func (d *Dispatchable) Events() []api.FdEvents {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.FdEvents(nil), d.seen...)
}
