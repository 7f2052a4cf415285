// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the capability every fd-bearing component exposes to the reactor,
// and the reentrancy policy a watch is registered with.

package api

// Dispatchable is a component with one waitable fd plus a readiness handler.
type Dispatchable interface {
	// WatchFd returns the file descriptor to wait on.
	WatchFd() int

	// Dispatch handles readiness. Returning false asks the caller to stop watching.
	Dispatch(events FdEvents) bool

	// RelevantEvents returns the readiness conditions the component wants to hear about.
	RelevantEvents() FdEvents
}

// DispatchReentrancy controls whether Dispatch may be entered concurrently for one fd.
type DispatchReentrancy int

const (
	// Sequential allows at most one Dispatch in flight per fd.
	Sequential DispatchReentrancy = iota
	// Parallel allows concurrent Dispatch calls from several threads.
	Parallel
)

func (r DispatchReentrancy) String() string {
	if r == Parallel {
		return "parallel"
	}
	return "sequential"
}

// ErrorHandler receives failures that escape a dispatch loop, recovered panics included.
type ErrorHandler func(err error)
