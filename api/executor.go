// Package api
// Author: momentics
//
// Executor contract used to bind observers to a scheduling domain.

package api

// Executor runs a callback somewhere: inline, on a queue, or on a pool.
type Executor interface {
	// Spawn schedules work. Inline executors run it before returning.
	Spawn(work func())
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(work func())

// Spawn calls f(work).
func (f ExecutorFunc) Spawn(work func()) {
	f(work)
}
