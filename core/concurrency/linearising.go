// File: core/concurrency/linearising.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LinearisingExecutor serialises work on top of another executor.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-dispatch/api"
)

// LinearisingExecutor runs work one item at a time, in Spawn order, borrowing a
// goroutine from the underlying executor only while work is pending.
type LinearisingExecutor struct {
	underlying api.Executor

	mu      sync.Mutex
	pending *queue.Queue
	running bool
}

// NewLinearisingExecutor wraps underlying; nil means a fresh goroutine per batch.
func NewLinearisingExecutor(underlying api.Executor) *LinearisingExecutor {
	if underlying == nil {
		underlying = api.ExecutorFunc(func(work func()) { go work() })
	}
	return &LinearisingExecutor{underlying: underlying, pending: queue.New()}
}

func (l *LinearisingExecutor) Spawn(work func()) {
	l.mu.Lock()
	l.pending.Add(work)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	l.underlying.Spawn(l.run)
}

func (l *LinearisingExecutor) run() {
	for {
		l.mu.Lock()
		if l.pending.Length() == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		work := l.pending.Remove().(func())
		l.mu.Unlock()
		l.execute(work)
	}
}

// execute keeps the drain loop alive when work panics; the panic is re-raised
// on a fresh run so the underlying executor still sees it.
func (l *LinearisingExecutor) execute(work func()) {
	ok := false
	defer func() {
		if !ok {
			l.mu.Lock()
			l.running = false
			again := l.pending.Length() > 0
			if again {
				l.running = true
			}
			l.mu.Unlock()
			if again {
				l.underlying.Spawn(l.run)
			}
		}
	}()
	work()
	ok = true
}

// Len reports queued, not yet started work.
func (l *LinearisingExecutor) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Length()
}
