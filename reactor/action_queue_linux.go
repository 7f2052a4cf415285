//go:build linux
// +build linux

// File: reactor/action_queue_linux.go
// Author: momentics <momentics@gmail.com>
//
// ActionQueue is a Dispatchable that runs queued closures on whichever thread
// dispatches it, which makes a reactor usable as an api.Executor.

package reactor

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

// ActionQueue signals an eventfd for every batch of enqueued actions.
type ActionQueue struct {
	fd      int
	mu      sync.Mutex
	pending *queue.Queue
	closed  bool
	log     *zap.Logger
}

var (
	_ api.Dispatchable = (*ActionQueue)(nil)
	_ api.Executor     = (*ActionQueue)(nil)
)

// NewActionQueue creates an empty queue.
func NewActionQueue(opts ...Option) (*ActionQueue, error) {
	o := defaultOptions("action-queue")
	for _, opt := range opts {
		opt(&o)
	}
	fd, err := newEventfd()
	if err != nil {
		return nil, err
	}
	return &ActionQueue{fd: fd, pending: queue.New(), log: o.logger}, nil
}

// Enqueue schedules action for the next Dispatch. Actions enqueued after
// Close are dropped.
func (q *ActionQueue) Enqueue(action func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("action enqueued on closed queue dropped")
		return
	}
	q.pending.Add(action)
	err := signalEventfd(q.fd)
	q.mu.Unlock()
	if err != nil {
		q.log.Error("action queue signal failed", zap.Error(err))
	}
}

// Spawn implements api.Executor.
func (q *ActionQueue) Spawn(work func()) {
	q.Enqueue(work)
}

func (q *ActionQueue) WatchFd() int                 { return q.fd }
func (q *ActionQueue) RelevantEvents() api.FdEvents { return api.Readable }

// Dispatch runs every action queued before the call, in enqueue order.
func (q *ActionQueue) Dispatch(events api.FdEvents) bool {
	if events&api.Error != 0 {
		return false
	}
	q.mu.Lock()
	if _, err := consumeEventfd(q.fd); err != nil {
		q.mu.Unlock()
		panic(err)
	}
	batch := make([]func(), 0, q.pending.Length())
	for q.pending.Length() > 0 {
		batch = append(batch, q.pending.Remove().(func()))
	}
	q.mu.Unlock()

	for _, action := range batch {
		action()
	}
	return true
}

// Len reports the number of queued actions.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Length()
}

// Close discards pending actions and closes the eventfd.
func (q *ActionQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.pending = queue.New()
	if err := unix.Close(q.fd); err != nil {
		return sysErr("close(eventfd)", err)
	}
	return nil
}
