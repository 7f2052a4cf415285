// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across a fixed set of worker goroutines. Each worker
// owns a lock-free inbox; idle workers steal from their peers before parking.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/affinity"
	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/logs"
)

var _ api.Executor = (*Executor)(nil)

type TaskFunc func()

const inboxCapacity = 1024

// Executor manages a pool of worker goroutines.
type Executor struct {
	inboxes  []*LockFreeQueue[TaskFunc]
	overflow chan TaskFunc
	wake     chan struct{}
	next     atomic.Uint64
	spilled  atomic.Uint64
	closeCh  chan struct{}
	closed   atomic.Bool
	// submitting counts Submit calls between their closed check and enqueue.
	submitting atomic.Int64
	wg         sync.WaitGroup
	log        *zap.Logger
}

// NewExecutor creates an Executor with numWorkers workers; a non-positive count
// means one per CPU. When cpus is non-empty worker i is pinned to cpus[i%len(cpus)].
func NewExecutor(numWorkers int, cpus []int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		inboxes:  make([]*LockFreeQueue[TaskFunc], numWorkers),
		overflow: make(chan TaskFunc, numWorkers*4),
		wake:     make(chan struct{}, numWorkers),
		closeCh:  make(chan struct{}),
		log:      logs.Named("executor"),
	}
	for i := range e.inboxes {
		e.inboxes[i] = NewLockFreeQueue[TaskFunc](inboxCapacity)
	}
	for i := 0; i < numWorkers; i++ {
		cpu := -1
		if len(cpus) > 0 {
			cpu = cpus[i%len(cpus)]
		}
		e.wg.Add(1)
		go e.work(i, cpu)
	}
	return e
}

// Submit enqueues a task. Returns ErrExecutorClosed once Close has begun; a
// task accepted with a nil error always runs.
func (e *Executor) Submit(task TaskFunc) error {
	e.submitting.Add(1)
	defer e.submitting.Add(-1)
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	idx := e.next.Add(1) % uint64(len(e.inboxes))
	if !e.inboxes[idx].Enqueue(task) {
		// Workers stay up until every in-flight Submit has returned.
		e.spilled.Add(1)
		e.overflow <- task
	}
	select {
	case e.wake <- struct{}{}:
	default:
		// Every worker already has a pending wakeup that will scan all inboxes.
	}
	return nil
}

// Spawn implements api.Executor. Work submitted after Close is dropped.
func (e *Executor) Spawn(work func()) {
	if err := e.Submit(work); err != nil {
		e.log.Warn("dropping work", zap.Error(err))
	}
}

// Close stops accepting work, runs whatever is already queued and waits for the workers.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		for e.submitting.Load() > 0 {
			runtime.Gosched()
		}
		close(e.closeCh)
		e.wg.Wait()
	}
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return len(e.inboxes)
}

// Pending estimates the number of queued tasks.
func (e *Executor) Pending() int {
	n := len(e.overflow)
	for _, q := range e.inboxes {
		n += q.Len()
	}
	return n
}

// Spilled counts tasks that found their inbox full and went to the shared overflow.
func (e *Executor) Spilled() uint64 {
	return e.spilled.Load()
}

func (e *Executor) work(id, cpu int) {
	defer e.wg.Done()
	if cpu >= 0 {
		// Pinned workers keep their thread locked so the mask dies with it.
		runtime.LockOSThread()
		if err := affinity.SetAffinity(cpu); err != nil {
			e.log.Warn("cpu pinning failed", zap.Int("worker", id), zap.Int("cpu", cpu), zap.Error(err))
		}
	}
	for {
		if task, ok := e.steal(id); ok {
			e.safeExecute(task)
			continue
		}
		select {
		case task := <-e.overflow:
			e.safeExecute(task)
		case <-e.wake:
		case <-e.closeCh:
			e.drain(id)
			return
		}
	}
}

// steal scans every inbox starting with the worker's own.
func (e *Executor) steal(id int) (TaskFunc, bool) {
	for i := range e.inboxes {
		if task, ok := e.inboxes[(id+i)%len(e.inboxes)].Dequeue(); ok {
			return task, true
		}
	}
	return nil, false
}

func (e *Executor) drain(id int) {
	for {
		if task, ok := e.steal(id); ok {
			e.safeExecute(task)
			continue
		}
		select {
		case task := <-e.overflow:
			e.safeExecute(task)
		default:
			return
		}
	}
}

func (e *Executor) safeExecute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
