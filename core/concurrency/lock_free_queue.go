// File: core/concurrency/lock_free_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue feeding the pool executor's per-worker inboxes.

package concurrency

import "sync/atomic"

const cacheLinePad = 64

// paddedCursor keeps producer and consumer positions on separate cache lines.
type paddedCursor struct {
	pos atomic.Uint64
	_   [cacheLinePad - 8]byte
}

type slot[T any] struct {
	turn atomic.Uint64
	item T
}

// LockFreeQueue is a bounded multi-producer multi-consumer queue. Every slot
// carries a turn number: a producer may fill slot i at position p when its turn
// equals p, a consumer may empty it when its turn equals p+1.
type LockFreeQueue[T any] struct {
	enq   paddedCursor
	deq   paddedCursor
	mask  uint64
	slots []slot[T]
}

// NewLockFreeQueue creates a queue holding at least capacity items; the size
// is rounded up to a power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range q.slots {
		q.slots[i].turn.Store(uint64(i))
	}
	return q
}

// Enqueue adds item, reporting false when the queue is full.
func (q *LockFreeQueue[T]) Enqueue(item T) bool {
	for {
		pos := q.enq.pos.Load()
		s := &q.slots[pos&q.mask]
		switch turn := s.turn.Load(); {
		case turn == pos:
			if q.enq.pos.CompareAndSwap(pos, pos+1) {
				s.item = item
				s.turn.Store(pos + 1)
				return true
			}
		case turn < pos:
			return false
		}
	}
}

// Dequeue removes the oldest item, reporting false when the queue is empty.
func (q *LockFreeQueue[T]) Dequeue() (T, bool) {
	var zero T
	for {
		pos := q.deq.pos.Load()
		s := &q.slots[pos&q.mask]
		switch turn := s.turn.Load(); {
		case turn == pos+1:
			if q.deq.pos.CompareAndSwap(pos, pos+1) {
				item := s.item
				s.item = zero
				s.turn.Store(pos + q.mask + 1)
				return item, true
			}
		case turn < pos+1:
			return zero, false
		}
	}
}

// Len is a racy estimate of the number of queued items.
func (q *LockFreeQueue[T]) Len() int {
	deq := q.deq.pos.Load()
	enq := q.enq.pos.Load()
	if enq <= deq {
		return 0
	}
	return int(enq - deq)
}

// Cap returns the fixed capacity.
func (q *LockFreeQueue[T]) Cap() int {
	return len(q.slots)
}
