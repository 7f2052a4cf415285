//go:build linux
// +build linux

// File: reactor/retire.go
// Author: momentics <momentics@gmail.com>
//
// Retire queue for watches removed while dispatches were in flight.

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// retired pairs a victim with the generation that was current when it was removed.
type retired struct {
	gen    *atomic.Int64
	victim *watch
}

// retireQueue is FIFO. An entry may only be released once its own generation
// and every older one have drained, because a dispatcher counted in an older
// generation can still hold a reference to a younger victim.
type retireQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newRetireQueue() *retireQueue {
	return &retireQueue{q: queue.New()}
}

func (r *retireQueue) push(gen *atomic.Int64, victim *watch) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Add(retired{gen: gen, victim: victim})
	return r.q.Length()
}

// drain pops every releasable entry from the front and returns the victims
// together with the number of entries left behind.
func (r *retireQueue) drain() ([]*watch, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ready []*watch
	for r.q.Length() > 0 {
		item := r.q.Peek().(retired)
		if item.gen.Load() != 0 {
			break
		}
		r.q.Remove()
		ready = append(ready, item.victim)
	}
	return ready, r.q.Length()
}

// drainAll empties the queue regardless of generation; used at teardown.
func (r *retireQueue) drainAll() []*watch {
	r.mu.Lock()
	defer r.mu.Unlock()
	victims := make([]*watch, 0, r.q.Length())
	for r.q.Length() > 0 {
		victims = append(victims, r.q.Remove().(retired).victim)
	}
	return victims
}

func (r *retireQueue) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}
