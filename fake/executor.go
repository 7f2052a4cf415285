// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import "sync"

// Executor queues spawned work until RunPending is called.
type Executor struct {
	mu   sync.Mutex
	work []func()
}

func (e *Executor) Spawn(work func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.work = append(e.work, work)
}

// RunPending runs queued work in Spawn order, including work spawned meanwhile.
func (e *Executor) RunPending() int {
	n := 0
	for {
		e.mu.Lock()
		work := e.work
		e.work = nil
		e.mu.Unlock()
		if len(work) == 0 {
			return n
		}
		for _, w := range work {
			w()
			n++
		}
	}
}

// Pending reports queued work.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.work)
}
