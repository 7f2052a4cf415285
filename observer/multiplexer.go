// File: observer/multiplexer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multiplexer fans notifications out to weakly held observers, each on its own executor.

package observer

import (
	"sync"

	"github.com/petermattis/goid"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/core/concurrency"
)

// Recorder counts spawned notifications. *control.Metrics satisfies it.
type Recorder interface {
	Notified()
}

type resetState int

const (
	active resetState = iota
	resetPending
	resetComplete
)

// weakObserver is one registration. inUse is a multiset of goroutine ids
// currently inside the observer's callback.
type weakObserver[O any] struct {
	ref  Ref[O]
	exec api.Executor

	mu    sync.Mutex
	cond  *sync.Cond
	state resetState
	inUse []int64
}

func newWeakObserver[O any](ref Ref[O], exec api.Executor) *weakObserver[O] {
	w := &weakObserver[O]{ref: ref, exec: exec}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// invoke runs fn against the observer unless it expired or was reset after
// the notification was spawned.
func (w *weakObserver[O]) invoke(fn func(O)) {
	w.mu.Lock()
	if w.state != active {
		w.mu.Unlock()
		return
	}
	o, ok := w.ref.Lock()
	if !ok {
		w.mu.Unlock()
		return
	}
	gid := goid.Get()
	w.inUse = append(w.inUse, gid)
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inUse = removeOne(w.inUse, gid)
		if w.state == resetPending && len(w.inUse) == 0 {
			w.state = resetComplete
			w.cond.Broadcast()
		}
		w.mu.Unlock()
	}()
	fn(o)
}

// reset stops future invocations and waits for running ones on other goroutines.
func (w *weakObserver[O]) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	// The calling goroutine may be inside the callback; never wait for ourselves.
	w.inUse = removeAll(w.inUse, goid.Get())
	if len(w.inUse) == 0 {
		w.state = resetComplete
		w.cond.Broadcast()
		return
	}
	w.state = resetPending
	for w.state != resetComplete {
		w.cond.Wait()
	}
}

func (w *weakObserver[O]) alive() bool {
	_, ok := w.ref.Lock()
	return ok
}

func removeOne(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeAll(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Multiplexer is a registry of observers of type O. The zero value is not usable;
// construct with NewMultiplexer.
type Multiplexer[O any] struct {
	mu       sync.Mutex // guards early and normal; never held across an invocation
	early    []*weakObserver[O]
	normal   []*weakObserver[O]
	executor api.Executor
	recorder Recorder
}

// Option customizes a Multiplexer.
type Option func(*options)

type options struct {
	recorder Recorder
}

// WithRecorder counts every spawned notification.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// NewMultiplexer creates a multiplexer whose observers run on defaultExecutor
// unless registered with their own. A nil executor runs observers inline.
func NewMultiplexer[O any](defaultExecutor api.Executor, opts ...Option) *Multiplexer[O] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if defaultExecutor == nil {
		defaultExecutor = concurrency.Immediate
	}
	return &Multiplexer[O]{executor: defaultExecutor, recorder: o.recorder}
}

// RegisterInterest adds an observer notified after all early observers.
// A nil executor selects the multiplexer default.
func (m *Multiplexer[O]) RegisterInterest(ref Ref[O], executor api.Executor) {
	w := newWeakObserver(ref, m.pick(executor))
	m.mu.Lock()
	m.normal = append(m.normal, w)
	m.mu.Unlock()
}

// RegisterEarlyObserver adds an observer notified before the normal ones.
func (m *Multiplexer[O]) RegisterEarlyObserver(ref Ref[O], executor api.Executor) {
	w := newWeakObserver(ref, m.pick(executor))
	m.mu.Lock()
	m.early = append(m.early, w)
	m.mu.Unlock()
}

func (m *Multiplexer[O]) pick(executor api.Executor) api.Executor {
	if executor == nil {
		return m.executor
	}
	return executor
}

// UnregisterInterest removes every registration of o. When it returns no
// callback on o is running on another goroutine and none will start.
// Expired registrations are pruned on the way.
func (m *Multiplexer[O]) UnregisterInterest(o O) {
	var victims []*weakObserver[O]
	m.mu.Lock()
	m.early = sweep(m.early, o, &victims)
	m.normal = sweep(m.normal, o, &victims)
	m.mu.Unlock()

	for _, w := range victims {
		w.reset()
	}
}

// sweep copies list without o's registrations and without expired ones.
// A fresh slice keeps snapshots taken earlier intact.
func sweep[O any](list []*weakObserver[O], o O, victims *[]*weakObserver[O]) []*weakObserver[O] {
	kept := make([]*weakObserver[O], 0, len(list))
	for _, w := range list {
		switch {
		case w.ref.Refers(o):
			*victims = append(*victims, w)
		case w.alive():
			kept = append(kept, w)
		}
	}
	return kept
}

// snapshot copies both lists, early first, and drops expired registrations.
func (m *Multiplexer[O]) snapshot() []*weakObserver[O] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.early = prune(m.early)
	m.normal = prune(m.normal)
	out := make([]*weakObserver[O], 0, len(m.early)+len(m.normal))
	out = append(out, m.early...)
	return append(out, m.normal...)
}

func prune[O any](list []*weakObserver[O]) []*weakObserver[O] {
	for i, w := range list {
		if !w.alive() {
			kept := make([]*weakObserver[O], 0, len(list)-1)
			kept = append(kept, list[:i]...)
			for _, rest := range list[i+1:] {
				if rest.alive() {
					kept = append(kept, rest)
				}
			}
			return kept
		}
	}
	return list
}

// ForEachObserver spawns fn for every registered, live observer on its executor.
func (m *Multiplexer[O]) ForEachObserver(fn func(O)) {
	for _, w := range m.snapshot() {
		m.spawn(w, fn)
	}
}

// ForSingleObserver spawns fn for target only, if it is registered.
func (m *Multiplexer[O]) ForSingleObserver(target O, fn func(O)) {
	for _, w := range m.snapshot() {
		if w.ref.Refers(target) {
			m.spawn(w, fn)
		}
	}
}

func (m *Multiplexer[O]) spawn(w *weakObserver[O], fn func(O)) {
	if m.recorder != nil {
		m.recorder.Notified()
	}
	w.exec.Spawn(func() { w.invoke(fn) })
}

// Len reports the number of registrations, expired ones not yet pruned included.
func (m *Multiplexer[O]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.early) + len(m.normal)
}

// Empty reports whether no live observer is registered.
func (m *Multiplexer[O]) Empty() bool {
	return len(m.snapshot()) == 0
}
