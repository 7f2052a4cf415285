// File: observer/ref.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package observer

import "weak"

// Ref is a handle to an observer that may have expired.
type Ref[O any] interface {
	// Lock returns the observer if it is still alive.
	Lock() (O, bool)
	// Refers reports whether the handle points at o.
	Refers(o O) bool
}

type weakRef[O any, T any] struct {
	wp weak.Pointer[T]
}

// Weak references p without keeping it alive. *T must implement O.
func Weak[O any, T any](p *T) Ref[O] {
	if _, ok := any(p).(O); !ok {
		panic("observer: weak target does not implement the observer interface")
	}
	return weakRef[O, T]{wp: weak.Make(p)}
}

func (r weakRef[O, T]) Lock() (O, bool) {
	p := r.wp.Value()
	if p == nil {
		var zero O
		return zero, false
	}
	return any(p).(O), true
}

func (r weakRef[O, T]) Refers(o O) bool {
	p := r.wp.Value()
	return p != nil && same(any(p), any(o))
}

type strongRef[O any] struct {
	o O
}

// Strong keeps o alive for as long as it stays registered.
// Use it for observers with no other owner, such as chained multiplexers.
func Strong[O any](o O) Ref[O] {
	return strongRef[O]{o: o}
}

func (r strongRef[O]) Lock() (O, bool) {
	return r.o, true
}

func (r strongRef[O]) Refers(o O) bool {
	return same(any(r.o), any(o))
}

// same compares two observers by identity without panicking on
// non-comparable dynamic types, which simply never match.
func same(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
