// File: observer/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package observer implements a thread-safe fan-out registry for state-change
// notifications.
//
// A Multiplexer holds observers weakly, binds each to an api.Executor, and
// delivers every notification through that executor. UnregisterInterest blocks
// until no invocation of the removed observer is running, except the caller's
// own, so an observer may unregister itself from inside its callback.
//
// A type embedding *Multiplexer[O] and implementing O by forwarding to
// ForEachObserver is itself an observer, so multiplexers chain:
//
//	type displayFanOut struct{ *observer.Multiplexer[DisplayObserver] }
//
//	func (f displayFanOut) ConfigurationChanged(c Config) {
//		f.ForEachObserver(func(o DisplayObserver) { o.ConfigurationChanged(c) })
//	}
package observer
