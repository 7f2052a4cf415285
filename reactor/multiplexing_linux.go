//go:build linux
// +build linux

// File: reactor/multiplexing_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MultiplexingDispatchable multiplexes readiness of many child dispatchables
// onto one epoll instance and is itself a Dispatchable, so reactors nest.
//
// Removal never releases a child while a Dispatch call may still reference it.
// Every Dispatch counts itself into the current generation. A removal that
// finds the generation idle releases at once; otherwise it swaps in a fresh
// generation and parks the victim on the retire queue, which an internal
// eventfd watch drains once the retiring generations reach zero.

package reactor

import (
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/control"
)

type watch struct {
	dispatchee api.Dispatchable
	fd         int
	handle     handle
	sequential bool
	owned      bool
}

// Stats is a point-in-time view of a reactor.
type Stats struct {
	Watches  int   `json:"watches"`
	Retiring int   `json:"retiring"`
	InFlight int64 `json:"in_flight"`
}

// MultiplexingDispatchable is an epoll-backed reactor over child dispatchables.
type MultiplexingDispatchable struct {
	epfd   int
	wakeFd int

	mu      sync.Mutex // guards watches, byFd, closed; held only for O(1) edits
	watches slotMap[*watch]
	byFd    map[int]handle
	closed  bool

	generation atomic.Pointer[atomic.Int64]
	retire     *retireQueue

	log     *zap.Logger
	metrics *control.Metrics
}

var _ api.Dispatchable = (*MultiplexingDispatchable)(nil)

// NewMultiplexingDispatchable creates an empty reactor.
func NewMultiplexingDispatchable(opts ...Option) (*MultiplexingDispatchable, error) {
	o := defaultOptions("reactor")
	for _, opt := range opts {
		opt(&o)
	}

	epfd, err := newEpoll()
	if err != nil {
		return nil, err
	}
	wakeFd, err := newEventfd()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	m := &MultiplexingDispatchable{
		epfd:    epfd,
		wakeFd:  wakeFd,
		byFd:    make(map[int]handle),
		retire:  newRetireQueue(),
		log:     o.logger.With(zap.String("reactor", o.name)),
		metrics: o.metrics,
	}
	m.generation.Store(new(atomic.Int64))

	// The retire watch is internal: it is not in byFd and cannot be removed by callers.
	if err := m.register(&retireWatch{m: m}, watchConfig{reentrancy: api.Sequential}); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return m, nil
}

// WatchFd returns the epoll fd, readable whenever some child is ready.
func (m *MultiplexingDispatchable) WatchFd() int {
	return m.epfd
}

// RelevantEvents is always Readable.
func (m *MultiplexingDispatchable) RelevantEvents() api.FdEvents {
	return api.Readable
}

// AddWatch registers d. The default reentrancy is Sequential.
// A second watch on the same fd fails with api.ErrDuplicateWatch and leaves
// the reactor unchanged.
func (m *MultiplexingDispatchable) AddWatch(d api.Dispatchable, opts ...WatchOption) error {
	cfg := watchConfig{reentrancy: api.Sequential}
	for _, opt := range opts {
		opt(&cfg)
	}
	return m.register(d, cfg)
}

// AddWatchFd watches fd for readability and calls callback on each readiness.
// The watch drops itself when the fd reports an error.
func (m *MultiplexingDispatchable) AddWatchFd(fd int, callback func()) error {
	return m.AddWatch(&fdCallback{fd: fd, callback: callback})
}

func (m *MultiplexingDispatchable) register(d api.Dispatchable, cfg watchConfig) error {
	w := &watch{
		dispatchee: d,
		fd:         d.WatchFd(),
		sequential: cfg.reentrancy == api.Sequential,
		owned:      cfg.owned,
	}
	_, internal := d.(*retireWatch)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrClosed
	}

	w.handle = m.watches.insert(w)
	ev := unix.EpollEvent{Events: m.interest(w)}
	setUserData(&ev, w.handle)
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, w.fd, &ev); err != nil {
		m.watches.remove(w.handle)
		if err == unix.EEXIST {
			return api.ErrDuplicateWatch.WithContext("fd", w.fd)
		}
		return sysErr("epoll_ctl(ADD)", err)
	}
	if !internal {
		m.byFd[w.fd] = w.handle
		m.metrics.WatchAdded()
	}
	m.log.Debug("watch added",
		zap.Int("fd", w.fd),
		zap.Stringer("reentrancy", cfg.reentrancy),
		zap.Bool("owned", w.owned))
	return nil
}

func (m *MultiplexingDispatchable) interest(w *watch) uint32 {
	events := FdEventsToEpoll(w.dispatchee.RelevantEvents())
	if w.sequential {
		events |= unix.EPOLLONESHOT
	}
	return events
}

// RemoveWatch stops watching d. Safe from any goroutine, including from
// within d's own Dispatch.
func (m *MultiplexingDispatchable) RemoveWatch(d api.Dispatchable) error {
	return m.remove(d.WatchFd(), d)
}

// RemoveWatchFd stops watching whatever is registered on fd.
func (m *MultiplexingDispatchable) RemoveWatchFd(fd int) error {
	return m.remove(fd, nil)
}

func (m *MultiplexingDispatchable) remove(fd int, match api.Dispatchable) error {
	m.mu.Lock()
	h, ok := m.byFd[fd]
	var w *watch
	if ok {
		w, ok = m.watches.get(h)
	}
	if !ok || (match != nil && !sameDispatchable(w.dispatchee, match)) {
		m.mu.Unlock()
		return api.ErrNotWatched.WithContext("fd", fd)
	}
	release, err := m.detachLocked(w)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if release != nil {
		m.release("immediate", release)
	}
	return nil
}

// sameDispatchable reports whether a and b are the same child. Values of a
// non-comparable type registered on the same fd count as the same child.
func sameDispatchable(a, b api.Dispatchable) (same bool) {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return true
	}
	// Comparable structs may still hold non-comparable values in interface fields.
	defer func() {
		if recover() != nil {
			same = true
		}
	}()
	return a == b
}

// detachLocked unregisters w and returns it if it can be released right away.
func (m *MultiplexingDispatchable) detachLocked(w *watch) (*watch, error) {
	// After EPOLL_CTL_DEL returns the kernel reports nothing more for this fd.
	// EBADF/ENOENT mean the fd was closed first, which also dropped the registration.
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, w.fd, nil); err != nil &&
		err != unix.ENOENT && err != unix.EBADF {
		return nil, sysErr("epoll_ctl(DEL)", err)
	}
	delete(m.byFd, w.fd)
	m.watches.remove(w.handle)
	m.metrics.WatchRemoved()

	if m.generation.Load().Load() == 0 && m.retire.len() == 0 {
		return w, nil
	}

	old := m.generation.Swap(new(atomic.Int64))
	depth := m.retire.push(old, w)
	m.metrics.SetRetiring(depth)
	m.log.Debug("watch retired", zap.Int("fd", w.fd), zap.Int("retiring", depth))
	if err := signalEventfd(m.wakeFd); err != nil {
		m.log.Error("retire signal failed", zap.Error(err))
	}
	return nil, nil
}

// release closes owned victims. Never called with mu held.
func (m *MultiplexingDispatchable) release(path string, victims ...*watch) {
	for _, w := range victims {
		if !w.owned {
			continue
		}
		if c, ok := w.dispatchee.(io.Closer); ok {
			if err := c.Close(); err != nil {
				m.log.Warn("closing released dispatchable", zap.Int("fd", w.fd), zap.Error(err))
			}
		}
	}
	m.metrics.Reclaimed(path, len(victims))
}

// enter counts the caller into the current generation. The re-check closes
// the window where a removal swaps generations between our load and increment.
func (m *MultiplexingDispatchable) enter() *atomic.Int64 {
	for {
		gen := m.generation.Load()
		gen.Add(1)
		if m.generation.Load() == gen {
			return gen
		}
		m.exit(gen)
	}
}

// exit wakes the retire watch when the last dispatcher of a retired generation leaves.
func (m *MultiplexingDispatchable) exit(gen *atomic.Int64) {
	if gen.Add(-1) == 0 && m.generation.Load() != gen {
		if err := signalEventfd(m.wakeFd); err != nil {
			m.log.Error("retire signal failed", zap.Error(err))
		}
	}
}

// Dispatch processes at most one ready child so that an outer loop stays fair.
// It never blocks. An epoll_wait failure panics with *api.SystemError.
func (m *MultiplexingDispatchable) Dispatch(events api.FdEvents) bool {
	if events&api.Error != 0 {
		return false
	}

	gen := m.enter()
	defer m.exit(gen)

	var ready [1]unix.EpollEvent
	n, err := unix.EpollWait(m.epfd, ready[:], 0)
	if err != nil {
		if err == unix.EINTR {
			return true
		}
		panic(sysErr("epoll_wait", err))
	}
	if n == 0 {
		return true
	}

	h := userData(&ready[0])
	m.mu.Lock()
	w, ok := m.watches.get(h)
	m.mu.Unlock()
	if !ok {
		// Removed between epoll_wait and lookup.
		return true
	}

	m.metrics.Dispatched()
	if w.dispatchee.Dispatch(EpollToFdEvents(ready[0].Events)) {
		if w.sequential {
			m.rearm(w)
		}
		return true
	}

	m.dropSelf(w)
	return true
}

// rearm restores one-shot interest, but only if w is still the live registration;
// the fd number may have been reused by a new watch in the meantime.
func (m *MultiplexingDispatchable) rearm(w *watch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.watches.get(w.handle); !ok || cur != w {
		return
	}
	ev := unix.EpollEvent{Events: m.interest(w)}
	setUserData(&ev, w.handle)
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, w.fd, &ev); err != nil &&
		err != unix.ENOENT && err != unix.EBADF {
		panic(sysErr("epoll_ctl(MOD)", err))
	}
}

// dropSelf removes a child that asked to stop being watched.
func (m *MultiplexingDispatchable) dropSelf(w *watch) {
	if _, internal := w.dispatchee.(*retireWatch); internal {
		return
	}
	m.mu.Lock()
	if cur, ok := m.watches.get(w.handle); !ok || cur != w {
		m.mu.Unlock()
		return
	}
	release, err := m.detachLocked(w)
	m.mu.Unlock()
	if err != nil {
		panic(err)
	}
	if release != nil {
		m.release("immediate", release)
	}
}

func (m *MultiplexingDispatchable) reclaim() {
	if _, err := consumeEventfd(m.wakeFd); err != nil {
		m.log.Error("retire wakeup read failed", zap.Error(err))
	}
	victims, left := m.retire.drain()
	m.metrics.SetRetiring(left)
	if len(victims) > 0 {
		m.log.Debug("retired watches reclaimed", zap.Int("count", len(victims)), zap.Int("retiring", left))
		m.release("deferred", victims...)
	}
}

// Stats reports the live watch count, retire queue depth and in-flight dispatches.
func (m *MultiplexingDispatchable) Stats() Stats {
	m.mu.Lock()
	watches := len(m.byFd)
	m.mu.Unlock()
	return Stats{
		Watches:  watches,
		Retiring: m.retire.len(),
		InFlight: m.generation.Load().Load(),
	}
}

// Close tears the reactor down and releases every owned child, retired ones included.
// It must not race with Dispatch.
func (m *MultiplexingDispatchable) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var victims []*watch
	m.watches.each(func(_ handle, w *watch) {
		if _, internal := w.dispatchee.(*retireWatch); !internal {
			victims = append(victims, w)
		}
	})
	m.watches = slotMap[*watch]{}
	m.byFd = make(map[int]handle)
	m.mu.Unlock()

	retired := m.retire.drainAll()
	m.metrics.SetRetiring(0)
	for range victims {
		m.metrics.WatchRemoved()
	}
	m.release("immediate", victims...)
	m.release("deferred", retired...)

	err := unix.Close(m.wakeFd)
	if cerr := unix.Close(m.epfd); err == nil {
		err = cerr
	}
	if err != nil {
		return sysErr("close", err)
	}
	return nil
}

// retireWatch drains the retire queue whenever the wake eventfd fires.
type retireWatch struct {
	m *MultiplexingDispatchable
}

func (r *retireWatch) WatchFd() int                 { return r.m.wakeFd }
func (r *retireWatch) RelevantEvents() api.FdEvents { return api.Readable }

func (r *retireWatch) Dispatch(api.FdEvents) bool {
	r.m.reclaim()
	return true
}

// fdCallback adapts a plain fd and callback to Dispatchable.
type fdCallback struct {
	fd       int
	callback func()
}

func (f *fdCallback) WatchFd() int                 { return f.fd }
func (f *fdCallback) RelevantEvents() api.FdEvents { return api.Readable }

func (f *fdCallback) Dispatch(events api.FdEvents) bool {
	if events&api.Error != 0 {
		return false
	}
	f.callback()
	return true
}
