//go:build linux
// +build linux

// File: reactor/thread_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DispatchThread binds one OS thread to driving exactly one Dispatchable.

package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/affinity"
	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/control"
)

var errSelfJoin = api.NewError(api.ErrCodeInternal, "dispatch thread closed from its own dispatch callback")

// DispatchThread waits on a private epoll holding exactly two fds: the read end
// of its shutdown pipe and the dispatchee's fd.
type DispatchThread struct {
	dispatchee api.Dispatchable
	epfd       int
	shutdownR  int
	shutdownW  int

	done   chan struct{}
	loopID atomic.Int64

	closeOnce sync.Once
	closeErr  error

	log          *zap.Logger
	metrics      *control.Metrics
	errorHandler api.ErrorHandler
	cpu          int
}

// NewDispatchThread starts a thread dispatching d until d.Dispatch returns false
// or Close is called.
func NewDispatchThread(d api.Dispatchable, opts ...Option) (*DispatchThread, error) {
	o := defaultOptions("dispatch-thread")
	for _, opt := range opts {
		opt(&o)
	}

	epfd, err := newEpoll()
	if err != nil {
		return nil, err
	}
	r, w, err := newPipe()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	cleanup := func() {
		unix.Close(r)
		unix.Close(w)
		unix.Close(epfd)
	}

	// Closing the write end raises EPOLLHUP/EPOLLRDHUP on the read end.
	shutdown := unix.EpollEvent{Events: unix.EPOLLRDHUP, Fd: int32(r)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, r, &shutdown); err != nil {
		cleanup()
		return nil, sysErr("epoll_ctl(ADD shutdown)", err)
	}
	fd := d.WatchFd()
	target := unix.EpollEvent{Events: FdEventsToEpoll(d.RelevantEvents()), Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &target); err != nil {
		cleanup()
		return nil, sysErr("epoll_ctl(ADD)", err)
	}

	t := &DispatchThread{
		dispatchee:   d,
		epfd:         epfd,
		shutdownR:    r,
		shutdownW:    w,
		done:         make(chan struct{}),
		log:          o.logger.With(zap.String("thread", o.name), zap.Int("fd", fd)),
		metrics:      o.metrics,
		errorHandler: o.errorHandler,
		cpu:          o.cpu,
	}
	go t.run()
	return t, nil
}

// Done is closed once the thread has exited.
func (t *DispatchThread) Done() <-chan struct{} {
	return t.done
}

func (t *DispatchThread) run() {
	// The goroutine never unlocks: when it exits the OS thread is retired with it,
	// so CPU pinning cannot leak into the scheduler's thread pool.
	runtime.LockOSThread()
	t.loopID.Store(goid.Get())
	t.metrics.ThreadStarted()
	defer close(t.done)
	defer t.metrics.ThreadStopped()

	if t.cpu >= 0 {
		if err := affinity.SetAffinity(t.cpu); err != nil {
			t.log.Warn("cpu pinning failed", zap.Int("cpu", t.cpu), zap.Error(err))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			t.log.Error("dispatch panicked", zap.Error(err))
			t.errorHandler(err)
		}
	}()

	t.log.Debug("dispatch thread started")
	if err := t.loop(); err != nil {
		t.log.Error("dispatch loop failed", zap.Error(err))
		t.errorHandler(err)
		return
	}
	t.log.Debug("dispatch thread stopped")
}

func (t *DispatchThread) loop() error {
	var events [2]unix.EpollEvent
	for {
		n, err := unix.EpollWait(t.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return sysErr("epoll_wait", err)
		}
		switch {
		case n == 0:
			continue
		case n > 1:
			// Two ready fds means the shutdown pipe is one of them.
			return nil
		case int(events[0].Fd) == t.shutdownR:
			return nil
		}
		if !t.dispatchee.Dispatch(EpollToFdEvents(events[0].Events)) {
			return nil
		}
	}
}

// Close stops the thread and waits for it to exit. Calling Close from the
// thread's own dispatch callback would join itself; that is reported as a
// fatal error instead of hanging.
func (t *DispatchThread) Close() error {
	if goid.Get() == t.loopID.Load() {
		t.log.Fatal(errSelfJoin.Error())
		return errSelfJoin
	}
	t.closeOnce.Do(func() {
		if err := unix.Close(t.shutdownW); err != nil {
			t.closeErr = sysErr("close(shutdown)", err)
			return
		}
		<-t.done
		unix.Close(t.shutdownR)
		unix.Close(t.epfd)
	})
	return t.closeErr
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.Errorf("panic: %v", r)
}
