//go:build linux
// +build linux

// File: reactor/timer_linux.go
// Author: momentics <momentics@gmail.com>
//
// Periodic timerfd dispatchable.

package reactor

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

// TimerDispatchable fires callback with the number of expirations since the last dispatch.
type TimerDispatchable struct {
	fd       int
	callback func(expirations uint64)
}

var _ api.Dispatchable = (*TimerDispatchable)(nil)

// NewTimerDispatchable arms a monotonic timer firing every interval.
func NewTimerDispatchable(interval time.Duration, callback func(expirations uint64)) (*TimerDispatchable, error) {
	if interval <= 0 {
		return nil, api.ErrInvalidArgument.WithContext("interval", interval)
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, sysErr("timerfd_create", err)
	}
	ts := unix.NsecToTimespec(interval.Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, sysErr("timerfd_settime", err)
	}
	return &TimerDispatchable{fd: fd, callback: callback}, nil
}

func (t *TimerDispatchable) WatchFd() int                 { return t.fd }
func (t *TimerDispatchable) RelevantEvents() api.FdEvents { return api.Readable }

func (t *TimerDispatchable) Dispatch(events api.FdEvents) bool {
	if events&api.Error != 0 {
		return false
	}
	var buf [8]byte
	if _, err := unix.Read(t.fd, buf[:]); err != nil {
		// EAGAIN: another thread consumed the expiration.
		return err == unix.EAGAIN || err == unix.EINTR
	}
	t.callback(binary.NativeEndian.Uint64(buf[:]))
	return true
}

// Close disarms the timer.
func (t *TimerDispatchable) Close() error {
	if err := unix.Close(t.fd); err != nil {
		return sysErr("close(timerfd)", err)
	}
	return nil
}
