//go:build linux
// +build linux

// File: reactor/fd_linux.go
// Author: momentics <momentics@gmail.com>
//
// Thin wrappers over the fd primitives the reactor is built from.

package reactor

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

func sysErr(op string, err error) error {
	return errors.WithStack(api.NewSystemError(op, err))
}

func newEpoll() (int, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return -1, sysErr("epoll_create1", err)
	}
	return epfd, nil
}

func newEventfd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, sysErr("eventfd", err)
	}
	return fd, nil
}

// signalEventfd adds one to the counter. EAGAIN means the counter is saturated,
// which still leaves the fd readable.
func signalEventfd(fd int) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return sysErr("write(eventfd)", err)
		}
	}
}

// consumeEventfd resets the counter and returns its previous value.
func consumeEventfd(fd int) (uint64, error) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		switch err {
		case nil:
			return binary.NativeEndian.Uint64(buf[:]), nil
		case unix.EAGAIN:
			return 0, nil
		case unix.EINTR:
			continue
		default:
			return 0, sysErr("read(eventfd)", err)
		}
	}
}

func newPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, sysErr("pipe2", err)
	}
	return fds[0], fds[1], nil
}
