//go:build linux
// +build linux

// File: reactor/events_linux.go
// Author: momentics <momentics@gmail.com>
//
// Conversion between api.FdEvents and the epoll(7) event mask.

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-dispatch/api"
)

// EpollToFdEvents decodes an epoll mask. EPOLLHUP and EPOLLRDHUP both mean RemoteClosed.
func EpollToFdEvents(events uint32) api.FdEvents {
	var fe api.FdEvents
	if events&unix.EPOLLIN != 0 {
		fe |= api.Readable
	}
	if events&unix.EPOLLOUT != 0 {
		fe |= api.Writable
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		fe |= api.RemoteClosed
	}
	if events&unix.EPOLLERR != 0 {
		fe |= api.Error
	}
	return fe
}

// FdEventsToEpoll encodes an event set. RemoteClosed encodes to EPOLLHUP|EPOLLRDHUP.
func FdEventsToEpoll(fe api.FdEvents) uint32 {
	var events uint32
	if fe&api.Readable != 0 {
		events |= unix.EPOLLIN
	}
	if fe&api.Writable != 0 {
		events |= unix.EPOLLOUT
	}
	if fe&api.RemoteClosed != 0 {
		events |= unix.EPOLLHUP | unix.EPOLLRDHUP
	}
	if fe&api.Error != 0 {
		events |= unix.EPOLLERR
	}
	return events
}

// setUserData packs h into the 64-bit epoll_data union, which x/sys exposes as Fd and Pad.
func setUserData(ev *unix.EpollEvent, h handle) {
	ev.Fd = int32(uint32(h))
	ev.Pad = int32(uint32(h >> 32))
}

func userData(ev *unix.EpollEvent) handle {
	return handle(uint32(ev.Fd)) | handle(uint32(ev.Pad))<<32
}
