// File: api/events.go
// Package api defines the readiness event set shared by every dispatchable.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "strings"

// FdEvents is a bit-set of readiness conditions on a file descriptor.
type FdEvents uint32

const (
	Readable FdEvents = 1 << iota
	Writable
	RemoteClosed
	Error
)

// Has reports whether every bit of mask is set.
func (e FdEvents) Has(mask FdEvents) bool {
	return e&mask == mask
}

// String renders the set as "readable|writable".
func (e FdEvents) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  FdEvents
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{RemoteClosed, "remote_closed"},
		{Error, "error"},
	} {
		if e&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
