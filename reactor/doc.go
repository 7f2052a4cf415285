// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the epoll-backed dispatch substrate: a multiplexing
// dispatchable that composes recursively, dedicated dispatch threads that drive
// one dispatchable each, and small reactor-backed helpers (action queues, timers).
//
// The implementation is Linux only.
package reactor
