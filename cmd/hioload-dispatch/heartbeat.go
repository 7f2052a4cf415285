// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultHeartbeat = 5 * time.Second

// HeartbeatObserver hears every timer tick.
type HeartbeatObserver interface {
	Beat(seq uint64, expirations uint64)
}

// beatLogger logs each tick at debug level.
type beatLogger struct {
	log *zap.Logger
}

func (b *beatLogger) Beat(seq, expirations uint64) {
	b.log.Debug("heartbeat", zap.Uint64("seq", seq), zap.Uint64("expirations", expirations))
}

// beatCounter backs the heartbeat probe.
type beatCounter struct {
	beats  atomic.Uint64
	missed atomic.Uint64
	last   atomic.Int64
}

func (b *beatCounter) Beat(_, expirations uint64) {
	b.beats.Add(1)
	if expirations > 1 {
		b.missed.Add(expirations - 1)
	}
	b.last.Store(time.Now().UnixNano())
}

func (b *beatCounter) probe() any {
	return map[string]any{
		"beats":  b.beats.Load(),
		"missed": b.missed.Load(),
		"last":   time.Unix(0, b.last.Load()).Format(time.RFC3339Nano),
	}
}
