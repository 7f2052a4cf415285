// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"strings"

	"github.com/momentics/hioload-dispatch/api"
)

// Executor kinds accepted by New.
const (
	KindImmediate = "immediate"
	KindPool      = "pool"
	KindGoPool    = "gopool"
	KindSerial    = "serial"
)

// New builds an executor by kind. A returned *Executor must be closed by the caller.
func New(kind string, workers int, cpus []int) (api.Executor, error) {
	switch strings.ToLower(kind) {
	case KindImmediate, "":
		return Immediate, nil
	case KindPool:
		return NewExecutor(workers, cpus), nil
	case KindGoPool:
		return NewGoPoolExecutor("observers", workers), nil
	case KindSerial:
		return NewLinearisingExecutor(nil), nil
	default:
		return nil, ErrUnknownExecutorKind.WithContext("kind", kind)
	}
}
