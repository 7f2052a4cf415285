// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"

	"github.com/bytedance/gopkg/util/gopool"
	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/logs"
)

// GoPoolExecutor spawns work on a bounded gopool with panic logging.
type GoPoolExecutor struct {
	pool gopool.Pool
}

// NewGoPoolExecutor creates a pool named name running at most capacity goroutines.
func NewGoPoolExecutor(name string, capacity int) *GoPoolExecutor {
	if capacity <= 0 {
		capacity = 1
	}
	p := gopool.NewPool(name, int32(capacity), gopool.NewConfig())
	log := logs.Named("gopool").With(zap.String("pool", name))
	p.SetPanicHandler(func(_ context.Context, r interface{}) {
		log.Error("task panicked", zap.Any("panic", r))
	})
	return &GoPoolExecutor{pool: p}
}

func (g *GoPoolExecutor) Spawn(work func()) {
	g.pool.Go(work)
}

// Workers reports the goroutines currently running pool work.
func (g *GoPoolExecutor) Workers() int {
	return int(g.pool.WorkerCount())
}
