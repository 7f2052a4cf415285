// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-dispatch components.

package benchmarks

import (
	"runtime"
	"sync"
	"testing"

	"github.com/momentics/hioload-dispatch/core/concurrency"
	"github.com/momentics/hioload-dispatch/observer"
)

type sink struct{ n int }

func (s *sink) Notify() { s.n++ }

type notifier interface{ Notify() }

// BenchmarkObserverFanout measures ForEachObserver over 16 inline observers.
func BenchmarkObserverFanout(b *testing.B) {
	m := observer.NewMultiplexer[notifier](concurrency.Immediate)
	sinks := make([]*sink, 16)
	for i := range sinks {
		sinks[i] = &sink{}
		m.RegisterInterest(observer.Weak[notifier](sinks[i]), nil)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ForEachObserver(func(o notifier) { o.Notify() })
	}
	b.StopTimer()
	runtime.KeepAlive(sinks)
}

// BenchmarkRegisterUnregister measures observer churn.
func BenchmarkRegisterUnregister(b *testing.B) {
	m := observer.NewMultiplexer[notifier](concurrency.Immediate)
	s := &sink{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RegisterInterest(observer.Weak[notifier](s), nil)
		m.UnregisterInterest(s)
	}
}

// BenchmarkPoolExecutor measures Spawn throughput on the worker pool.
func BenchmarkPoolExecutor(b *testing.B) {
	e := concurrency.NewExecutor(4, nil)
	defer e.Close()

	var wg sync.WaitGroup
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			wg.Add(1)
			e.Spawn(wg.Done)
		}
	})
	wg.Wait()
}

// BenchmarkLockFreeQueue measures MPMC enqueue/dequeue pairs.
func BenchmarkLockFreeQueue(b *testing.B) {
	q := concurrency.NewLockFreeQueue[int](1024)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if !q.Enqueue(i) {
				q.Dequeue()
				q.Enqueue(i)
			}
			i++
		}
	})
}
