//go:build linux
// +build linux

package benchmarks

import (
	"testing"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/fake"
	"github.com/momentics/hioload-dispatch/reactor"
)

// BenchmarkReactorDispatch measures one trigger plus one reactor dispatch.
func BenchmarkReactorDispatch(b *testing.B) {
	m, err := reactor.NewMultiplexingDispatchable()
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()
	d, err := fake.NewDispatchable(api.Readable)
	if err != nil {
		b.Fatal(err)
	}
	if err := m.AddWatch(d, reactor.Owned()); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := d.Trigger(); err != nil {
			b.Fatal(err)
		}
		m.Dispatch(api.Readable)
	}
}

// BenchmarkAddRemoveWatch measures registration churn on an idle reactor.
func BenchmarkAddRemoveWatch(b *testing.B) {
	m, err := reactor.NewMultiplexingDispatchable()
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()
	d, err := fake.NewDispatchable(api.Readable)
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := m.AddWatch(d); err != nil {
			b.Fatal(err)
		}
		if err := m.RemoveWatch(d); err != nil {
			b.Fatal(err)
		}
	}
}
