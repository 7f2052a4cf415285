package observer

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/core/concurrency"
	"github.com/momentics/hioload-dispatch/fake"
)

type Listener interface {
	Notify(v int)
}

type counter struct {
	hits  atomic.Int64
	last  atomic.Int64
	onHit func(c *counter)
	_     []byte // keeps the object out of the tiny allocator
}

func (c *counter) Notify(v int) {
	c.hits.Add(1)
	c.last.Store(int64(v))
	if c.onHit != nil {
		c.onHit(c)
	}
}

// fanout chains a multiplexer into another one.
type fanout struct {
	*Multiplexer[Listener]
}

func (f *fanout) Notify(v int) {
	f.ForEachObserver(func(l Listener) { l.Notify(v) })
}

var goExecutor = api.ExecutorFunc(func(work func()) { go work() })

//go:noinline
func registerTransient(m *Multiplexer[Listener]) {
	m.RegisterInterest(Weak[Listener](&counter{}), nil)
}

func TestForEachObserver_NotifiesLiveAndPrunesExpired(t *testing.T) {
	m := NewMultiplexer[Listener](concurrency.Immediate)
	live := make([]*counter, 9)
	for i := range live {
		live[i] = &counter{}
		m.RegisterInterest(Weak[Listener](live[i]), nil)
	}
	registerTransient(m)
	require.Equal(t, 10, m.Len())

	assert.Eventually(t, func() bool {
		runtime.GC()
		m.ForEachObserver(func(Listener) {})
		return m.Len() == 9
	}, 5*time.Second, 10*time.Millisecond)

	m.ForEachObserver(func(l Listener) { l.Notify(7) })
	for _, c := range live {
		assert.EqualValues(t, 1, c.hits.Load())
		assert.EqualValues(t, 7, c.last.Load())
	}
	runtime.KeepAlive(live)
}

func TestUnregisterInterest_WaitsForInFlight(t *testing.T) {
	m := NewMultiplexer[Listener](goExecutor)
	entered := make(chan struct{})
	release := make(chan struct{})
	c := &counter{onHit: func(*counter) {
		close(entered)
		<-release
	}}
	m.RegisterInterest(Weak[Listener](c), nil)

	m.ForEachObserver(func(l Listener) { l.Notify(1) })
	<-entered

	done := make(chan struct{})
	go func() {
		m.UnregisterInterest(c)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("unregister returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("unregister never returned")
	}

	c.onHit = nil
	m.ForEachObserver(func(l Listener) { l.Notify(2) })
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, c.hits.Load())
	assert.True(t, m.Empty())
}

func TestUnregisterInterest_FromOwnCallback(t *testing.T) {
	m := NewMultiplexer[Listener](concurrency.Immediate)
	c := &counter{}
	c.onHit = func(self *counter) { m.UnregisterInterest(self) }
	m.RegisterInterest(Weak[Listener](c), nil)

	m.ForEachObserver(func(l Listener) { l.Notify(1) })
	m.ForEachObserver(func(l Listener) { l.Notify(2) })
	assert.EqualValues(t, 1, c.hits.Load())
	assert.Zero(t, m.Len())
}

func TestUnregisterInterest_DropsQueuedNotifications(t *testing.T) {
	ex := &fake.Executor{}
	m := NewMultiplexer[Listener](ex)
	c := &counter{}
	m.RegisterInterest(Weak[Listener](c), nil)

	m.ForEachObserver(func(l Listener) { l.Notify(1) })
	m.UnregisterInterest(c)
	ex.RunPending()
	assert.Zero(t, c.hits.Load())
}

func TestEarlyObserversFirst(t *testing.T) {
	m := NewMultiplexer[Listener](concurrency.Immediate)
	var order []string
	record := func(name string) *counter {
		return &counter{onHit: func(*counter) { order = append(order, name) }}
	}
	normal := record("normal")
	early := record("early")
	m.RegisterInterest(Weak[Listener](normal), nil)
	m.RegisterEarlyObserver(Weak[Listener](early), nil)

	m.ForEachObserver(func(l Listener) { l.Notify(0) })
	assert.Equal(t, []string{"early", "normal"}, order)
	runtime.KeepAlive(normal)
	runtime.KeepAlive(early)
}

func TestForSingleObserver(t *testing.T) {
	m := NewMultiplexer[Listener](concurrency.Immediate)
	a, b := &counter{}, &counter{}
	m.RegisterInterest(Weak[Listener](a), nil)
	m.RegisterInterest(Weak[Listener](b), nil)

	m.ForSingleObserver(b, func(l Listener) { l.Notify(3) })
	assert.Zero(t, a.hits.Load())
	assert.EqualValues(t, 1, b.hits.Load())

	m.UnregisterInterest(b)
	m.ForSingleObserver(b, func(l Listener) { l.Notify(4) })
	assert.EqualValues(t, 1, b.hits.Load())
}

func TestPerObserverExecutor(t *testing.T) {
	m := NewMultiplexer[Listener](concurrency.Immediate)
	own := &fake.Executor{}
	inline, queued := &counter{}, &counter{}
	m.RegisterInterest(Weak[Listener](inline), nil)
	m.RegisterInterest(Weak[Listener](queued), own)

	m.ForEachObserver(func(l Listener) { l.Notify(1) })
	assert.EqualValues(t, 1, inline.hits.Load())
	assert.Zero(t, queued.hits.Load())
	own.RunPending()
	assert.EqualValues(t, 1, queued.hits.Load())
}

func TestChainedMultiplexers(t *testing.T) {
	inner := &fanout{NewMultiplexer[Listener](concurrency.Immediate)}
	outer := NewMultiplexer[Listener](concurrency.Immediate)
	leaf := &counter{}
	inner.RegisterInterest(Weak[Listener](leaf), nil)
	outer.RegisterInterest(Weak[Listener](inner), nil)

	outer.ForEachObserver(func(l Listener) { l.Notify(9) })
	assert.EqualValues(t, 1, leaf.hits.Load())
	assert.EqualValues(t, 9, leaf.last.Load())
	runtime.KeepAlive(inner)
}

func TestStrongRefsAndRecorder(t *testing.T) {
	rec := &countingRecorder{}
	m := NewMultiplexer[Listener](nil, WithRecorder(rec))
	c := &counter{}
	m.RegisterInterest(Strong[Listener](c), nil)
	m.ForEachObserver(func(l Listener) { l.Notify(1) })
	m.ForEachObserver(func(l Listener) { l.Notify(2) })
	assert.EqualValues(t, 2, c.hits.Load())
	assert.EqualValues(t, 2, rec.n.Load())

	m.UnregisterInterest(c)
	assert.True(t, m.Empty())
}

type countingRecorder struct{ n atomic.Int64 }

func (r *countingRecorder) Notified() { r.n.Add(1) }

type sliceListener []int

func (sliceListener) Notify(int) {}

func TestRefersNonComparable(t *testing.T) {
	ref := Strong[Listener](sliceListener{1})
	assert.NotPanics(t, func() {
		assert.False(t, ref.Refers(sliceListener{1}))
	})
}

func TestConcurrentChurn(t *testing.T) {
	m := NewMultiplexer[Listener](goExecutor)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				m.ForEachObserver(func(l Listener) { l.Notify(1) })
			}
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c := &counter{}
				m.RegisterInterest(Weak[Listener](c), nil)
				m.UnregisterInterest(c)
				after := c.hits.Load()
				time.Sleep(time.Microsecond)
				assert.Equal(t, after, c.hits.Load(), "callback ran after unregister")
			}
		}()
	}
	wg.Wait()
	close(stop)
	assert.True(t, m.Empty())
}
