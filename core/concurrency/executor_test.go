package concurrency

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dispatch/api"
)

func TestExecutor_RunsEverything(t *testing.T) {
	e := NewExecutor(4, nil)
	defer e.Close()
	assert.Equal(t, 4, e.NumWorkers())

	var wg sync.WaitGroup
	var n atomic.Int64
	for i := 0; i < 5000; i++ {
		wg.Add(1)
		e.Spawn(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 5000, n.Load())
}

func TestExecutor_SurvivesPanics(t *testing.T) {
	e := NewExecutor(1, nil)
	defer e.Close()

	e.Spawn(func() { panic("boom") })
	done := make(chan struct{})
	e.Spawn(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker died after a panicking task")
	}
}

func TestExecutor_CloseDrainsAndRejects(t *testing.T) {
	e := NewExecutor(2, nil)
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, e.Submit(func() { n.Add(1) }))
	}
	e.Close()
	assert.EqualValues(t, 100, n.Load())

	err := e.Submit(func() {})
	assert.True(t, errors.Is(err, ErrExecutorClosed))
	e.Close()
}

func TestExecutor_SubmitRacingCloseNeverLosesWork(t *testing.T) {
	for round := 0; round < 50; round++ {
		e := NewExecutor(2, nil)
		var accepted, ran atomic.Int64
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if err := e.Submit(func() { ran.Add(1) }); err != nil {
						assert.True(t, errors.Is(err, ErrExecutorClosed))
						return
					}
					accepted.Add(1)
				}
			}()
		}
		time.Sleep(time.Millisecond)
		e.Close()
		wg.Wait()
		require.Equal(t, accepted.Load(), ran.Load(), "round %d", round)
	}
}

func TestExecutor_SpillsToOverflow(t *testing.T) {
	e := NewExecutor(1, nil)
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, e.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	var n atomic.Int64
	for i := 0; i < inboxCapacity+1; i++ {
		require.NoError(t, e.Submit(func() { n.Add(1) }))
	}
	assert.EqualValues(t, 1, e.Spilled())
	assert.Equal(t, inboxCapacity+1, e.Pending())

	close(block)
	e.Close()
	assert.EqualValues(t, inboxCapacity+1, n.Load())
	assert.Zero(t, e.Pending())
}

func TestImmediate_RunsInline(t *testing.T) {
	ran := false
	Immediate.Spawn(func() { ran = true })
	assert.True(t, ran)
}

func TestLinearisingExecutor_Ordered(t *testing.T) {
	l := NewLinearisingExecutor(nil)

	var mu sync.Mutex
	var got []int
	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		l.Spawn(func() {
			defer wg.Done()
			assert.EqualValues(t, 1, inside.Add(1), "work overlapped")
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			inside.Add(-1)
		})
	}
	wg.Wait()
	require.Len(t, got, 200)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Zero(t, l.Len())
}

func TestLinearisingExecutor_ContinuesAfterPanic(t *testing.T) {
	// Panics surface on the underlying executor; recover them there.
	under := api.ExecutorFunc(func(work func()) {
		go func() {
			defer func() { _ = recover() }()
			work()
		}()
	})
	l := NewLinearisingExecutor(under)
	done := make(chan struct{})
	l.Spawn(func() { panic("boom") })
	l.Spawn(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued work never ran")
	}
}

func TestGoPoolExecutor(t *testing.T) {
	g := NewGoPoolExecutor("test", 2)
	var wg sync.WaitGroup
	var n atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		g.Spawn(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 50, n.Load())
}

func TestNew(t *testing.T) {
	for _, kind := range []string{KindImmediate, KindPool, KindGoPool, KindSerial} {
		ex, err := New(kind, 2, nil)
		require.NoError(t, err, kind)
		require.NotNil(t, ex)
		if p, ok := ex.(*Executor); ok {
			p.Close()
		}
	}
	_, err := New("fibers", 1, nil)
	assert.True(t, errors.Is(err, ErrUnknownExecutorKind))
}
