//go:build linux
// +build linux

package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/fake"
)

func TestThreadedDispatcher_Resize(t *testing.T) {
	m := newReactor(t)
	td, err := NewThreadedDispatcher("pool", m, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, td.Len())

	require.NoError(t, td.AddThread())
	assert.Equal(t, 3, td.Len())
	require.NoError(t, td.RemoveThread())
	require.NoError(t, td.RemoveThread())
	require.NoError(t, td.RemoveThread())
	assert.Zero(t, td.Len())
	assert.True(t, errors.Is(td.RemoveThread(), api.ErrInvalidArgument))

	require.NoError(t, td.Resize(4))
	assert.Equal(t, 4, td.Len())
	require.NoError(t, td.Resize(1))
	assert.Equal(t, 1, td.Len())
	assert.True(t, errors.Is(td.Resize(-1), api.ErrInvalidArgument))

	require.NoError(t, td.Close())
	assert.True(t, errors.Is(td.AddThread(), api.ErrClosed))
}

func TestThreadedDispatcher_PinsRoundRobin(t *testing.T) {
	m := newReactor(t)
	td, err := NewThreadedDispatcher("pinned", m, 2, WithCPUs([]int{0}))
	require.NoError(t, err)
	assert.Equal(t, 2, td.Len())
	require.NoError(t, td.Close())
}

func TestThreadedDispatcher_ParallelWatch(t *testing.T) {
	m := newReactor(t)
	d := newFake(t)
	release := make(chan struct{})
	d.Hook = func(d *fake.Dispatchable, _ api.FdEvents) bool {
		<-release
		return true
	}
	require.NoError(t, m.AddWatch(d, WithReentrancy(api.Parallel)))
	td, err := NewThreadedDispatcher("parallel", m, 2)
	require.NoError(t, err)

	// The pipe stays readable, so a second thread picks the fd up while the first blocks.
	require.NoError(t, d.Trigger())
	assert.Eventually(t, func() bool { return d.MaxInFlight() >= 2 }, 5*time.Second, time.Millisecond)
	close(release)
	require.NoError(t, m.RemoveWatch(d))
	require.NoError(t, td.Close())
}
