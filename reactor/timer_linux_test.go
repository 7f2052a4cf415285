//go:build linux
// +build linux

package reactor

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-dispatch/api"
)

func TestTimerDispatchable_Fires(t *testing.T) {
	var fired atomic.Uint64
	timer, err := NewTimerDispatchable(2*time.Millisecond, func(n uint64) { fired.Add(n) })
	require.NoError(t, err)
	m := newReactor(t)
	require.NoError(t, m.AddWatch(timer, Owned()))
	th, err := NewDispatchThread(m)
	require.NoError(t, err)
	defer th.Close()

	assert.Eventually(t, func() bool { return fired.Load() >= 3 }, 5*time.Second, time.Millisecond)
}

func TestTimerDispatchable_InvalidInterval(t *testing.T) {
	_, err := NewTimerDispatchable(0, func(uint64) {})
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}
