//go:build linux

package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAffinity_PinsCallingThread(t *testing.T) {
	// Never unlocked: the pinned thread is discarded when the test goroutine ends.
	runtime.LockOSThread()

	before, err := Allowed()
	require.NoError(t, err)
	require.NotEmpty(t, before)

	target := before[len(before)-1]
	require.NoError(t, SetAffinity(target))

	after, err := Allowed()
	require.NoError(t, err)
	require.Equal(t, []int{target}, after)
}

func TestSetAffinity_RejectsNegative(t *testing.T) {
	require.Error(t, SetAffinity(-1))
}
