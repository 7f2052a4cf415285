package logs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	require.NoError(t, SetLevel("debug"))
	require.True(t, Logger.Core().Enabled(-1))

	require.NoError(t, SetLevel("warn"))
	require.False(t, Logger.Core().Enabled(0))

	require.Error(t, SetLevel("loud"))
}

func TestNamed(t *testing.T) {
	require.NotNil(t, Named("reactor"))
}
