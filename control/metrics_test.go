package control

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics("test")
	m.Dispatched()
	m.Dispatched()
	m.WatchAdded()
	m.WatchAdded()
	m.WatchRemoved()
	m.Reclaimed("deferred", 3)
	m.Reclaimed("immediate", 0)
	m.SetRetiring(2)
	m.ThreadStarted()
	m.Notified()

	snap := m.GetSnapshot()
	assert.Equal(t, 2.0, snap["test_dispatches_total"])
	assert.Equal(t, 1.0, snap["test_watches"])
	assert.Equal(t, 3.0, snap["test_reclaims_total{path=deferred}"])
	assert.NotContains(t, snap, "test_reclaims_total{path=immediate}")
	assert.Equal(t, 2.0, snap["test_retiring_watches"])
	assert.Equal(t, 1.0, snap["test_dispatch_threads"])
	assert.Equal(t, 1.0, snap["test_observer_notifications_total"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatched()
		m.WatchAdded()
		m.Reclaimed("immediate", 1)
		m.ThreadStopped()
		m.Notified()
	})
	assert.Empty(t, m.GetSnapshot())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("")
	m.Dispatched()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), DefaultNamespace+"_dispatches_total 1")
}
