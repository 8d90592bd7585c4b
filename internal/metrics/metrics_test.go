package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter struct{ names, ips int }

func (f fixedCounter) Len() (int, int) { return f.names, f.ips }

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.NodesAdded("compute", 3)
	m.NodesAdded("compute", 0)
	m.AddHostFailed("compute")
	m.NodesDeleted(2)
	m.NodeRequestFinished("done")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.nodesAdded.WithLabelValues("compute")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.addHostFailures.WithLabelValues("compute")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodesDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeRequests.WithLabelValues("done")))

	require.NoError(t, m.TrackReservations(fixedCounter{names: 4, ips: 7}))
	count, err := testutil.GatherAndCount(reg, "tortuga_pending_names", "tortuga_pending_ips")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.NodesAdded("compute", 1)
		m.AddHostFailed("compute")
		m.NodesDeleted(1)
		m.NodeRequestFinished("error")
		_ = m.TrackReservations(fixedCounter{})
	})
}
