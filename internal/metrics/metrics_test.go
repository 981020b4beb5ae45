package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SampleCollected("cpu_usage")
	m.SampleFailed("cpu_usage")
	m.StorageFailed("put")
	m.FrameReceived("GET_SENSOR_LIST")
	m.PushQueued()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.GaugeFunc("x", "x", func() float64 { return 1 })
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.SampleCollected("memory_usage")
	m.SampleCollected("memory_usage")
	m.SampleFailed("load_average")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.GaugeFunc("query_queue_depth", "Queued storage queries.", func() float64 { return 3 })

	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples.WithLabelValues("memory_usage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sampleErrors.WithLabelValues("load_average")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))

	count, err := testutil.GatherAndCount(m.Registry(), "vikki_query_queue_depth")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
