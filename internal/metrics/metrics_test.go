package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ListenerAdded("CPU")
	m.ListenerRemoved("CPU")
	m.Broadcast("CPU", Delivered, 3)
	m.Fetched("CPU", time.Millisecond, nil)
	m.Message("dropped")
	m.PortListeners(1)
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.ListenerAdded("BATTERY")
	m.ListenerAdded("BATTERY")
	m.ListenerRemoved("BATTERY")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listeners.WithLabelValues("BATTERY")))

	m.Broadcast("CPU", Filtered, 2)
	m.Broadcast("CPU", Filtered, 0)
	m.Broadcast("CPU", Delivered, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("CPU", Filtered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("CPU", Delivered)))

	m.Fetched("SIM", 2*time.Millisecond, nil)
	m.Fetched("SIM", time.Millisecond, errors.New("tapi"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("SIM", "error")))

	m.Message("delivered")
	m.PortListeners(2)
	m.PortListeners(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.watches))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}
