package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/errors"
)

func newTestMetrics(t *testing.T) *EngineMetrics {
	t.Helper()
	m, err := NewEngineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestStreamGauges(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.StreamOpened("render")
	m.StreamOpened("render")
	m.StreamOpened("capture")
	m.StreamClosed("render")

	assert.InDelta(t, 1, testutil.ToFloat64(m.activeStreams.WithLabelValues("render")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeStreams.WithLabelValues("capture")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.streamsOpened.WithLabelValues("render")), 0)
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	testCases := []struct {
		op     string
		result string
		times  int
	}{
		{"create_stream", "S_OK", 2},
		{"stop", "S_FALSE", 1},
		{"get_render_buffer", "AUDCLNT_E_OUT_OF_ORDER", 3},
	}

	for _, tc := range testCases {
		for range tc.times {
			m.RecordOperation(tc.op, tc.result)
		}
	}
	for _, tc := range testCases {
		count := testutil.ToFloat64(m.operations.WithLabelValues(tc.op, tc.result))
		assert.InDelta(t, float64(tc.times), count, 0, tc.op)
	}
}

func TestTimingMetrics(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.RecordTick("render", -2*time.Millisecond)
	m.RecordTick("render", time.Millisecond)
	m.RecordUnderrun()
	m.RecordDiscontinuity()
	m.RecordDiscontinuity()
	m.RecordHostBytes("render", 3840)
	m.RecordHostBytes("render", 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ticks.WithLabelValues("render")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.underruns), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.discontinuities), 0)
	assert.InDelta(t, 3840, testutil.ToFloat64(m.hostBytes.WithLabelValues("render")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.drift))
}

func TestErrorHookCountsCategories(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	hook := m.ErrorHook()
	hook(errors.New(errors.NewStd("lease outstanding")).
		Component("ringbuf").
		Category(errors.CategoryProtocol).
		Build())

	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsByCategory.WithLabelValues("ringbuf", string(errors.CategoryProtocol))), 0)
}

func TestRegistryExposition(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewEngineMetrics(registry)
	require.NoError(t, err)
	m.RecordUnderrun()

	expected := `
# HELP pulseshim_underruns_total Total number of render underruns reported by the host
# TYPE pulseshim_underruns_total counter
pulseshim_underruns_total 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "pulseshim_underruns_total"))

	_, err = NewEngineMetrics(registry)
	require.Error(t, err, "double registration")
}
