// Package metrics provides Prometheus collectors for the stream engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// EngineMetrics contains Prometheus metrics for the stream engine and the
// call boundary. It implements audiocore.MetricsRecorder.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Stream metrics
	activeStreams *prometheus.GaugeVec
	streamsOpened *prometheus.CounterVec

	// Call boundary metrics
	operations *prometheus.CounterVec

	// Timing loop metrics
	ticks           *prometheus.CounterVec
	drift           *prometheus.HistogramVec
	underruns       prometheus.Counter
	discontinuities prometheus.Counter
	hostBytes       *prometheus.CounterVec

	// Error metrics
	errorsByCategory *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewEngineMetrics creates and registers new engine metrics
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.activeStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulseshim_active_streams",
			Help: "Number of open streams",
		},
		[]string{"flow"},
	)

	m.streamsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseshim_streams_opened_total",
			Help: "Total number of streams opened",
		},
		[]string{"flow"},
	)

	m.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseshim_operations_total",
			Help: "Total number of call boundary operations by result code",
		},
		[]string{"op", "result"},
	)

	m.ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseshim_timing_ticks_total",
			Help: "Total number of timing loop iterations",
		},
		[]string{"flow"},
	)

	m.drift = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseshim_timing_drift_seconds",
			Help:    "Absolute difference between the host clock and the pacing schedule",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~200ms
		},
		[]string{"flow"},
	)

	m.underruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseshim_underruns_total",
			Help: "Total number of render underruns reported by the host",
		},
	)

	m.discontinuities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseshim_capture_discontinuities_total",
			Help: "Total number of capture packets dropped on overflow",
		},
	)

	m.hostBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseshim_host_bytes_total",
			Help: "Bytes exchanged with the host audio server",
		},
		[]string{"flow"},
	)

	m.errorsByCategory = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseshim_errors_total",
			Help: "Total number of errors built, by component and category",
		},
		[]string{"component", "category"},
	)

	m.collectors = []prometheus.Collector{
		m.activeStreams,
		m.streamsOpened,
		m.operations,
		m.ticks,
		m.drift,
		m.underruns,
		m.discontinuities,
		m.hostBytes,
		m.errorsByCategory,
	}
}

// Describe implements the Collector interface
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// StreamOpened records a new stream
func (m *EngineMetrics) StreamOpened(flow string) {
	m.activeStreams.WithLabelValues(flow).Inc()
	m.streamsOpened.WithLabelValues(flow).Inc()
}

// StreamClosed records a released stream
func (m *EngineMetrics) StreamClosed(flow string) {
	m.activeStreams.WithLabelValues(flow).Dec()
}

// RecordOperation records a dispatched operation and its result code
func (m *EngineMetrics) RecordOperation(op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *EngineMetrics) RecordUnderrun() {
	m.underruns.Inc()
}

func (m *EngineMetrics) RecordDiscontinuity() {
	m.discontinuities.Inc()
}

// RecordTick records one timing loop iteration and its drift
func (m *EngineMetrics) RecordTick(flow string, drift time.Duration) {
	m.ticks.WithLabelValues(flow).Inc()
	m.drift.WithLabelValues(flow).Observe(drift.Abs().Seconds())
}

// RecordHostBytes records bytes written to or read from the host
func (m *EngineMetrics) RecordHostBytes(flow string, n int) {
	if n <= 0 {
		return
	}
	m.hostBytes.WithLabelValues(flow).Add(float64(n))
}

// RecordError counts a built error by component and category
func (m *EngineMetrics) RecordError(component string, category errors.ErrorCategory) {
	m.errorsByCategory.WithLabelValues(component, string(category)).Inc()
}

// ErrorHook returns an errors hook feeding RecordError
func (m *EngineMetrics) ErrorHook() errors.ErrorHook {
	return func(ee *errors.EnhancedError) {
		m.RecordError(ee.GetComponent(), ee.Category)
	}
}

var _ audiocore.MetricsRecorder = (*EngineMetrics)(nil)
