package audiocore

import (
	"sync/atomic"
	"time"
)

// MetricsRecorder receives engine and dispatch measurements. The
// Prometheus collector in observability/metrics implements it.
type MetricsRecorder interface {
	StreamOpened(flow string)
	StreamClosed(flow string)
	RecordOperation(op, result string)
	RecordUnderrun()
	RecordDiscontinuity()
	RecordTick(flow string, drift time.Duration)
	RecordHostBytes(flow string, n int)
}

// NoopMetrics discards every measurement
type NoopMetrics struct{}

func (NoopMetrics) StreamOpened(string)              {}
func (NoopMetrics) StreamClosed(string)              {}
func (NoopMetrics) RecordOperation(string, string)   {}
func (NoopMetrics) RecordUnderrun()                  {}
func (NoopMetrics) RecordDiscontinuity()             {}
func (NoopMetrics) RecordTick(string, time.Duration) {}
func (NoopMetrics) RecordHostBytes(string, int)      {}

type recorderHolder struct{ MetricsRecorder }

var globalMetrics atomic.Pointer[recorderHolder]

// SetMetrics installs the process-wide recorder. Passing nil restores the
// no-op recorder.
func SetMetrics(r MetricsRecorder) {
	if r == nil {
		globalMetrics.Store(nil)
		return
	}
	globalMetrics.Store(&recorderHolder{r})
}

// GetMetrics returns the installed recorder or a no-op one
func GetMetrics() MetricsRecorder {
	if h := globalMetrics.Load(); h != nil {
		return h.MetricsRecorder
	}
	return NoopMetrics{}
}
