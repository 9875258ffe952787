package errors

import (
	"testing"
)

var errBenchDevice = Sentinel("bench", CategoryDevice, "device invalidated")

// The engine builds errors on its hot path whenever a host call fails, so
// building must stay cheap with no reporter and no hooks installed.
func BenchmarkBuildQuiet(b *testing.B) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()
	b.ReportAllocs()

	for b.Loop() {
		_ = New(errBenchDevice).
			Component("engine").
			StreamContext(0x00010002, "render").
			Build()
	}
}

func BenchmarkBuildAutoDetect(b *testing.B) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()
	b.ReportAllocs()

	for b.Loop() {
		_ = Newf("write %d bytes", 3840).Build()
	}
}

// countingReporter scrubs like the Sentry reporter without sending
type countingReporter struct{ n int }

func (r *countingReporter) IsEnabled() bool { return true }

func (r *countingReporter) ReportError(ee *EnhancedError) {
	_ = scrubMessageForPrivacy(ee.Error())
	r.n++
}

func BenchmarkBuildReported(b *testing.B) {
	SetTelemetryReporter(&countingReporter{})
	b.Cleanup(func() { SetTelemetryReporter(nil) })
	b.ReportAllocs()

	for b.Loop() {
		_ = Newf("connect tcp://10.0.0.2:4713 as /home/alice failed").
			Component("host").
			Category(CategoryHost).
			Context("server", "tcp://10.0.0.2:4713").
			Build()
	}
}

func BenchmarkBasicScrub(b *testing.B) {
	msg := "open /home/alice/take.wav after https://status.example?token=abc"
	b.ReportAllocs()

	for b.Loop() {
		_ = basicScrub(msg)
	}
}
