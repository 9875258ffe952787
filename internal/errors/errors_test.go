package errors

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	t.Parallel()

	base := Sentinel("engine", CategoryProtocol, "lease out of order")
	wrapped := New(base).Component("engine").Context("op", "release").Build()

	assert.Equal(t, CategoryProtocol, wrapped.Category)
	assert.ErrorIs(t, wrapped, base)
}

func TestSentinelsWithSameCategoryDoNotMatch(t *testing.T) {
	t.Parallel()

	errA := Sentinel("engine", CategoryProtocol, "out of order")
	errB := Sentinel("engine", CategoryProtocol, "invalid size")

	assert.NotErrorIs(t, errA, errB)
	assert.NotErrorIs(t, errB, errA)
	assert.ErrorIs(t, errA, errA)

	wrappedB := New(errB).Category(CategoryValidation).Build()
	assert.ErrorIs(t, wrappedB, errB, "unwrap chain still finds the sentinel")
	assert.NotErrorIs(t, wrappedB, errA)
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := New(NewStd("no such device")).Category(CategoryNotFound).Build()
	wrapped := fmt.Errorf("lookup: %w", err)

	assert.True(t, IsCategory(wrapped, CategoryNotFound))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsCategory(wrapped, CategoryHost))
	assert.False(t, IsCategory(NewStd("plain"), CategoryNotFound))
}

func TestErrorHooksReceiveBuiltErrors(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()
	t.Cleanup(ClearErrorHooks)

	var seen atomic.Int32
	var lastCategory atomic.Value
	AddErrorHook(func(ee *EnhancedError) {
		seen.Add(1)
		lastCategory.Store(ee.Category)
	})

	_ = New(NewStd("host stream not ready")).Component("host").Category(CategoryHost).Build()

	require.Equal(t, int32(1), seen.Load())
	assert.Equal(t, CategoryHost, lastCategory.Load())
}

func TestDetectCategoryFromMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		msg       string
		component string
		want      ErrorCategory
	}{
		{"format", "unsupported sample format", "", CategoryFormat},
		{"lease", "lease already outstanding", "", CategoryProtocol},
		{"timeout", "join timed out", "", CategoryTimeout},
		{"invalid", "invalid channel count", "", CategoryValidation},
		{"host component", "connection refused", "host", CategoryHost},
		{"fallback", "something odd", "", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectCategory(NewStd(tt.msg), tt.component))
		})
	}
}

func TestBasicScrub(t *testing.T) {
	t.Parallel()

	scrubbed := basicScrub("open /home/alice/music/a.wav via https://srv.example.com?token=abc")
	assert.NotContains(t, scrubbed, "alice")
	assert.NotContains(t, scrubbed, "token=abc")
	assert.Contains(t, scrubbed, "/home/[USER]")
	assert.Contains(t, scrubbed, "https://srv.example.com?[REDACTED]")
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("bad")).
		Component("engine").
		Category(CategoryState).
		Context("operation", "reset_stream").
		Build()

	assert.Equal(t, "Engine Stream State Error Reset Stream", generateErrorTitle(ee))
}

func TestPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(NewStd("x")).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.GetPriority())
}
