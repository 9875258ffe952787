package telemetry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/errors"
)

// mockTransport records events instead of sending them
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {} //nolint:gocritic // interface signature

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool              { return true }
func (t *mockTransport) FlushWithContext(context.Context) bool { return true }
func (t *mockTransport) Close()                                {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func enabledSettings() *conf.Settings {
	return &conf.Settings{
		Host:      conf.HostSettings{Backend: conf.BackendMemory},
		Telemetry: conf.TelemetrySettings{Enabled: true, Environment: "test"},
	}
}

func TestInitSentryDisabled(t *testing.T) {
	enabled, err := InitSentry(&conf.Settings{}, "test")
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = InitSentry(nil, "test")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestEnhancedErrorsReachSentry(t *testing.T) {
	transport := &mockTransport{}
	enabled, err := InitSentry(enabledSettings(), "test", WithTransport(transport))
	require.NoError(t, err)
	require.True(t, enabled)
	t.Cleanup(func() { Shutdown(time.Second) })

	_ = errors.New(errors.NewStd("host refused /home/alice/.config")).
		Component("host").
		Category(errors.CategoryHost).
		Context("operation", "connect").
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "host", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryHost), event.Tags["category"])
	assert.Equal(t, "memory", event.Tags["backend"])
	assert.Equal(t, "pulseshim@test", event.Release)
	assert.NotContains(t, event.Message, "alice", "home directories are scrubbed")
	assert.Empty(t, event.ServerName)
}

func TestShutdownDetachesReporter(t *testing.T) {
	transport := &mockTransport{}
	_, err := InitSentry(enabledSettings(), "test", WithTransport(transport))
	require.NoError(t, err)

	Shutdown(time.Second)
	assert.Nil(t, errors.GetTelemetryReporter())

	_ = errors.New(errors.NewStd("after shutdown")).Category(errors.CategorySystem).Build()
	assert.Empty(t, transport.Events())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "studio-pc",
		User:       sentry.User{ID: "42"},
		Contexts:   map[string]sentry.Context{"os": {}, "application": {}},
		Extra:      map[string]any{"component": "engine", "path": "/tmp/x"},
		Tags:       map[string]string{"hostname": "studio-pc", "category": "host"},
		Message:    "open /home/alice/take.wav failed",
		Exception:  []sentry.Exception{{Value: "dial tcp://192.168.1.20:4713 refused"}},
	}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.Contains(t, out.Contexts, "application")
	assert.Equal(t, map[string]any{"component": "engine"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "host"}, out.Tags)
	assert.NotContains(t, out.Message, "alice")
	require.Len(t, out.Exception, 1)
	assert.NotContains(t, out.Exception[0].Value, "192.168.1.20")
}

func TestInitSentryResolvesDSNFile(t *testing.T) {
	settings := enabledSettings()
	settings.Telemetry.DSNFile = filepath.Join(t.TempDir(), "missing")

	enabled, err := InitSentry(settings, "test", WithTransport(&mockTransport{}))
	require.Error(t, err)
	assert.False(t, enabled)
}
