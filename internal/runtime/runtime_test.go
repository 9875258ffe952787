package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/host/memhost"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/dispatch"
	"github.com/tphakala/pulseshim/internal/errors"
)

func memorySettings() *conf.Settings {
	return &conf.Settings{
		Host: conf.HostSettings{
			Backend:    conf.BackendMemory,
			AppName:    "runtime-test",
			SampleRate: 44100,
			Channels:   1,
		},
	}
}

func TestRuntimeLifecycle(t *testing.T) {
	t.Parallel()

	r, err := New(memorySettings())
	require.NoError(t, err)
	assert.Nil(t, r.Metrics)
	assert.Equal(t, "runtime-test", r.Engine.Config().AppName)

	ctx := context.Background()
	require.NoError(t, r.Attach(ctx))
	prio, err := r.Connect(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, engine.PriorityUnavailable, prio)

	mix := dispatch.GetMixFormatParams{Flow: audiocore.FlowRender}
	require.NoError(t, r.Native.Call(dispatch.OpGetMixFormat, &mix))
	require.Equal(t, dispatch.SOK, mix.Result)
	assert.Equal(t, uint32(44100), mix.Format.SamplesPerSec)
	assert.Equal(t, uint16(1), mix.Format.Channels)

	require.NoError(t, r.Close())
	assert.False(t, r.Engine.Attached())
}

func TestRuntimeConnectFailure(t *testing.T) {
	t.Parallel()

	down := memhost.New(memhost.WithConnectError(errors.NewStd("connection refused")))
	r, err := New(memorySettings(), WithHost(down))
	require.NoError(t, err)
	require.NoError(t, r.Attach(context.Background()))
	t.Cleanup(func() { _ = r.Close() })

	prio, err := r.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, engine.PriorityUnavailable, prio)
	assert.True(t, errors.IsCategory(err, errors.CategoryHost))
}

func TestRuntimeEngineOverride(t *testing.T) {
	t.Parallel()

	r, err := New(memorySettings(), WithEngineConfig(func(c *engine.Config) {
		c.AppName = "override"
	}), WithMIDIDriver(dispatch.NewLoopbackMIDI()))
	require.NoError(t, err)
	assert.Equal(t, "override", r.Engine.Config().AppName)

	initP := dispatch.MIDIInitParams{}
	require.NoError(t, r.Native.Call(dispatch.OpMIDIInit, &initP))
	assert.Equal(t, dispatch.SOK, initP.Result)
}

func TestNewHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{conf.BackendMemory, false},
		{"", false},
		{conf.BackendMalgo, false},
		{"jack", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()
			s := memorySettings()
			s.Host.Backend = tt.backend
			h, err := NewHost(s)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.False(t, h.Connected(), "hosts start disconnected")
		})
	}

	_, err := New(nil)
	require.Error(t, err)
}

func TestStartTearsDownOnConnectFailure(t *testing.T) {
	t.Parallel()

	down := memhost.New(memhost.WithConnectError(errors.NewStd("connection refused")))
	_, err := Start(context.Background(), memorySettings(), WithHost(down))
	require.Error(t, err)

	r, err := Start(context.Background(), memorySettings())
	require.NoError(t, err)
	assert.True(t, r.Engine.Attached())
	require.NoError(t, r.Close())
}
