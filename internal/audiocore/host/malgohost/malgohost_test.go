package malgohost

import (
	"context"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
)

func stereoS16() format.SampleSpec {
	return format.SampleSpec{
		Rate:     48000,
		Encoding: format.EncodingS16LE,
		Channels: 2,
		Map:      format.DefaultMap(2),
	}
}

func TestBackendForPlatform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goos    string
		want    malgo.Backend
		wantErr bool
	}{
		{"linux", malgo.BackendAlsa, false},
		{"windows", malgo.BackendWasapi, false},
		{"darwin", malgo.BackendCoreaudio, false},
		{"plan9", malgo.BackendNull, true},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			t.Parallel()
			got, err := backendForPlatform(tt.goos)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()

	supported := map[format.Encoding]malgo.FormatType{
		format.EncodingU8:    malgo.FormatU8,
		format.EncodingS16LE: malgo.FormatS16,
		format.EncodingS24LE: malgo.FormatS24,
		format.EncodingS32LE: malgo.FormatS32,
		format.EncodingF32LE: malgo.FormatF32,
	}
	for enc, want := range supported {
		got, err := formatFor(enc)
		require.NoError(t, err, enc.String())
		assert.Equal(t, want, got, enc.String())
	}

	for _, enc := range []format.Encoding{format.EncodingALaw, format.EncodingMuLaw, format.EncodingS24In32LE, format.EncodingInvalid} {
		_, err := formatFor(enc)
		require.ErrorIs(t, err, audiocore.ErrUnsupportedFormat, enc.String())
	}
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	got, err := hexToASCII("3a302c30")
	require.NoError(t, err)
	assert.Equal(t, ":0,0", got)

	_, err = hexToASCII("zz")
	require.Error(t, err)

	assert.True(t, isDiscardDevice("Discard all samples (playback) or generate zero samples (capture)"))
	assert.False(t, isDiscardDevice("USB Audio"))
}

func TestServerNotConnected(t *testing.T) {
	t.Parallel()

	srv := New(Config{})
	assert.False(t, srv.Connected())
	assert.Equal(t, DefaultConfig(), srv.cfg)

	_, err := srv.Devices(audiocore.FlowRender)
	require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)

	_, err = srv.Open(context.Background(), host.StreamConfig{Flow: audiocore.FlowRender, Spec: stereoS16()})
	require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)

	_, err = srv.Open(context.Background(), host.StreamConfig{Flow: audiocore.FlowRender})
	require.ErrorIs(t, err, audiocore.ErrUnsupportedFormat)

	require.NoError(t, srv.Close())
}

func TestNativeSpec(t *testing.T) {
	t.Parallel()

	srv := New(Config{SampleRate: 44100, Channels: 6})
	spec := srv.nativeSpec()
	assert.True(t, spec.Valid())
	assert.Equal(t, uint32(44100), spec.Rate)
	assert.Len(t, spec.Map, 6)
}

func TestStreamAttributes(t *testing.T) {
	t.Parallel()

	st := newStream(host.StreamConfig{Flow: audiocore.FlowRender, Spec: stereoS16()}, time.Millisecond)
	attr := st.Attributes()
	assert.Equal(t, 48*4, attr.MinReq)
	assert.Equal(t, 2*48*4, attr.TLength)
	assert.True(t, st.Ready())
}

func TestRenderCallback(t *testing.T) {
	t.Parallel()

	st := newStream(host.StreamConfig{
		Flow: audiocore.FlowRender,
		Spec: stereoS16(),
		Attr: host.BufferAttr{TLength: 4800 * 4},
	}, time.Millisecond)

	underflows := 0
	st.SetUnderflowCallback(func() { underflows++ })

	data := make([]byte, 100*4)
	for i := range data {
		data[i] = 7
	}
	n, err := st.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	out := make([]byte, 60*4)
	st.onData(out, nil, 60)
	assert.Equal(t, byte(7), out[len(out)-1])
	assert.Zero(t, underflows)

	st.onData(out, nil, 60)
	assert.Equal(t, byte(7), out[40*4-1])
	assert.Equal(t, byte(0), out[40*4], "short reads are padded with silence")
	assert.Equal(t, 1, underflows)

	st.onData(out, nil, 60)
	assert.Equal(t, 1, underflows, "one notification per underrun")
	assert.Equal(t, 1, st.Underflows())

	now, err := st.Time()
	require.NoError(t, err)
	assert.Equal(t, 180*time.Second/48000, now)
}

func TestCaptureCallback(t *testing.T) {
	t.Parallel()

	st := newStream(host.StreamConfig{
		Flow: audiocore.FlowCapture,
		Spec: stereoS16(),
		Attr: host.BufferAttr{MaxLength: 96 * 4, FragSize: 48 * 4},
	}, time.Millisecond)

	in := make([]byte, 64*4)
	for i := range in {
		in[i] = 3
	}
	st.onData(nil, in, 64)
	assert.Equal(t, 64*4, st.ReadableSize())

	st.onData(nil, in, 64)
	assert.Equal(t, 96*4, st.ReadableSize())
	assert.Equal(t, 1, st.Overruns())

	chunk, n, err := st.Peek()
	require.NoError(t, err)
	assert.Equal(t, 48*4, n)
	assert.Equal(t, byte(3), chunk[0])
	require.NoError(t, st.Drop())
	assert.Equal(t, 48*4, st.ReadableSize())
}

func TestSetRateAndClose(t *testing.T) {
	t.Parallel()

	st := newStream(host.StreamConfig{Flow: audiocore.FlowRender, Spec: stereoS16()}, time.Millisecond)
	require.NoError(t, st.SetRate(48000))
	require.ErrorIs(t, st.SetRate(44100), audiocore.ErrNotImplemented)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.False(t, st.Ready())
	assert.Zero(t, st.WritableSize())
	require.ErrorIs(t, st.Cork(false), audiocore.ErrDeviceInvalidated)

	out := []byte{1, 2, 3, 4}
	st.onData(out, nil, 1)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}
