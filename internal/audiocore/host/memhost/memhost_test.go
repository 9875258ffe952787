package memhost

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
)

func stereoFloat() format.SampleSpec {
	return format.SampleSpec{
		Rate:     48000,
		Encoding: format.EncodingF32LE,
		Channels: 2,
		Map:      []format.Position{format.PositionFrontLeft, format.PositionFrontRight},
	}
}

func connected(t *testing.T, opts ...Option) (*Server, *audiocore.ManualClock) {
	t.Helper()
	clock := &audiocore.ManualClock{}
	srv := New(append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, srv.Connect(context.Background(), "test"))
	return srv, clock
}

func openStream(t *testing.T, srv *Server, flow audiocore.Flow, attr host.BufferAttr) *Stream {
	t.Helper()
	st, err := srv.Open(context.Background(), host.StreamConfig{
		Name: t.Name(),
		Flow: flow,
		Spec: stereoFloat(),
		Attr: attr,
	})
	require.NoError(t, err)
	ms, ok := st.(*Stream)
	require.True(t, ok)
	return ms
}

func TestOpenRequiresConnection(t *testing.T) {
	t.Parallel()

	srv := New()
	_, err := srv.Open(context.Background(), host.StreamConfig{Flow: audiocore.FlowRender, Spec: stereoFloat()})
	require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)

	_, err = srv.Devices(audiocore.FlowRender)
	require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)
}

func TestConnectError(t *testing.T) {
	t.Parallel()

	srv := New(WithConnectError(assert.AnError))
	err := srv.Connect(context.Background(), "test")
	require.ErrorIs(t, err, audiocore.ErrServiceNotRunning)
	assert.False(t, srv.Connected())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	srv, _ := connected(t, WithOpenError(assert.AnError))
	_, err := srv.Open(context.Background(), host.StreamConfig{Flow: audiocore.FlowRender, Spec: stereoFloat()})
	require.ErrorIs(t, err, audiocore.ErrEndpointCreate)

	srv, _ = connected(t)
	_, err = srv.Open(context.Background(), host.StreamConfig{
		Flow: audiocore.FlowRender, Spec: stereoFloat(), Device: "nope",
	})
	require.ErrorIs(t, err, audiocore.ErrDeviceNotFound)

	_, err = srv.Open(context.Background(), host.StreamConfig{Flow: audiocore.FlowRender})
	require.ErrorIs(t, err, audiocore.ErrUnsupportedFormat)
}

func TestDevicesAndProbe(t *testing.T) {
	t.Parallel()

	srv, _ := connected(t)

	capture, err := srv.Devices(audiocore.FlowCapture)
	require.NoError(t, err)
	require.Len(t, capture, 2)

	def, err := srv.DefaultDevice(audiocore.FlowCapture)
	require.NoError(t, err)
	assert.Equal(t, SourceID, def.ID)

	probe, err := srv.Probe(context.Background(), audiocore.FlowRender)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), probe.Spec.Rate)
	assert.Equal(t, 48*8, probe.MinReq, "one millisecond of stereo float")
}

func TestAttributesNegotiated(t *testing.T) {
	t.Parallel()

	srv, _ := connected(t)
	st := openStream(t, srv, audiocore.FlowRender, host.BufferAttr{TLength: 100, MinReq: 3})

	attr := st.Attributes()
	assert.Equal(t, 384, attr.MinReq, "raised to the server minimum")
	assert.Equal(t, 768, attr.TLength, "at least two requests")
	assert.GreaterOrEqual(t, attr.MaxLength, attr.TLength)
	assert.True(t, st.Corked(), "streams open corked")
}

func TestRenderConsumesWhileUncorked(t *testing.T) {
	t.Parallel()

	srv, clock := connected(t)
	st := openStream(t, srv, audiocore.FlowRender, host.BufferAttr{TLength: 48000 * 8})
	st.RecordRendered(true)

	data := make([]byte, 480*8)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := st.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	clock.Advance(5 * time.Millisecond)
	require.NoError(t, st.UpdateTiming(context.Background()))
	assert.Equal(t, len(data), st.Queued(), "corked streams do not play")

	require.NoError(t, st.Cork(false))
	clock.Advance(5 * time.Millisecond)
	require.NoError(t, st.UpdateTiming(context.Background()))
	assert.Equal(t, 240*8, st.Queued())
	assert.Equal(t, data[:240*8], st.Rendered())

	now, err := st.Time()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, now)
}

func TestRenderUnderflowCallback(t *testing.T) {
	t.Parallel()

	srv, clock := connected(t)
	st := openStream(t, srv, audiocore.FlowRender, host.BufferAttr{TLength: 48000 * 8})

	var underflows atomic.Int32
	st.SetUnderflowCallback(func() { underflows.Add(1) })

	_, err := st.Write(make([]byte, 96*8))
	require.NoError(t, err)
	require.NoError(t, st.Cork(false))

	clock.Advance(10 * time.Millisecond)
	assert.Positive(t, st.WritableSize())
	assert.Equal(t, int32(1), underflows.Load())

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, st.UpdateTiming(context.Background()))
	assert.Equal(t, int32(1), underflows.Load(), "one callback per underrun")

	_, err = st.Write(make([]byte, 96*8))
	require.NoError(t, err)
	clock.Advance(10 * time.Millisecond)
	require.NoError(t, st.UpdateTiming(context.Background()))
	assert.Equal(t, int32(2), underflows.Load())
	assert.Equal(t, 2, st.Underflows())
}

func TestCaptureProducesFragments(t *testing.T) {
	t.Parallel()

	srv, clock := connected(t, WithGenerator(func(_ format.SampleSpec, p []byte) {
		for i := range p {
			p[i] = 0x11
		}
	}))
	st := openStream(t, srv, audiocore.FlowCapture, host.BufferAttr{MaxLength: 48000 * 8, FragSize: 480 * 8})

	require.NoError(t, st.Cork(false))
	clock.Advance(15 * time.Millisecond)
	assert.Equal(t, 720*8, st.ReadableSize())

	data, n, err := st.Peek()
	require.NoError(t, err)
	assert.Equal(t, 480*8, n, "chunks are at most one fragment")
	assert.Equal(t, byte(0x11), data[0])

	again, _, err := st.Peek()
	require.NoError(t, err)
	assert.Same(t, &data[0], &again[0], "peek without drop returns the same chunk")

	require.NoError(t, st.Drop())
	_, n, err = st.Peek()
	require.NoError(t, err)
	assert.Equal(t, 240*8, n)
	require.NoError(t, st.Drop())

	_, n, err = st.Peek()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCaptureOverrun(t *testing.T) {
	t.Parallel()

	srv, clock := connected(t)
	st := openStream(t, srv, audiocore.FlowCapture, host.BufferAttr{MaxLength: 480 * 8, FragSize: 480 * 8})

	require.NoError(t, st.Cork(false))
	clock.Advance(30 * time.Millisecond)
	assert.Equal(t, 480*8, st.ReadableSize())
	assert.Equal(t, 1, st.Overruns())
}

func TestPeekErrorAndInvalidate(t *testing.T) {
	t.Parallel()

	srv, _ := connected(t)
	st := openStream(t, srv, audiocore.FlowCapture, host.BufferAttr{})

	st.SetPeekError(assert.AnError)
	_, _, err := st.Peek()
	require.ErrorIs(t, err, assert.AnError)

	require.NoError(t, srv.Close())
	assert.False(t, st.Ready())
	require.ErrorIs(t, st.Cork(false), audiocore.ErrDeviceInvalidated)
	_, err = st.Time()
	require.ErrorIs(t, err, audiocore.ErrDeviceInvalidated)
}

func TestCloseRemovesStream(t *testing.T) {
	t.Parallel()

	srv, _ := connected(t)
	st := openStream(t, srv, audiocore.FlowRender, host.BufferAttr{})
	require.Len(t, srv.Streams(), 1)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.Empty(t, srv.Streams())
	assert.Zero(t, st.WritableSize())
}

func TestSetRate(t *testing.T) {
	t.Parallel()

	srv, clock := connected(t)
	st := openStream(t, srv, audiocore.FlowCapture, host.BufferAttr{MaxLength: 48000 * 8})
	require.NoError(t, st.Cork(false))

	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 480*8, st.ReadableSize())

	require.NoError(t, st.SetRate(24000))
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 720*8, st.ReadableSize(), "second 10 ms at half rate")
	require.ErrorIs(t, st.SetRate(0), audiocore.ErrInvalidArgument)
}
