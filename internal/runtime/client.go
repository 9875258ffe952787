package runtime

import (
	"context"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/dispatch"
)

// Client issues typed calls through a native call table and turns
// failure codes into errors
type Client struct {
	d *dispatch.Dispatcher
}

// NewClient wraps d
func NewClient(d *dispatch.Dispatcher) *Client {
	return &Client{d: d}
}

// Client returns a client over the native table
func (r *Runtime) Client() *Client {
	return NewClient(r.Native)
}

// call runs op and returns the result code alongside any failure
func (c *Client) call(ctx context.Context, op dispatch.Op, p interface{ Code() dispatch.HRESULT }) (dispatch.HRESULT, error) {
	if err := c.d.CallContext(ctx, op, p); err != nil {
		return dispatch.EUnexpected, err
	}
	code := p.Code()
	return code, code.Err()
}

// CreateStream opens a stream and returns its handle and channel count
func (c *Client) CreateStream(ctx context.Context, p dispatch.CreateStreamParams) (engine.Handle, int, error) {
	if _, err := c.call(ctx, dispatch.OpCreateStream, &p); err != nil {
		return 0, 0, err
	}
	return p.Stream, p.Channels, nil
}

// ReleaseStream closes h
func (c *Client) ReleaseStream(ctx context.Context, h engine.Handle) error {
	_, err := c.call(ctx, dispatch.OpReleaseStream, &dispatch.StreamParams{Stream: h})
	return err
}

// Start starts h; starting a running stream is an error
func (c *Client) Start(ctx context.Context, h engine.Handle) error {
	_, err := c.call(ctx, dispatch.OpStart, &dispatch.StreamParams{Stream: h})
	return err
}

// Stop stops h and reports whether it was running
func (c *Client) Stop(ctx context.Context, h engine.Handle) (bool, error) {
	code, err := c.call(ctx, dispatch.OpStop, &dispatch.StreamParams{Stream: h})
	return code == dispatch.SOK, err
}

// BufferSize returns the ring size of h in frames
func (c *Client) BufferSize(ctx context.Context, h engine.Handle) (int, error) {
	p := dispatch.GetBufferSizeParams{Stream: h}
	_, err := c.call(ctx, dispatch.OpGetBufferSize, &p)
	return p.Frames, err
}

// Padding returns the frames queued in h
func (c *Client) Padding(ctx context.Context, h engine.Handle) (int, error) {
	p := dispatch.GetCurrentPaddingParams{Stream: h}
	_, err := c.call(ctx, dispatch.OpGetCurrentPadding, &p)
	return p.Padding, err
}

// NextPacketSize returns the frames in the next capture packet, 0 when
// none is ready
func (c *Client) NextPacketSize(ctx context.Context, h engine.Handle) (int, error) {
	p := dispatch.GetNextPacketSizeParams{Stream: h}
	_, err := c.call(ctx, dispatch.OpGetNextPacketSize, &p)
	return p.Frames, err
}

// RenderBuffer leases room for frames frames
func (c *Client) RenderBuffer(ctx context.Context, h engine.Handle, frames int) ([]byte, error) {
	p := dispatch.GetRenderBufferParams{Stream: h, Frames: frames}
	_, err := c.call(ctx, dispatch.OpGetRenderBuffer, &p)
	return p.Data, err
}

// ReleaseRenderBuffer commits written frames of the current lease
func (c *Client) ReleaseRenderBuffer(ctx context.Context, h engine.Handle, written int, flags audiocore.BufferFlags) error {
	p := dispatch.ReleaseRenderBufferParams{Stream: h, WrittenFrames: written, Flags: flags}
	_, err := c.call(ctx, dispatch.OpReleaseRenderBuffer, &p)
	return err
}

// CaptureBuffer leases the next capture packet. An empty buffer yields
// zero frames and no error.
func (c *Client) CaptureBuffer(ctx context.Context, h engine.Handle) (dispatch.GetCaptureBufferParams, error) {
	p := dispatch.GetCaptureBufferParams{Stream: h}
	_, err := c.call(ctx, dispatch.OpGetCaptureBuffer, &p)
	return p, err
}

// ReleaseCaptureBuffer consumes done frames of the current packet
func (c *Client) ReleaseCaptureBuffer(ctx context.Context, h engine.Handle, done int) error {
	_, err := c.call(ctx, dispatch.OpReleaseCaptureBuffer, &dispatch.ReleaseCaptureBufferParams{Stream: h, Done: done})
	return err
}

// SetVolume applies a master gain with unity channel and session gains
func (c *Client) SetVolume(ctx context.Context, h engine.Handle, channels int, master float32) error {
	unity := make([]float32, channels)
	for i := range unity {
		unity[i] = 1
	}
	p := dispatch.SetVolumesParams{Stream: h, Master: master, Volumes: unity, SessionVolumes: unity}
	_, err := c.call(ctx, dispatch.OpSetVolumes, &p)
	return err
}

// PositionFrames returns the device position of h in frames
func (c *Client) PositionFrames(ctx context.Context, h engine.Handle) (uint64, error) {
	p := dispatch.GetPositionParams{Stream: h, Device: true}
	_, err := c.call(ctx, dispatch.OpGetPosition, &p)
	return p.Pos, err
}

// DevicePeriod returns the default and minimum periods of a direction
func (c *Client) DevicePeriod(ctx context.Context, flow audiocore.Flow) (def, minimum audiocore.RefTime, err error) {
	p := dispatch.GetDevicePeriodParams{Flow: flow}
	_, err = c.call(ctx, dispatch.OpGetDevicePeriod, &p)
	return p.Default, p.Minimum, err
}

// MixFormat returns the shared-mode format of a direction
func (c *Client) MixFormat(ctx context.Context, flow audiocore.Flow) (format.WaveFormat, error) {
	p := dispatch.GetMixFormatParams{Flow: flow}
	_, err := c.call(ctx, dispatch.OpGetMixFormat, &p)
	return p.Format, err
}

// LoopbackDevice returns the capture device monitoring a render device
func (c *Client) LoopbackDevice(ctx context.Context, render string) (string, error) {
	p := dispatch.GetLoopbackCaptureDeviceParams{Device: render}
	_, err := c.call(ctx, dispatch.OpGetLoopbackCaptureDevice, &p)
	return p.Loopback, err
}
