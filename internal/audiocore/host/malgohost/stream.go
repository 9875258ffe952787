package malgohost

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

// Stream is one miniaudio device plus the FIFO its data callback serves.
// The callback runs on the miniaudio thread and only touches the FIFO and
// counters under mu.
type Stream struct {
	srv    *Server
	cfg    host.StreamConfig
	attr   host.BufferAttr
	device *malgo.Device

	mu          sync.Mutex
	fifo        *ringbuffer.RingBuffer
	pending     []byte
	corked      bool
	ready       bool
	closed      bool
	underrun    bool
	frames      uint64 // frames the device played or captured
	rate        uint32
	overruns    int
	underflows  int
	underflowFn func()
}

func newStream(cfg host.StreamConfig, minReq time.Duration) *Stream {
	spec := cfg.Spec
	frame := spec.FrameSize()
	attr := cfg.Attr

	floor := max(spec.BytesFor(audiocore.FromDuration(minReq)), frame)
	attr.MinReq = alignUp(max(attr.MinReq, floor), frame)
	attr.FragSize = alignUp(max(attr.FragSize, floor), frame)
	attr.TLength = alignUp(max(attr.TLength, 2*attr.MinReq), frame)
	attr.MaxLength = max(attr.MaxLength, attr.TLength)

	size := attr.TLength
	if cfg.Flow == audiocore.FlowCapture {
		size = attr.MaxLength
	}

	return &Stream{
		cfg:    cfg,
		attr:   attr,
		fifo:   ringbuffer.New(size),
		corked: true,
		ready:  true,
		rate:   spec.Rate,
	}
}

func alignUp(n, frame int) int {
	if rem := n % frame; rem != 0 {
		n += frame - rem
	}
	return n
}

// onData is the miniaudio data callback
func (st *Stream) onData(out, in []byte, frameCount uint32) {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		fill(out, st.cfg.Spec.Encoding.SilenceByte())
		return
	}
	st.frames += uint64(frameCount)

	var notify func()
	if st.cfg.Flow == audiocore.FlowCapture {
		st.captureLocked(in)
	} else {
		notify = st.renderLocked(out)
	}
	st.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (st *Stream) renderLocked(out []byte) func() {
	n := 0
	if st.fifo.Length() > 0 {
		n, _ = st.fifo.Read(out)
	}
	if n == len(out) {
		return nil
	}
	fill(out[n:], st.cfg.Spec.Encoding.SilenceByte())
	if st.underrun {
		return nil
	}
	st.underrun = true
	st.underflows++
	return st.underflowFn
}

func (st *Stream) captureLocked(in []byte) {
	room := min(len(in), st.fifo.Free())
	if room < len(in) {
		st.overruns++
	}
	if room > 0 {
		_, _ = st.fifo.Write(in[:room])
	}
}

// onStop runs when miniaudio stops the device. A stop the stream did not
// ask for means the device went away.
func (st *Stream) onStop() {
	st.mu.Lock()
	lost := !st.corked && !st.closed
	if lost {
		st.ready = false
	}
	st.mu.Unlock()

	if lost && st.srv != nil {
		st.srv.log.Warn("device stopped unexpectedly",
			logger.String("stream", st.cfg.Name))
	}
}

// Attributes returns the negotiated buffer attributes
func (st *Stream) Attributes() host.BufferAttr {
	return st.attr
}

// Ready reports whether the device is still usable
func (st *Stream) Ready() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ready && !st.closed
}

// Cork stops or starts the device
func (st *Stream) Cork(corked bool) error {
	st.mu.Lock()
	if err := st.usableLocked(); err != nil {
		st.mu.Unlock()
		return err
	}
	was := st.corked
	st.corked = corked
	if !corked {
		st.underrun = false
	}
	st.mu.Unlock()

	if st.device == nil || was == corked {
		return nil
	}

	var err error
	op := "start_device"
	if corked {
		op = "stop_device"
		err = st.device.Stop()
	} else {
		err = st.device.Start()
	}
	if err != nil {
		st.mu.Lock()
		st.corked = was
		st.mu.Unlock()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryDevice).
			Context("operation", op).
			Context("stream", st.cfg.Name).
			Build()
	}
	return nil
}

// Flush empties the FIFO
func (st *Stream) Flush() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.usableLocked(); err != nil {
		return err
	}
	st.fifo.Reset()
	st.pending = nil
	return nil
}

// WritableSize returns the free space of the render FIFO
func (st *Stream) WritableSize() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return 0
	}
	return st.fifo.Free()
}

// Write queues render data for the device callback
func (st *Stream) Write(p []byte) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return 0, err
	}
	p = p[:min(len(p), st.fifo.Free())]
	if len(p) == 0 {
		return 0, nil
	}
	n, err := st.fifo.Write(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	if n > 0 {
		st.underrun = false
	}
	return n, nil
}

// ReadableSize returns the captured bytes waiting
func (st *Stream) ReadableSize() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return 0
	}
	return st.fifo.Length() + len(st.pending)
}

// Peek returns the next captured chunk of at most one fragment
func (st *Stream) Peek() ([]byte, int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return nil, 0, err
	}
	if st.pending != nil {
		return st.pending, len(st.pending), nil
	}
	n := min(st.fifo.Length(), st.attr.FragSize)
	if n == 0 {
		return nil, 0, nil
	}
	chunk := make([]byte, n)
	read, err := st.fifo.Read(chunk)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil, 0, err
	}
	st.pending = chunk[:read]
	return st.pending, read, nil
}

// Drop releases the chunk returned by Peek
func (st *Stream) Drop() error {
	st.mu.Lock()
	st.pending = nil
	st.mu.Unlock()
	return nil
}

// UpdateTiming has nothing to wait for; the device clock is always current
func (st *Stream) UpdateTiming(ctx context.Context) error {
	return ctx.Err()
}

// Time is the duration of audio the device has processed
func (st *Stream) Time() (time.Duration, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.usableLocked(); err != nil {
		return 0, err
	}
	if st.rate == 0 {
		return 0, nil
	}
	return time.Duration(st.frames) * time.Second / time.Duration(st.rate), nil
}

// SetRate is not supported by running miniaudio devices
func (st *Stream) SetRate(rate uint32) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.usableLocked(); err != nil {
		return err
	}
	if rate == st.rate {
		return nil
	}
	return errors.New(audiocore.ErrNotImplemented).
		Component(componentMalgo).
		Context("operation", "set_rate").
		Context("rate", rate).
		Build()
}

// SetUnderflowCallback registers the render underflow notification
func (st *Stream) SetUnderflowCallback(fn func()) {
	st.mu.Lock()
	st.underflowFn = fn
	st.mu.Unlock()
}

// Close stops and uninitializes the device
func (st *Stream) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	st.corked = true
	st.fifo.Reset()
	st.pending = nil
	dev := st.device
	st.device = nil
	st.mu.Unlock()

	if dev != nil {
		if dev.IsStarted() {
			_ = dev.Stop()
		}
		dev.Uninit()
	}
	if st.srv != nil {
		st.srv.removeStream(st)
	}
	return nil
}

// Underflows returns how many callbacks found the render FIFO short
func (st *Stream) Underflows() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.underflows
}

// Overruns returns how many callbacks found the capture FIFO full
func (st *Stream) Overruns() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.overruns
}

func (st *Stream) invalidate() {
	st.mu.Lock()
	st.ready = false
	st.mu.Unlock()
	_ = st.Close()
}

func (st *Stream) usableLocked() error {
	if st.closed || !st.ready {
		return errors.New(audiocore.ErrDeviceInvalidated).
			Component(componentMalgo).
			Context("stream", st.cfg.Name).
			Build()
	}
	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

var _ host.Stream = (*Stream)(nil)
