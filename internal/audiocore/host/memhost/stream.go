package memhost

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

// Stream is a simulated host stream. The server-side queue is a
// smallnest ring buffer sized to the target length.
type Stream struct {
	srv  *Server
	cfg  host.StreamConfig
	attr host.BufferAttr

	mu      sync.Mutex
	queue   *ringbuffer.RingBuffer
	pending []byte // chunk handed out by Peek, released by Drop

	corked      bool
	ready       bool
	closed      bool
	underrun    bool
	elapsed     time.Duration // uncorked clock time
	lastClock   time.Duration
	processed   int64 // bytes played or captured
	overruns    int
	underflows  int
	underflowFn func()
	peekErr     error
	rendered    []byte
	keepRender  bool
}

func newStream(srv *Server, cfg host.StreamConfig, minReq time.Duration) (*Stream, error) {
	spec := cfg.Spec
	attr := cfg.Attr
	frame := spec.FrameSize()

	floor := max(spec.BytesFor(audiocore.FromDuration(minReq)), frame)
	attr.MinReq = alignUp(max(attr.MinReq, floor), frame)
	attr.FragSize = alignUp(max(attr.FragSize, floor), frame)
	if attr.TLength < 2*attr.MinReq {
		attr.TLength = 2 * attr.MinReq
	}
	attr.TLength = alignUp(attr.TLength, frame)
	if attr.MaxLength < attr.TLength {
		attr.MaxLength = attr.TLength
	}

	size := attr.TLength
	if cfg.Flow == audiocore.FlowCapture {
		size = attr.MaxLength
	}
	if size <= 0 {
		return nil, errors.New(audiocore.ErrInvalidArgument).
			Component(componentMemhost).
			Context("tlength", attr.TLength).
			Build()
	}

	return &Stream{
		srv:       srv,
		cfg:       cfg,
		attr:      attr,
		queue:     ringbuffer.New(size),
		corked:    true,
		ready:     true,
		lastClock: srv.clock.Now(),
	}, nil
}

func alignUp(n, frame int) int {
	if rem := n % frame; rem != 0 {
		n += frame - rem
	}
	return n
}

// Attributes returns the negotiated buffer attributes
func (st *Stream) Attributes() host.BufferAttr {
	return st.attr
}

// Ready reports whether the stream is usable
func (st *Stream) Ready() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ready && !st.closed
}

// Invalidate simulates the device going away
func (st *Stream) Invalidate() {
	st.mu.Lock()
	st.ready = false
	st.mu.Unlock()
}

// Cork pauses or resumes the stream clock
func (st *Stream) Cork(corked bool) error {
	st.mu.Lock()
	if err := st.usableLocked(); err != nil {
		st.mu.Unlock()
		return err
	}
	fn := st.advanceLocked()
	st.corked = corked
	if !corked {
		st.underrun = false
	}
	st.mu.Unlock()

	notify(fn)
	return nil
}

// Flush drops everything queued on the server side
func (st *Stream) Flush() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return err
	}
	st.queue.Reset()
	st.pending = nil
	return nil
}

// WritableSize returns the bytes the server queue can still take
func (st *Stream) WritableSize() int {
	st.mu.Lock()
	fn := st.advanceLocked()
	free := 0
	if !st.closed {
		free = st.queue.Free()
	}
	st.mu.Unlock()

	notify(fn)
	return free
}

// Write queues render data, accepting as much as fits
func (st *Stream) Write(p []byte) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return 0, err
	}
	p = p[:min(len(p), st.queue.Free())]
	if len(p) == 0 {
		return 0, nil
	}
	n, err := st.queue.Write(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	if n > 0 {
		st.underrun = false
	}
	return n, nil
}

// ReadableSize returns the captured bytes waiting, including a peeked
// chunk that was not dropped yet.
func (st *Stream) ReadableSize() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.advanceLocked()
	if st.closed {
		return 0
	}
	return st.queue.Length() + len(st.pending)
}

// Peek returns the next chunk of at most one fragment
func (st *Stream) Peek() ([]byte, int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return nil, 0, err
	}
	if st.peekErr != nil {
		return nil, 0, st.peekErr
	}
	if st.pending != nil {
		return st.pending, len(st.pending), nil
	}

	n := min(st.queue.Length(), st.attr.FragSize)
	if n == 0 {
		return nil, 0, nil
	}
	chunk := make([]byte, n)
	read, err := st.queue.Read(chunk)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil, 0, err
	}
	st.pending = chunk[:read]
	return st.pending, read, nil
}

// Drop releases the chunk returned by Peek
func (st *Stream) Drop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pending = nil
	return nil
}

// UpdateTiming advances the simulated server to the current clock
func (st *Stream) UpdateTiming(ctx context.Context) error {
	st.mu.Lock()
	fn := st.advanceLocked()
	st.mu.Unlock()
	notify(fn)
	return ctx.Err()
}

// Time returns the uncorked running time of the stream
func (st *Stream) Time() (time.Duration, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return 0, err
	}
	return st.elapsed, nil
}

// SetRate changes the stream rate; queued bytes are kept
func (st *Stream) SetRate(rate uint32) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.usableLocked(); err != nil {
		return err
	}
	if rate == 0 {
		return errors.New(audiocore.ErrInvalidArgument).
			Component(componentMemhost).
			Context("rate", rate).
			Build()
	}
	st.advanceLocked()
	st.cfg.Spec.Rate = rate
	// continue the byte accounting at the new rate
	st.processed = int64(st.cfg.Spec.BytesFor(audiocore.FromDuration(st.elapsed)))
	return nil
}

// SetUnderflowCallback registers the render underflow notification
func (st *Stream) SetUnderflowCallback(fn func()) {
	st.mu.Lock()
	st.underflowFn = fn
	st.mu.Unlock()
}

// Close releases the stream
func (st *Stream) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	st.queue.Reset()
	st.pending = nil
	st.mu.Unlock()

	st.srv.removeStream(st)
	return nil
}

// Config returns the configuration the stream was opened with
func (st *Stream) Config() host.StreamConfig {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cfg
}

// Corked reports whether the stream is paused
func (st *Stream) Corked() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.corked
}

// Queued returns the bytes waiting in the server queue
func (st *Stream) Queued() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.queue.Length()
}

// Underflows returns how many times a playing render stream ran dry
func (st *Stream) Underflows() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.underflows
}

// Overruns returns how many capture periods were lost to a full queue
func (st *Stream) Overruns() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.overruns
}

// SetPeekError makes Peek fail until cleared with nil
func (st *Stream) SetPeekError(err error) {
	st.mu.Lock()
	st.peekErr = err
	st.mu.Unlock()
}

// RecordRendered keeps a copy of every played byte for inspection
func (st *Stream) RecordRendered(keep bool) {
	st.mu.Lock()
	st.keepRender = keep
	st.mu.Unlock()
}

// Rendered returns the bytes played while recording was enabled
func (st *Stream) Rendered() []byte {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]byte(nil), st.rendered...)
}

func (st *Stream) usableLocked() error {
	if st.closed || !st.ready {
		return errors.New(audiocore.ErrDeviceInvalidated).
			Component(componentMemhost).
			Context("stream", st.cfg.Name).
			Build()
	}
	return nil
}

// advanceLocked moves the simulated server to the clock's current time. It
// returns the underflow callback to run once the lock is released.
func (st *Stream) advanceLocked() func() {
	now := st.srv.clock.Now()
	if !st.corked && !st.closed {
		st.elapsed += now - st.lastClock
	}
	st.lastClock = now

	frame := st.cfg.Spec.FrameSize()
	target := int64(st.cfg.Spec.BytesFor(audiocore.FromDuration(st.elapsed)))
	delta := int(target - st.processed)
	if delta <= 0 || frame == 0 {
		return nil
	}
	st.processed = target

	if st.cfg.Flow == audiocore.FlowCapture {
		st.produceLocked(delta)
		return nil
	}
	return st.consumeLocked(delta)
}

func (st *Stream) consumeLocked(n int) func() {
	take := min(n, st.queue.Length())
	if take > 0 {
		played := make([]byte, take)
		read, _ := st.queue.Read(played)
		if st.keepRender {
			st.rendered = append(st.rendered, played[:read]...)
		}
	}
	if take == n || st.underrun {
		return nil
	}

	st.underrun = true
	st.underflows++
	st.srv.log.Debug("underflow",
		logger.String("stream", st.cfg.Name),
		logger.Int("missing_bytes", n-take))
	return st.underflowFn
}

func (st *Stream) produceLocked(n int) {
	data := make([]byte, n)
	if st.srv.generator != nil {
		st.srv.generator(st.cfg.Spec, data)
	} else {
		silence(st.cfg.Spec.Encoding, data)
	}

	room := min(n, st.queue.Free())
	if room < n {
		st.overruns++
	}
	if room > 0 {
		_, _ = st.queue.Write(data[:room])
	}
}

func silence(enc format.Encoding, p []byte) {
	v := enc.SilenceByte()
	for i := range p {
		p[i] = v
	}
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

var _ host.Stream = (*Stream)(nil)
