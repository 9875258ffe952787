package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/audiocore/mixer"
	"github.com/tphakala/pulseshim/internal/audiocore/ringbuf"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

// Event is signalled by the timing loop after every tick of an
// event-driven stream.
type Event interface {
	Signal()
}

// ChanEvent is an Event backed by a one-slot channel; signals coalesce
// while nobody is waiting.
type ChanEvent chan struct{}

// NewChanEvent returns a ready ChanEvent
func NewChanEvent() ChanEvent {
	return make(ChanEvent, 1)
}

// Signal wakes one waiter without blocking
func (c ChanEvent) Signal() {
	select {
	case c <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signalled or ctx ends
func (c ChanEvent) Wait(ctx context.Context) error {
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRequest describes a new stream
type CreateRequest struct {
	Name     string
	Device   string // host device id, empty for the default device
	Flow     audiocore.Flow
	Mode     audiocore.ShareMode
	Flags    audiocore.StreamFlags
	Duration audiocore.RefTime
	Period   audiocore.RefTime
	Format   *format.WaveFormat
}

// StreamInfo is a snapshot of a live stream
type StreamInfo struct {
	Handle        Handle                `json:"handle"`
	Session       string                `json:"session"`
	Name          string                `json:"name"`
	Flow          string                `json:"flow"`
	Format        string                `json:"format"`
	Started       bool                  `json:"started"`
	Period        time.Duration         `json:"period"`
	BufferFrames  int                   `json:"buffer_frames"`
	PaddingFrames int                   `json:"padding_frames"`
	Position      uint64                `json:"position_bytes"`
	Invalidated   bool                  `json:"invalidated"`
	Gains         []float32             `json:"gains"`
	Flags         audiocore.StreamFlags `json:"flags"`
}

type stream struct {
	handle  Handle
	session uuid.UUID
	name    string
	device  string
	flow    audiocore.Flow
	flags   audiocore.StreamFlags
	spec    format.SampleSpec
	frame   int
	hs      host.Stream

	period        audiocore.RefTime
	periodBytes   int
	bufsizeFrames int

	ring *ringbuf.Ring       // render
	pool *ringbuf.PacketPool // capture

	master      float32
	clientVol   []float32
	sessionVol  []float32
	gains       []float32
	event       Event
	started     bool
	justStarted bool
	reference   time.Duration // timing loop schedule, host stream time
	leased      int           // capture frames leased to the client
	lastPos     uint64
	invalid     bool

	underran atomic.Bool
	quit     atomic.Bool
	wake     chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	loopCtx  context.Context
}

// geometry is the negotiated period and buffer size of a new stream
type geometry struct {
	period        audiocore.RefTime
	periodBytes   int
	bufsizeFrames int
	bufsizeBytes  int
}

// computeGeometry applies the shared-mode period rules to a requested
// duration and period.
func computeGeometry(spec format.SampleSpec, duration, period audiocore.RefTime, periods devicePeriods) geometry {
	if period == 0 {
		period = periods.def
	}
	if period < periods.min {
		period = periods.min
	}
	if duration < 2*periods.def {
		period = periods.min
	}
	if duration < 2*period {
		duration = 2 * period
	}
	if duration <= 2*period {
		period /= 2
	}

	var frames int64
	if duration >= audiocore.MaxBufferDuration {
		frames = 2 * int64(spec.Rate)
	} else {
		num := int64(duration) * int64(spec.Rate)
		den := int64(audiocore.RefTimePerSecond)
		frames = (num + den - 1) / den
	}

	periodBytes := max(spec.BytesFor(period), spec.FrameSize())
	return geometry{
		period:        period,
		periodBytes:   periodBytes,
		bufsizeFrames: int(frames),
		bufsizeBytes:  int(frames) * spec.FrameSize(),
	}
}

// Create opens a stream and starts its timing loop. Nothing stays
// allocated when it fails.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (Handle, error) {
	g := e.lock()
	defer g.Unlock()

	if !e.attached {
		return 0, errors.New(audiocore.ErrNotInitialized).
			Component(componentEngine).
			Context("reason", "engine not attached").
			Build()
	}

	switch req.Mode {
	case audiocore.ShareModeShared:
	case audiocore.ShareModeExclusive:
		return 0, errors.New(audiocore.ErrExclusiveMode).
			Component(componentEngine).
			Context("stream", req.Name).
			Build()
	default:
		return 0, errors.New(audiocore.ErrNotInitialized).
			Component(componentEngine).
			Context("share_mode", int(req.Mode)).
			Build()
	}

	if req.Flags&^audiocore.ValidStreamFlags != 0 {
		return 0, errors.New(audiocore.ErrInvalidArgument).
			Component(componentEngine).
			Context("flags", uint32(req.Flags)).
			Build()
	}
	if req.Format == nil {
		return 0, errors.New(audiocore.ErrNilPointer).
			Component(componentEngine).
			Context("argument", "format").
			Build()
	}
	if err := format.Validate(req.Format); err != nil {
		return 0, err
	}
	spec, err := format.ToSampleSpec(req.Format)
	if err != nil {
		return 0, err
	}

	if err := e.connectLocked(ctx); err != nil {
		return 0, err
	}

	geo := computeGeometry(spec, req.Duration, req.Period, e.periodsFor(req.Flow))
	if geo.bufsizeBytes > e.cfg.MaxBufferBytes {
		return 0, errors.New(audiocore.ErrOutOfMemory).
			Component(componentEngine).
			Context("buffer_bytes", geo.bufsizeBytes).
			Context("limit", e.cfg.MaxBufferBytes).
			Build()
	}

	s := &stream{
		session:       uuid.New(),
		name:          req.Name,
		device:        req.Device,
		flow:          req.Flow,
		flags:         req.Flags,
		spec:          spec,
		frame:         spec.FrameSize(),
		period:        geo.period,
		periodBytes:   geo.periodBytes,
		bufsizeFrames: geo.bufsizeFrames,
		master:        1,
		clientVol:     mixer.Unity(spec.Channels),
		sessionVol:    mixer.Unity(spec.Channels),
		gains:         mixer.Unity(spec.Channels),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	silence := spec.Encoding.SilenceByte()
	if s.flow == audiocore.FlowCapture {
		capacity := roundUp(geo.bufsizeBytes, geo.periodBytes)
		if s.pool, err = ringbuf.NewPacketPool(capacity, geo.periodBytes, silence); err != nil {
			return 0, err
		}
	} else if s.ring, err = ringbuf.NewRing(geo.bufsizeBytes, s.frame, silence); err != nil {
		return 0, err
	}

	hs, err := e.server.Open(ctx, host.StreamConfig{
		Name:   req.Name,
		Device: req.Device,
		Flow:   req.Flow,
		Spec:   spec,
		Attr: host.BufferAttr{
			MaxLength: 2 * geo.bufsizeBytes,
			TLength:   geo.bufsizeBytes,
			MinReq:    geo.periodBytes,
			FragSize:  geo.periodBytes,
		},
	})
	if err != nil {
		return 0, errors.New(audiocore.ErrEndpointCreate).
			Component(componentEngine).
			Context("stream", req.Name).
			Context("device", req.Device).
			Context("cause", err.Error()).
			Build()
	}
	s.hs = hs

	if s.handle, err = e.handles.insert(s); err != nil {
		_ = hs.Close()
		return 0, err
	}
	if s.flow == audiocore.FlowRender {
		hs.SetUnderflowCallback(e.underflowHandler(s))
	}

	s.loopCtx, s.cancel = context.WithCancel(context.Background())
	go e.timingLoop(s)

	e.metrics().StreamOpened(s.flow.String())
	e.log.Info("stream created",
		logger.Uint64("handle", uint64(s.handle)),
		logger.String("session", s.session.String()),
		logger.String("flow", s.flow.String()),
		logger.String("spec", spec.String()),
		logger.Duration("period", s.period.Duration()),
		logger.Int("buffer_frames", s.bufsizeFrames))
	return s.handle, nil
}

// Release stops the timing loop, closes the host stream and retires the
// handle. It is the only operation allowed on an invalidated stream.
func (e *Engine) Release(h Handle) error {
	g := e.lock()
	s := e.handles.remove(h)
	if s == nil {
		g.Unlock()
		return notInitialized(h)
	}
	s.quit.Store(true)
	s.cancel()
	s.wakeUp()
	g.Unlock()

	e.join(s)

	if err := s.hs.Close(); err != nil {
		e.log.Warn("host stream close failed",
			logger.Uint64("handle", uint64(h)),
			logger.Error(err))
	}
	e.metrics().StreamClosed(s.flow.String())
	e.log.Debug("stream released", logger.Uint64("handle", uint64(h)))
	return nil
}

// join waits for the timing loop with a bounded wait
func (e *Engine) join(s *stream) {
	select {
	case <-s.done:
	case <-time.After(e.cfg.JoinTimeout):
		e.log.Warn("timing loop did not exit in time",
			logger.Uint64("handle", uint64(s.handle)),
			logger.Duration("timeout", e.cfg.JoinTimeout))
	}
}

func (e *Engine) underflowHandler(s *stream) func() {
	return func() {
		s.underran.Store(true)
		e.metrics().RecordUnderrun()
		if e.underrunLog.Allow() {
			e.log.Warn("render underrun",
				logger.Uint64("handle", uint64(s.handle)),
				logger.String("stream", s.name))
		}
	}
}

// streamLocked resolves a handle. Host invalidation is sticky.
func (e *Engine) streamLocked(h Handle) (*stream, error) {
	s := e.handles.lookup(h)
	if s == nil {
		return nil, notInitialized(h)
	}
	if !s.invalid && !s.hs.Ready() {
		s.invalid = true
		e.log.Warn("host stream invalidated", logger.Uint64("handle", uint64(h)))
	}
	if s.invalid {
		return nil, errors.New(audiocore.ErrDeviceInvalidated).
			Component(componentEngine).
			StreamContext(uint32(h), s.flow.String()).
			Build()
	}
	return s, nil
}

func (s *stream) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *stream) info() StreamInfo {
	info := StreamInfo{
		Handle:       s.handle,
		Session:      s.session.String(),
		Name:         s.name,
		Flow:         s.flow.String(),
		Format:       s.spec.String(),
		Started:      s.started,
		Period:       s.period.Duration(),
		BufferFrames: s.bufsizeFrames,
		Invalidated:  s.invalid,
		Gains:        append([]float32(nil), s.gains...),
		Flags:        s.flags,
	}
	if s.frame > 0 {
		info.PaddingFrames = s.held() / s.frame
	}
	info.Position = s.rawPosition()
	return info
}

// held is the client padding in bytes
func (s *stream) held() int {
	if s.ring != nil {
		return s.ring.Held()
	}
	return s.pool.Held()
}

// rawPosition is the stream position in bytes before the monotonic clamp
func (s *stream) rawPosition() uint64 {
	if s.ring != nil {
		return s.ring.ClockWritten() - uint64(s.ring.Held())
	}
	return s.pool.ClockWritten()
}

func notInitialized(h Handle) error {
	return errors.New(audiocore.ErrNotInitialized).
		Component(componentEngine).
		Context("handle", uint32(h)).
		Build()
}

func roundUp(n, unit int) int {
	if rem := n % unit; rem != 0 {
		n += unit - rem
	}
	return n
}
