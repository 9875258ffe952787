package engine

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/mixer"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

// CapturePacket is a capture lease. Frames is 0 when no packet is ready.
type CapturePacket struct {
	Data           []byte
	Frames         int
	Flags          audiocore.BufferFlags
	DevicePosition uint64 // frames
	QPCPosition    uint64 // 100 ns units
}

// Start uncorks the host stream. Render data committed before the start
// is handed to the host first.
func (e *Engine) Start(h Handle) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return err
	}
	if s.flags&audiocore.StreamFlagEventCallback != 0 && s.event == nil {
		return streamError(audiocore.ErrEventHandleNotSet, s)
	}
	if s.started {
		return streamError(audiocore.ErrNotStopped, s)
	}

	if s.ring != nil && s.ring.Pending() > 0 {
		if _, err := s.ring.DrainTo(s.hs, s.hs.WritableSize()); err != nil {
			e.log.Debug("initial host write failed", logger.Error(err))
		}
	}
	if err := s.hs.Cork(false); err != nil {
		return errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryHost).
			StreamContext(uint32(h), s.flow.String()).
			Context("operation", "uncork").
			Build()
	}

	s.started = true
	s.justStarted = true
	return nil
}

// Stop pauses the stream. Stopping a stopped stream is a StatusFalse
// success that changes nothing.
func (e *Engine) Stop(h Handle) (Status, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return StatusOK, err
	}
	if !s.started {
		return StatusFalse, nil
	}

	if s.flow == audiocore.FlowRender {
		if err := s.hs.Cork(true); err != nil {
			return StatusOK, errors.New(err).
				Component(componentEngine).
				Category(errors.CategoryHost).
				StreamContext(uint32(h), s.flow.String()).
				Context("operation", "cork").
				Build()
		}
	}
	s.started = false
	return StatusOK, nil
}

// Reset discards buffered audio of a stopped stream
func (e *Engine) Reset(h Handle) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return err
	}
	if s.started {
		return streamError(audiocore.ErrNotStopped, s)
	}

	if s.ring != nil {
		if s.ring.Leased() > 0 {
			return streamError(audiocore.ErrOperationPending, s)
		}
		if err := s.hs.Flush(); err != nil {
			e.log.Debug("host flush failed", logger.Error(err))
		}
		s.ring.Flush()
		s.lastPos = 0
		return nil
	}

	if s.leased > 0 {
		return streamError(audiocore.ErrOperationPending, s)
	}
	s.pool.Reset()
	return nil
}

// GetRenderBuffer leases frames of silence-filled ring space
func (e *Engine) GetRenderBuffer(h Handle, frames int) ([]byte, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.renderLocked(h)
	if err != nil {
		return nil, err
	}
	if frames < 0 {
		return nil, streamError(audiocore.ErrInvalidSize, s)
	}
	return s.ring.Lease(frames * s.frame)
}

// ReleaseRenderBuffer commits frames of the outstanding lease. The stream
// gains are applied to the committed audio.
func (e *Engine) ReleaseRenderBuffer(h Handle, frames int, flags audiocore.BufferFlags) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.renderLocked(h)
	if err != nil {
		return err
	}
	if frames < 0 {
		return streamError(audiocore.ErrInvalidSize, s)
	}

	silent := flags&audiocore.BufferFlagSilent != 0
	enc := s.spec.Encoding
	gains := s.gains
	return s.ring.Commit(frames*s.frame, silent, func(buf []byte) error {
		return mixer.Apply(enc, buf, gains)
	})
}

// GetCaptureBuffer leases the oldest filled packet
func (e *Engine) GetCaptureBuffer(h Handle) (CapturePacket, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.captureLocked(h)
	if err != nil {
		return CapturePacket{}, err
	}
	if s.leased > 0 {
		return CapturePacket{}, streamError(audiocore.ErrOutOfOrder, s)
	}

	pkt := s.pool.Locked()
	if pkt == nil {
		if pkt, err = s.pool.Lock(); err != nil {
			return CapturePacket{}, err
		}
	}
	if pkt == nil {
		return CapturePacket{}, nil
	}

	out := CapturePacket{
		Data:           pkt.Data,
		Frames:         s.periodBytes / s.frame,
		DevicePosition: s.pool.Position(pkt) / uint64(s.frame),
		QPCPosition:    uint64(pkt.Stamp),
	}
	if pkt.Discontinuous {
		out.Flags |= audiocore.BufferFlagDataDiscontinuity
		e.metrics().RecordDiscontinuity()
	}
	s.leased = out.Frames
	return out, nil
}

// ReleaseCaptureBuffer returns the leased packet once done frames were
// read. Zero frames keeps the packet for the next lease.
func (e *Engine) ReleaseCaptureBuffer(h Handle, done int) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.captureLocked(h)
	if err != nil {
		return err
	}
	if done == 0 {
		s.leased = 0
		return nil
	}
	if s.leased == 0 {
		return streamError(audiocore.ErrOutOfOrder, s)
	}
	if done != s.leased {
		return errors.New(audiocore.ErrInvalidSize).
			Component(componentEngine).
			StreamContext(uint32(h), s.flow.String()).
			Context("leased_frames", s.leased).
			Context("done_frames", done).
			Build()
	}

	if err := s.pool.Consume(); err != nil {
		return err
	}
	s.leased = 0
	return nil
}

// CurrentPadding returns the frames the client has buffered
func (e *Engine) CurrentPadding(h Handle) (int, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, err
	}
	return s.held() / s.frame, nil
}

// NextPacketSize returns the frames of the next capture packet, 0 when
// none is filled.
func (e *Engine) NextPacketSize(h Handle) (int, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.captureLocked(h)
	if err != nil {
		return 0, err
	}
	if s.pool.Locked() != nil || s.pool.Head() != nil {
		return s.periodBytes / s.frame, nil
	}
	return 0, nil
}

// BufferSize returns the client buffer size in frames
func (e *Engine) BufferSize(h Handle) (int, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, err
	}
	return s.bufsizeFrames, nil
}

// Latency returns the host request latency plus one period
func (e *Engine) Latency(h Handle) (audiocore.RefTime, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, err
	}

	attr := s.hs.Attributes()
	bytes := attr.MinReq
	if s.flow == audiocore.FlowCapture {
		bytes = attr.FragSize
	}
	frames := int64(bytes / s.frame)
	lat := audiocore.RefTime(frames * int64(audiocore.RefTimePerSecond) / int64(s.spec.Rate))
	return lat + s.period, nil
}

// Frequency returns the position units per second; positions are bytes
func (e *Engine) Frequency(h Handle) (uint64, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, err
	}
	return uint64(s.spec.Rate) * uint64(s.frame), nil
}

// Position returns the stream position in bytes, or in frames when device
// is set, together with the performance counter time in 100 ns units.
// Positions never move backwards.
func (e *Engine) Position(h Handle, device bool) (pos, qpc uint64, err error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, 0, err
	}

	pos = s.rawPosition()
	if pos < s.lastPos {
		pos = s.lastPos
	} else {
		s.lastPos = pos
	}
	if device {
		pos /= uint64(s.frame)
	}
	return pos, uint64(audiocore.FromDuration(e.clock.Now())), nil
}

// SetVolumes composes master, client and session volumes into the gains
// applied on commit.
func (e *Engine) SetVolumes(h Handle, master float32, client, session []float32) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return err
	}
	gains, err := mixer.Compose(master, client, session, s.spec.Channels)
	if err != nil {
		return err
	}
	s.master = master
	s.clientVol = append(s.clientVol[:0], client...)
	s.sessionVol = append(s.sessionVol[:0], session...)
	s.gains = gains
	return nil
}

// Volumes returns the master, client and session volumes
func (e *Engine) Volumes(h Handle) (master float32, client, session []float32, err error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, nil, nil, err
	}
	return s.master, append([]float32(nil), s.clientVol...), append([]float32(nil), s.sessionVol...), nil
}

// SetEventHandle sets the event an event-driven stream signals each tick
func (e *Engine) SetEventHandle(h Handle, ev Event) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return err
	}
	if ev == nil {
		return streamError(audiocore.ErrInvalidArgument, s)
	}
	if s.flags&audiocore.StreamFlagEventCallback == 0 {
		return streamError(audiocore.ErrEventHandleUnused, s)
	}
	if s.event != nil {
		return streamError(audiocore.ErrUnexpected, s)
	}
	s.event = ev
	return nil
}

// SetSampleRate changes the rate of a rate-adjustable stream. The buffer
// geometry is kept.
func (e *Engine) SetSampleRate(h Handle, rate uint32) error {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return err
	}
	if s.flags&audiocore.StreamFlagRateAdjust == 0 || rate == 0 {
		return errors.New(audiocore.ErrInvalidArgument).
			Component(componentEngine).
			StreamContext(uint32(h), s.flow.String()).
			Context("rate", rate).
			Build()
	}
	if err := s.hs.SetRate(rate); err != nil {
		return err
	}
	s.spec.Rate = rate
	return nil
}

// IsStarted reports whether the stream is running
func (e *Engine) IsStarted(h Handle) (bool, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return false, err
	}
	return s.started, nil
}

// Channels returns the channel count of a stream
func (e *Engine) Channels(h Handle) (int, error) {
	g := e.lock()
	defer g.Unlock()

	s, err := e.streamLocked(h)
	if err != nil {
		return 0, err
	}
	return s.spec.Channels, nil
}

func (e *Engine) renderLocked(h Handle) (*stream, error) {
	s, err := e.streamLocked(h)
	if err != nil {
		return nil, err
	}
	if s.ring == nil {
		return nil, streamError(audiocore.ErrWrongEndpointType, s)
	}
	return s, nil
}

func (e *Engine) captureLocked(h Handle) (*stream, error) {
	s, err := e.streamLocked(h)
	if err != nil {
		return nil, err
	}
	if s.pool == nil {
		return nil, streamError(audiocore.ErrWrongEndpointType, s)
	}
	return s, nil
}

func streamError(sentinel error, s *stream) error {
	return errors.New(sentinel).
		Component(componentEngine).
		StreamContext(uint32(s.handle), s.flow.String()).
		Build()
}
