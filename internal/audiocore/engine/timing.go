package engine

import (
	"time"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/logger"
)

// timingLoop paces one stream until Release sets quit
func (e *Engine) timingLoop(s *stream) {
	defer close(s.done)

	delay := s.period.Duration()
	for {
		select {
		case <-e.after(delay):
		case <-s.wake:
		}
		if s.quit.Load() {
			return
		}
		delay = e.tick(s)
	}
}

// tick runs one timing loop iteration and returns the delay until the
// next one. Host timing updates run with the engine lock released.
func (e *Engine) tick(s *stream) time.Duration {
	g := e.lock()
	defer g.Unlock()

	period := s.period.Duration()
	if s.quit.Load() {
		return period
	}

	var err error
	g.Blocking(func() { err = s.hs.UpdateTiming(s.loopCtx) })
	if s.quit.Load() || err != nil || !s.hs.Ready() {
		return period
	}
	now, err := s.hs.Time()
	if err != nil {
		return period
	}

	delay := period
	capture := s.flow == audiocore.FlowCapture
	if s.started && (capture || s.ring.Held() > 0) {
		delay = e.pace(s, now, period)
		if capture {
			e.readHost(s, true)
		} else {
			e.writeHost(s)
			s.ring.Advance(min(s.periodBytes, s.ring.Held()))
		}
	} else {
		s.reference = now
		if capture {
			e.readHost(s, false)
		}
	}

	if s.event != nil {
		s.event.Signal()
	}
	return delay
}

// pace keeps the loop locked to the host clock. After a start or an
// underrun it lets the configured warm-up pass before correcting drift;
// corrections are clamped to half a period.
func (e *Engine) pace(s *stream, now, period time.Duration) time.Duration {
	if s.underran.Load() && s.flow == audiocore.FlowRender {
		s.reference = now
		s.justStarted = true
	}

	if s.justStarted {
		if now-s.reference > time.Duration(e.cfg.WarmupPeriods)*period {
			s.justStarted = false
			s.reference = now
		}
		return period
	}

	adjust := s.reference + period - now
	adjust = max(min(adjust, period/2), -period/2)
	s.reference += period
	e.metrics().RecordTick(s.flow.String(), adjust)
	return period + adjust
}

// writeHost hands pending ring data to the host. A pending underrun is
// answered with silence first so the host does not immediately run dry
// again.
func (e *Engine) writeHost(s *stream) {
	writable := s.hs.WritableSize()

	if s.underran.Swap(false) {
		n, err := s.ring.Prebuffer(s.hs, writable)
		if err != nil {
			e.log.Debug("prebuffer failed",
				logger.Uint64("handle", uint64(s.handle)),
				logger.Error(err))
		}
		writable -= n
	}

	n, err := s.ring.DrainTo(s.hs, writable)
	if err != nil {
		e.log.Debug("host write failed",
			logger.Uint64("handle", uint64(s.handle)),
			logger.Error(err))
	}
	if n > 0 {
		e.metrics().RecordHostBytes(s.flow.String(), n)
	}
}

// readHost moves whole periods from the host into capture packets. A
// stopped stream still drains the host so stale audio does not pile up.
func (e *Engine) readHost(s *stream, started bool) {
	readable := s.hs.ReadableSize()
	stamp := audiocore.FromDuration(e.clock.Now())
	filled, err := s.pool.Fill(s.hs, readable, started, stamp)
	if err != nil {
		e.log.Debug("host read failed",
			logger.Uint64("handle", uint64(s.handle)),
			logger.Error(err))
	}
	if filled > 0 {
		e.metrics().RecordHostBytes(s.flow.String(), filled*s.periodBytes)
	}
}
