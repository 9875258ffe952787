// Package engine implements the stream engine: stream lifecycle, the
// handle table, buffer exchange with clients and one timing loop per
// stream pacing data between the stream ring and the host server.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

const componentEngine = "engine"

// Status distinguishes the successful outcomes clients tell apart
type Status int

const (
	StatusOK Status = iota
	// StatusFalse is a success that did nothing, such as stopping a
	// stopped stream or suggesting a closer format.
	StatusFalse
)

// Priority is the driver preference reported by TestConnect
type Priority int

const (
	PriorityUnavailable Priority = iota
	PriorityLow
	PriorityNeutral
	PriorityPreferred
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNeutral:
		return "neutral"
	case PriorityPreferred:
		return "preferred"
	case PriorityUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Config tunes the engine
type Config struct {
	AppName        string
	DefaultPeriod  audiocore.RefTime
	MinimumPeriod  audiocore.RefTime
	MaxBufferBytes int
	JoinTimeout    time.Duration
	WarmupPeriods  int
	EndpointTTL    time.Duration

	// Clock stamps capture packets and positions; nil uses the system clock
	Clock audiocore.Clock
	// After schedules timing loop wakeups; nil uses time.After
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		AppName:        conf.DefaultAppName,
		DefaultPeriod:  audiocore.DefaultPeriod,
		MinimumPeriod:  audiocore.MinimumPeriod,
		MaxBufferBytes: conf.DefaultMaxBuffer,
		JoinTimeout:    conf.DefaultJoinTimeout,
		WarmupPeriods:  1,
		EndpointTTL:    conf.DefaultEndpointTTL,
	}
}

// ConfigFromSettings maps loaded settings onto an engine Config
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	if s == nil {
		return cfg
	}
	if s.Host.AppName != "" {
		cfg.AppName = s.Host.AppName
	}
	if s.Engine.DefaultPeriod > 0 {
		cfg.DefaultPeriod = audiocore.FromDuration(s.Engine.DefaultPeriod)
	}
	if s.Engine.MinimumPeriod > 0 {
		cfg.MinimumPeriod = audiocore.FromDuration(s.Engine.MinimumPeriod)
	}
	if s.Engine.MaxBufferBytes > 0 {
		cfg.MaxBufferBytes = s.Engine.MaxBufferBytes
	}
	if s.Engine.JoinTimeout > 0 {
		cfg.JoinTimeout = s.Engine.JoinTimeout
	}
	if s.Engine.WarmupPeriods > 0 {
		cfg.WarmupPeriods = s.Engine.WarmupPeriods
	}
	if s.Cache.EndpointTTL > 0 {
		cfg.EndpointTTL = s.Cache.EndpointTTL
	}
	return cfg
}

// devicePeriods is what TestConnect learned about one direction
type devicePeriods struct {
	def, min audiocore.RefTime
	spec     format.SampleSpec
}

// Engine owns every stream. A single mutex guards all engine state,
// including the state of each stream; timing loops take it for the body
// of every tick.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	server   host.Server
	attached bool
	handles  handleTable
	periods  map[audiocore.Flow]devicePeriods

	endpoints   *cache.Cache
	clock       audiocore.Clock
	after       func(time.Duration) <-chan time.Time
	log         logger.Logger
	underrunLog *rate.Limiter
}

// New creates a detached engine driving server
func New(server host.Server, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.AppName == "" {
		cfg.AppName = def.AppName
	}
	if cfg.DefaultPeriod <= 0 {
		cfg.DefaultPeriod = def.DefaultPeriod
	}
	if cfg.MinimumPeriod <= 0 {
		cfg.MinimumPeriod = def.MinimumPeriod
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = def.MaxBufferBytes
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.WarmupPeriods <= 0 {
		cfg.WarmupPeriods = def.WarmupPeriods
	}
	if cfg.EndpointTTL <= 0 {
		cfg.EndpointTTL = def.EndpointTTL
	}

	e := &Engine{
		cfg:         cfg,
		server:      server,
		periods:     make(map[audiocore.Flow]devicePeriods),
		endpoints:   cache.New(cfg.EndpointTTL, 2*cfg.EndpointTTL),
		clock:       cfg.Clock,
		after:       cfg.After,
		log:         logger.Global().Module("audiocore").Module(componentEngine),
		underrunLog: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	if e.clock == nil {
		e.clock = audiocore.NewSystemClock()
	}
	if e.after == nil {
		e.after = time.After
	}
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Attach makes the engine ready to create streams
func (e *Engine) Attach() error {
	g := e.lock()
	defer g.Unlock()

	if e.server == nil {
		return errors.New(audiocore.ErrNotInitialized).
			Component(componentEngine).
			Context("reason", "no host server").
			Build()
	}
	e.attached = true
	e.log.Debug("engine attached", logger.String("app", e.cfg.AppName))
	return nil
}

// Attached reports whether Attach succeeded and Detach was not called
func (e *Engine) Attached() bool {
	g := e.lock()
	defer g.Unlock()
	return e.attached
}

// Detach releases every live stream and disconnects from the host
func (e *Engine) Detach() error {
	g := e.lock()
	live := e.handles.streams()
	e.attached = false
	g.Unlock()

	for _, s := range live {
		if err := e.Release(s.handle); err != nil && !errors.Is(err, audiocore.ErrNotInitialized) {
			e.log.Warn("release on detach failed", logger.Error(err))
		}
	}

	e.endpoints.Flush()
	if e.server == nil {
		return nil
	}
	if err := e.server.Close(); err != nil {
		return errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryHost).
			Context("operation", "detach").
			Build()
	}
	e.log.Debug("engine detached", logger.Int("released_streams", len(live)))
	return nil
}

// TestConnect connects to the host, probes the default render and capture
// formats and derives the device periods from the host's request size.
func (e *Engine) TestConnect(ctx context.Context) (Priority, error) {
	g := e.lock()
	defer g.Unlock()

	if e.server == nil {
		return PriorityUnavailable, errors.New(audiocore.ErrNotInitialized).
			Component(componentEngine).
			Build()
	}
	if err := e.server.Connect(ctx, e.cfg.AppName); err != nil {
		e.log.Warn("host connection failed", logger.Error(err))
		return PriorityUnavailable, err
	}

	for _, flow := range []audiocore.Flow{audiocore.FlowRender, audiocore.FlowCapture} {
		probe, err := e.server.Probe(ctx, flow)
		if err != nil {
			e.log.Warn("probe failed",
				logger.String("flow", flow.String()),
				logger.Error(err))
			continue
		}
		e.periods[flow] = e.periodsFromProbe(probe)
	}

	e.log.Info("host connection tested",
		logger.Duration("default_period", e.periodsFor(audiocore.FlowRender).def.Duration()),
		logger.Duration("minimum_period", e.periodsFor(audiocore.FlowRender).min.Duration()))
	return PriorityPreferred, nil
}

// periodsFromProbe derives both periods from ten host requests, bounded
// below by the configured periods.
func (e *Engine) periodsFromProbe(probe host.ProbeResult) devicePeriods {
	p := devicePeriods{spec: probe.Spec}
	if bps := probe.Spec.BytesPerSecond(); bps > 0 && probe.MinReq > 0 {
		p.def = audiocore.RefTime(int64(10*probe.MinReq) * int64(audiocore.RefTimePerSecond) / int64(bps))
		p.min = p.def
	}
	p.def = max(p.def, e.cfg.DefaultPeriod)
	p.min = max(p.min, e.cfg.MinimumPeriod)
	return p
}

func (e *Engine) periodsFor(flow audiocore.Flow) devicePeriods {
	if p, ok := e.periods[flow]; ok {
		return p
	}
	return devicePeriods{def: e.cfg.DefaultPeriod, min: e.cfg.MinimumPeriod}
}

// DevicePeriod returns the default and minimum periods of a direction
func (e *Engine) DevicePeriod(flow audiocore.Flow) (def, minimum audiocore.RefTime) {
	g := e.lock()
	defer g.Unlock()
	p := e.periodsFor(flow)
	return p.def, p.min
}

// MixFormat returns the host's native format for a direction as a client
// descriptor.
func (e *Engine) MixFormat(ctx context.Context, flow audiocore.Flow) (format.WaveFormat, error) {
	g := e.lock()
	defer g.Unlock()

	if p, ok := e.periods[flow]; ok && p.spec.Valid() {
		return format.ToWaveFormat(p.spec), nil
	}
	if err := e.connectLocked(ctx); err != nil {
		return format.WaveFormat{}, err
	}
	probe, err := e.server.Probe(ctx, flow)
	if err != nil {
		return format.WaveFormat{}, err
	}
	e.periods[flow] = e.periodsFromProbe(probe)
	return format.ToWaveFormat(probe.Spec), nil
}

// IsFormatSupported checks a client format for shared mode use. It returns
// StatusFalse with the canonical descriptor when the format is usable but
// its channel mask does not describe its channels.
func (e *Engine) IsFormatSupported(mode audiocore.ShareMode, flow audiocore.Flow, wf *format.WaveFormat) (Status, *format.WaveFormat, error) {
	switch mode {
	case audiocore.ShareModeShared:
	case audiocore.ShareModeExclusive:
		sentinel := audiocore.ErrExclusiveMode
		if flow == audiocore.FlowCapture {
			sentinel = audiocore.ErrUnsupportedFormat
		}
		return StatusOK, nil, errors.New(sentinel).
			Component(componentEngine).
			Context("flow", flow.String()).
			Build()
	default:
		return StatusOK, nil, errors.New(audiocore.ErrInvalidArgument).
			Component(componentEngine).
			Context("share_mode", int(mode)).
			Build()
	}

	if err := format.Validate(wf); err != nil {
		return StatusOK, nil, err
	}
	if _, err := format.ToSampleSpec(wf); err != nil {
		return StatusOK, nil, err
	}
	if closest := format.ClosestMatch(wf); closest != nil {
		return StatusFalse, closest, nil
	}
	return StatusOK, nil, nil
}

// connectLocked connects the host if needed. Connect is idempotent.
func (e *Engine) connectLocked(ctx context.Context) error {
	if e.server == nil {
		return errors.New(audiocore.ErrNotInitialized).
			Component(componentEngine).
			Build()
	}
	if e.server.Connected() {
		return nil
	}
	return e.server.Connect(ctx, e.cfg.AppName)
}

// Streams returns a snapshot of every live stream
func (e *Engine) Streams() []StreamInfo {
	g := e.lock()
	defer g.Unlock()

	live := e.handles.streams()
	out := make([]StreamInfo, 0, len(live))
	for _, s := range live {
		out = append(out, s.info())
	}
	return out
}

// StreamCount returns the number of live streams
func (e *Engine) StreamCount() int {
	g := e.lock()
	defer g.Unlock()
	return e.handles.len()
}

func (e *Engine) metrics() audiocore.MetricsRecorder {
	return audiocore.GetMetrics()
}
