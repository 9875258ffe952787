// Package memhost is an in-process host audio server with a simulated
// clock. Render streams consume queued bytes as the clock advances and
// capture streams produce them, so the engine can be exercised without
// audio hardware.
package memhost

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

const componentMemhost = "memhost"

// Default device identifiers
const (
	SinkID    = "memhost.sink"
	SourceID  = "memhost.source"
	MonitorID = "memhost.sink.monitor"
)

// DefaultMinimumRequest is the request granularity the simulated server
// reports to a connection probe.
const DefaultMinimumRequest = time.Millisecond

// Generator produces captured audio for a capture stream
type Generator func(spec format.SampleSpec, p []byte)

// Server is the simulated host server
type Server struct {
	mu         sync.Mutex
	clock      audiocore.Clock
	connected  bool
	appName    string
	devices    []host.DeviceInfo
	minReq     time.Duration
	connectErr error
	openErr    error
	generator  Generator
	streams    []*Stream
	log        logger.Logger
}

// Option configures a Server
type Option func(*Server)

// WithClock replaces the system clock, typically with a ManualClock
func WithClock(c audiocore.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithDevices replaces the default device list
func WithDevices(devices ...host.DeviceInfo) Option {
	return func(s *Server) { s.devices = slices.Clone(devices) }
}

// WithMinimumRequest sets the request granularity reported by Probe
func WithMinimumRequest(d time.Duration) Option {
	return func(s *Server) { s.minReq = d }
}

// WithConnectError makes Connect fail with err
func WithConnectError(err error) Option {
	return func(s *Server) { s.connectErr = err }
}

// WithOpenError makes every Open fail with err
func WithOpenError(err error) Option {
	return func(s *Server) { s.openErr = err }
}

// WithGenerator sets the capture data source; the default is silence
func WithGenerator(g Generator) Option {
	return func(s *Server) { s.generator = g }
}

// New creates a simulated server with a render sink, a capture source and
// a monitor of the sink.
func New(opts ...Option) *Server {
	s := &Server{
		clock:   audiocore.NewSystemClock(),
		devices: DefaultDevices(),
		minReq:  DefaultMinimumRequest,
		log:     logger.Global().Module("audiocore").Module(componentMemhost),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDevices returns the device set of a new Server
func DefaultDevices() []host.DeviceInfo {
	stereo := format.SampleSpec{
		Rate:     48000,
		Encoding: format.EncodingF32LE,
		Channels: 2,
		Map:      []format.Position{format.PositionFrontLeft, format.PositionFrontRight},
	}
	return []host.DeviceInfo{
		{
			ID: SinkID, Name: "Simulated Output", Flow: audiocore.FlowRender,
			Default: true, Spec: stereo, FormFactor: host.FormFactorSpeakers,
		},
		{
			ID: SourceID, Name: "Simulated Input", Flow: audiocore.FlowCapture,
			Default: true, Spec: stereo, FormFactor: host.FormFactorMicrophone,
		},
		{
			ID: MonitorID, Name: "Monitor of Simulated Output", Flow: audiocore.FlowCapture,
			Spec: stereo, FormFactor: host.FormFactorLineLevel, MonitorOf: SinkID,
		},
	}
}

// Connect marks the server connected
func (s *Server) Connect(ctx context.Context, appName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return errors.New(audiocore.ErrServiceNotRunning).
			Component(componentMemhost).
			Context("cause", s.connectErr.Error()).
			Build()
	}
	if !s.connected {
		s.log.Debug("connected", logger.String("app", appName))
	}
	s.connected = true
	s.appName = appName
	return nil
}

// Connected reports whether Connect succeeded
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close disconnects and invalidates every open stream
func (s *Server) Close() error {
	s.mu.Lock()
	streams := s.streams
	s.streams = nil
	s.connected = false
	s.mu.Unlock()

	for _, st := range streams {
		st.Invalidate()
	}
	return nil
}

// Devices lists the devices of one direction
func (s *Server) Devices(flow audiocore.Flow) ([]host.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, s.notRunning()
	}
	var out []host.DeviceInfo
	for i := range s.devices {
		if s.devices[i].Flow == flow {
			out = append(out, s.devices[i])
		}
	}
	return out, nil
}

// DefaultDevice returns the default device of one direction
func (s *Server) DefaultDevice(flow audiocore.Flow) (host.DeviceInfo, error) {
	devices, err := s.Devices(flow)
	if err != nil {
		return host.DeviceInfo{}, err
	}
	for i := range devices {
		if devices[i].Default {
			return devices[i], nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return host.DeviceInfo{}, errors.New(audiocore.ErrDeviceNotFound).
		Component(componentMemhost).
		Context("flow", flow.String()).
		Build()
}

// Probe reports the default device format and the request granularity
func (s *Server) Probe(ctx context.Context, flow audiocore.Flow) (host.ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return host.ProbeResult{}, err
	}
	dev, err := s.DefaultDevice(flow)
	if err != nil {
		return host.ProbeResult{}, err
	}

	s.mu.Lock()
	minReq := s.minReq
	s.mu.Unlock()

	return host.ProbeResult{
		Spec:   dev.Spec,
		MinReq: dev.Spec.BytesFor(audiocore.FromDuration(minReq)),
	}, nil
}

// Open creates a corked stream on the requested device
func (s *Server) Open(ctx context.Context, cfg host.StreamConfig) (host.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, s.notRunning()
	}
	if s.openErr != nil {
		return nil, errors.New(audiocore.ErrEndpointCreate).
			Component(componentMemhost).
			Context("cause", s.openErr.Error()).
			Build()
	}
	if !cfg.Spec.Valid() {
		return nil, errors.New(audiocore.ErrUnsupportedFormat).
			Component(componentMemhost).
			Context("spec", cfg.Spec.String()).
			Build()
	}
	if cfg.Device != "" && !s.hasDeviceLocked(cfg.Device, cfg.Flow) {
		return nil, errors.New(audiocore.ErrDeviceNotFound).
			Component(componentMemhost).
			Context("device", cfg.Device).
			Build()
	}

	st, err := newStream(s, cfg, s.minReq)
	if err != nil {
		return nil, err
	}
	s.streams = append(s.streams, st)
	s.log.Debug("stream opened",
		logger.String("name", cfg.Name),
		logger.String("flow", cfg.Flow.String()),
		logger.String("spec", cfg.Spec.String()),
		logger.Int("tlength", st.attr.TLength),
		logger.Int("fragsize", st.attr.FragSize))
	return st, nil
}

// Streams returns every stream opened and not yet closed
func (s *Server) Streams() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.streams)
}

func (s *Server) hasDeviceLocked(id string, flow audiocore.Flow) bool {
	for i := range s.devices {
		if s.devices[i].ID == id && s.devices[i].Flow == flow {
			return true
		}
	}
	return false
}

func (s *Server) removeStream(st *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = slices.DeleteFunc(s.streams, func(x *Stream) bool { return x == st })
}

func (s *Server) notRunning() error {
	return errors.New(audiocore.ErrServiceNotRunning).
		Component(componentMemhost).
		Context("reason", fmt.Sprintf("%s not connected", componentMemhost)).
		Build()
}

var _ host.Server = (*Server)(nil)
