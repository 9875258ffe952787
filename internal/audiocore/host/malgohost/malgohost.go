// Package malgohost drives real playback and capture devices through
// miniaudio. Each host stream owns one miniaudio device whose data
// callback moves audio between the device and a ring buffer the engine
// reads and writes.
package malgohost

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

const componentMalgo = "malgohost"

// Config selects the native format the server reports for its devices
type Config struct {
	SampleRate uint32
	Channels   int
	// MinimumRequest is the device period reported to connection probes
	MinimumRequest time.Duration
}

// DefaultConfig is 48 kHz float stereo with a 1 ms request granularity
func DefaultConfig() Config {
	return Config{SampleRate: 48000, Channels: 2, MinimumRequest: time.Millisecond}
}

// Server is a host server backed by a miniaudio context
type Server struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	backend malgo.Backend
	appName string
	devices map[audiocore.Flow][]malgo.DeviceInfo
	streams []*Stream
}

// New creates a disconnected server
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.MinimumRequest <= 0 {
		cfg.MinimumRequest = def.MinimumRequest
	}
	return &Server{
		cfg: cfg,
		log: logger.Global().Module("audiocore").Module(componentMalgo),
	}
}

// Connect initializes the miniaudio context for the platform backend
func (s *Server) Connect(ctx context.Context, appName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return nil
	}

	backend, err := defaultBackend()
	if err != nil {
		return err
	}

	mctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(audiocore.ErrServiceNotRunning).
			Component(componentMalgo).
			Context("operation", "init_context").
			Context("cause", err.Error()).
			Build()
	}

	s.ctx = mctx
	s.backend = backend
	s.appName = appName
	s.devices = make(map[audiocore.Flow][]malgo.DeviceInfo)
	s.log.Info("audio context initialized",
		logger.String("app", appName),
		logger.Int("backend", int(backend)))
	return nil
}

// Connected reports whether the context is initialized
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// Close uninitializes every device and the context
func (s *Server) Close() error {
	s.mu.Lock()
	streams := s.streams
	s.streams = nil
	mctx := s.ctx
	s.ctx = nil
	s.devices = nil
	s.mu.Unlock()

	for _, st := range streams {
		st.invalidate()
	}
	if mctx == nil {
		return nil
	}
	if err := mctx.Uninit(); err != nil {
		mctx.Free()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryHost).
			Context("operation", "uninit_context").
			Build()
	}
	mctx.Free()
	return nil
}

// Devices enumerates the devices of one direction
func (s *Server) Devices(flow audiocore.Flow) ([]host.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos, err := s.enumerateLocked(flow)
	if err != nil {
		return nil, err
	}

	out := make([]host.DeviceInfo, 0, len(infos))
	for i := range infos {
		out = append(out, s.describe(&infos[i], flow))
	}
	return out, nil
}

// DefaultDevice returns the device miniaudio flags as default, else the
// first one listed.
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
		Component(componentMalgo).
		Context("flow", flow.String()).
		Context("error", "no audio devices found").
		Build()
}

// Probe reports the configured native format and request granularity
func (s *Server) Probe(ctx context.Context, flow audiocore.Flow) (host.ProbeResult, error) {
	if err := ctx.Err(); err != nil {
		return host.ProbeResult{}, err
	}
	dev, err := s.DefaultDevice(flow)
	if err != nil {
		return host.ProbeResult{}, err
	}
	return host.ProbeResult{
		Spec:   dev.Spec,
		MinReq: dev.Spec.BytesFor(audiocore.FromDuration(s.cfg.MinimumRequest)),
	}, nil
}

// Open initializes a device for the stream. The device is started on the
// first uncork.
func (s *Server) Open(ctx context.Context, cfg host.StreamConfig) (host.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.Spec.Valid() {
		return nil, errors.New(audiocore.ErrUnsupportedFormat).
			Component(componentMalgo).
			Context("spec", cfg.Spec.String()).
			Build()
	}
	sampleFormat, err := formatFor(cfg.Spec.Encoding)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil, s.notRunning()
	}

	st := newStream(cfg, s.cfg.MinimumRequest)
	st.srv = s

	devCfg := malgo.DefaultDeviceConfig(deviceType(cfg.Flow))
	devCfg.SampleRate = cfg.Spec.Rate
	devCfg.PeriodSizeInFrames = uint32(st.attr.MinReq / cfg.Spec.FrameSize())
	devCfg.Alsa.NoMMap = 1

	sub := &devCfg.Playback
	if cfg.Flow == audiocore.FlowCapture {
		sub = &devCfg.Capture
	}
	sub.Format = sampleFormat
	sub.Channels = uint32(cfg.Spec.Channels)

	if cfg.Device != "" {
		info, err := s.findDeviceLocked(cfg.Flow, cfg.Device)
		if err != nil {
			return nil, err
		}
		sub.DeviceID = info.ID.Pointer()
	}

	dev, err := malgo.InitDevice(s.ctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: st.onData,
		Stop: st.onStop,
	})
	if err != nil {
		return nil, errors.New(audiocore.ErrEndpointCreate).
			Component(componentMalgo).
			Context("operation", "init_device").
			Context("device", cfg.Device).
			Context("cause", err.Error()).
			Build()
	}
	st.device = dev

	s.streams = append(s.streams, st)
	s.log.Debug("device opened",
		logger.String("name", cfg.Name),
		logger.String("flow", cfg.Flow.String()),
		logger.String("spec", cfg.Spec.String()),
		logger.Int("period_frames", int(devCfg.PeriodSizeInFrames)))
	return st, nil
}

func (s *Server) enumerateLocked(flow audiocore.Flow) ([]malgo.DeviceInfo, error) {
	if s.ctx == nil {
		return nil, s.notRunning()
	}

	infos, err := s.ctx.Devices(deviceType(flow))
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryHost).
			Context("operation", "enumerate_devices").
			Context("flow", flow.String()).
			Build()
	}

	kept := infos[:0]
	for i := range infos {
		if isDiscardDevice(infos[i].Name()) {
			continue
		}
		kept = append(kept, infos[i])
	}
	// device id pointers handed to InitDevice point into this slice
	s.devices[flow] = kept
	return kept, nil
}

func (s *Server) findDeviceLocked(flow audiocore.Flow, id string) (*malgo.DeviceInfo, error) {
	infos, ok := s.devices[flow]
	if !ok {
		var err error
		if infos, err = s.enumerateLocked(flow); err != nil {
			return nil, err
		}
	}
	for i := range infos {
		if deviceID(&infos[i]) == id || infos[i].Name() == id {
			return &infos[i], nil
		}
	}
	return nil, errors.New(audiocore.ErrDeviceNotFound).
		Component(componentMalgo).
		Context("device", id).
		Context("available_devices", len(infos)).
		Build()
}

func (s *Server) describe(info *malgo.DeviceInfo, flow audiocore.Flow) host.DeviceInfo {
	ff := host.FormFactorSpeakers
	if flow == audiocore.FlowCapture {
		ff = host.FormFactorMicrophone
	}
	return host.DeviceInfo{
		ID:         deviceID(info),
		Name:       info.Name(),
		Flow:       flow,
		Default:    info.IsDefault == 1,
		Spec:       s.nativeSpec(),
		FormFactor: ff,
	}
}

func (s *Server) nativeSpec() format.SampleSpec {
	return format.SampleSpec{
		Rate:     s.cfg.SampleRate,
		Encoding: format.EncodingF32LE,
		Channels: s.cfg.Channels,
		Map:      format.DefaultMap(s.cfg.Channels),
	}
}

func (s *Server) removeStream(st *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.streams {
		if x == st {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			return
		}
	}
}

func (s *Server) notRunning() error {
	return errors.New(audiocore.ErrServiceNotRunning).
		Component(componentMalgo).
		Context("error", "audio context not initialized").
		Build()
}

var _ host.Server = (*Server)(nil)
