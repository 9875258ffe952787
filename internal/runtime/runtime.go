// Package runtime assembles a working engine from settings: the host
// server for the configured backend, the engine, both call tables and
// the optional Prometheus metrics.
package runtime

import (
	"context"

	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/audiocore/host/malgohost"
	"github.com/tphakala/pulseshim/internal/audiocore/host/memhost"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/dispatch"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/observability"
)

const componentRuntime = "runtime"

// Runtime holds everything a command needs to drive streams
type Runtime struct {
	Settings *conf.Settings
	Host     host.Server
	Engine   *engine.Engine
	Native   *dispatch.Dispatcher
	Table32  *dispatch.Table32
	Metrics  *observability.Metrics // nil unless metrics are enabled

	log logger.Logger
}

type options struct {
	host       host.Server
	midi       dispatch.MIDIDriver
	engineHook func(*engine.Config)
}

// Option customizes New
type Option func(*options)

// WithHost replaces the backend selected by settings
func WithHost(h host.Server) Option {
	return func(o *options) { o.host = h }
}

// WithMIDIDriver installs a MIDI driver in the native table
func WithMIDIDriver(m dispatch.MIDIDriver) Option {
	return func(o *options) { o.midi = m }
}

// WithEngineConfig adjusts the engine config derived from settings
func WithEngineConfig(fn func(*engine.Config)) Option {
	return func(o *options) { o.engineHook = fn }
}

// New builds a detached runtime. Call Attach before creating streams.
func New(settings *conf.Settings, opts ...Option) (*Runtime, error) {
	if settings == nil {
		return nil, errors.Newf("runtime requires settings").
			Component(componentRuntime).
			Category(errors.CategoryConfiguration).
			Build()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{
		Settings: settings,
		log:      logger.Global().Module(componentRuntime),
	}

	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, errors.New(err).
				Component(componentRuntime).
				Category(errors.CategorySystem).
				Context("operation", "metrics_init").
				Build()
		}
		m.Install()
		r.Metrics = m
	}

	r.Host = o.host
	if r.Host == nil {
		h, err := NewHost(settings)
		if err != nil {
			return nil, err
		}
		r.Host = h
	}

	cfg := engine.ConfigFromSettings(settings)
	if o.engineHook != nil {
		o.engineHook(&cfg)
	}
	r.Engine = engine.New(r.Host, cfg)

	var dopts []dispatch.Option
	if o.midi != nil {
		dopts = append(dopts, dispatch.WithMIDIDriver(o.midi))
	}
	r.Native = dispatch.New(r.Engine, dopts...)
	r.Table32 = dispatch.NewTable32(r.Native)

	r.log.Debug("runtime assembled",
		logger.String("backend", settings.Host.Backend),
		logger.Bool("metrics", r.Metrics != nil))
	return r, nil
}

// NewHost creates the host server named by host.backend
func NewHost(settings *conf.Settings) (host.Server, error) {
	switch settings.Host.Backend {
	case conf.BackendMemory, "":
		return memhost.New(memhost.WithDevices(memoryDevices(settings.Host)...)), nil
	case conf.BackendMalgo:
		return malgohost.New(malgohost.Config{
			SampleRate: uint32(max(settings.Host.SampleRate, 0)), //nolint:gosec // bounded by validation
			Channels:   settings.Host.Channels,
		}), nil
	}
	return nil, errors.Newf("unknown host backend %q", settings.Host.Backend).
		Component(componentRuntime).
		Category(errors.CategoryConfiguration).
		Context("backend", settings.Host.Backend).
		Build()
}

// memoryDevices reshapes the simulated devices to the configured layout
func memoryDevices(hs conf.HostSettings) []host.DeviceInfo {
	devices := memhost.DefaultDevices()
	for i := range devices {
		spec := &devices[i].Spec
		if hs.SampleRate > 0 {
			spec.Rate = uint32(hs.SampleRate) //nolint:gosec // bounded by validation
		}
		if hs.Channels > 0 {
			spec.Channels = hs.Channels
			spec.Map = format.DefaultMap(hs.Channels)
		}
	}
	return devices
}

// Attach runs process_attach through the native table
func (r *Runtime) Attach(ctx context.Context) error {
	var p dispatch.ProcessAttachParams
	if err := r.Native.CallContext(ctx, dispatch.OpProcessAttach, &p); err != nil {
		return err
	}
	return p.Result.Err()
}

// Connect runs test_connect and fails when the host is unavailable
func (r *Runtime) Connect(ctx context.Context) (engine.Priority, error) {
	var p dispatch.TestConnectParams
	if err := r.Native.CallContext(ctx, dispatch.OpTestConnect, &p); err != nil {
		return engine.PriorityUnavailable, err
	}
	if p.Priority == engine.PriorityUnavailable {
		return p.Priority, errors.Newf("host audio server unavailable").
			Component(componentRuntime).
			Category(errors.CategoryHost).
			Context("backend", r.Settings.Host.Backend).
			Build()
	}
	return p.Priority, nil
}

// Close releases every stream and detaches the engine
func (r *Runtime) Close() error {
	var p dispatch.ProcessDetachParams
	if err := r.Native.Call(dispatch.OpProcessDetach, &p); err != nil {
		return err
	}
	return p.Result.Err()
}

// Start builds, attaches and connects a runtime. On failure everything
// already set up is torn down.
func Start(ctx context.Context, settings *conf.Settings, opts ...Option) (*Runtime, error) {
	r, err := New(settings, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.Attach(ctx); err != nil {
		return nil, err
	}
	if _, err := r.Connect(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}
