// Package dispatch is the call boundary between clients and the stream
// engine. Every operation is addressed by a fixed ordinal and takes a
// flat params struct whose Result field receives an HRESULT-compatible
// code; the 32-bit table in table32.go converts widths and forwards to
// the same entries.
package dispatch

import (
	"context"
	"runtime/debug"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

const componentDispatch = "dispatch"

// handler runs one operation. ok is false when params has the wrong type.
type handler func(ctx context.Context, params any) (code HRESULT, ok bool)

// bind adapts a typed operation to the table signature. A nil params
// pointer counts as a type mismatch.
func bind[P any](fn func(ctx context.Context, p *P) HRESULT) handler {
	return func(ctx context.Context, params any) (HRESULT, bool) {
		p, ok := params.(*P)
		if !ok || p == nil {
			return 0, false
		}
		return fn(ctx, p), true
	}
}

// Dispatcher owns the native operation table
type Dispatcher struct {
	eng   *engine.Engine
	midi  MIDIDriver
	log   logger.Logger
	table [OpCount]handler
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithMIDIDriver enables the MIDI operations
func WithMIDIDriver(m MIDIDriver) Option {
	return func(d *Dispatcher) { d.midi = m }
}

// New builds the operation table over eng
func New(eng *engine.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		eng: eng,
		log: logger.Global().Module(componentDispatch),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.table = [OpCount]handler{
		OpProcessAttach:            bind(d.processAttach),
		OpProcessDetach:            bind(d.processDetach),
		OpGetEndpointIDs:           bind(d.getEndpointIDs),
		OpCreateStream:             bind(d.createStream),
		OpReleaseStream:            bind(d.releaseStream),
		OpStart:                    bind(d.start),
		OpStop:                     bind(d.stop),
		OpReset:                    bind(d.reset),
		OpGetRenderBuffer:          bind(d.getRenderBuffer),
		OpReleaseRenderBuffer:      bind(d.releaseRenderBuffer),
		OpGetCaptureBuffer:         bind(d.getCaptureBuffer),
		OpReleaseCaptureBuffer:     bind(d.releaseCaptureBuffer),
		OpIsFormatSupported:        bind(d.isFormatSupported),
		OpGetLoopbackCaptureDevice: bind(d.getLoopbackCaptureDevice),
		OpGetMixFormat:             bind(d.getMixFormat),
		OpGetDevicePeriod:          bind(d.getDevicePeriod),
		OpGetBufferSize:            bind(d.getBufferSize),
		OpGetLatency:               bind(d.getLatency),
		OpGetCurrentPadding:        bind(d.getCurrentPadding),
		OpGetNextPacketSize:        bind(d.getNextPacketSize),
		OpGetFrequency:             bind(d.getFrequency),
		OpGetPosition:              bind(d.getPosition),
		OpSetVolumes:               bind(d.setVolumes),
		OpSetEventHandle:           bind(d.setEventHandle),
		OpSetSampleRate:            bind(d.setSampleRate),
		OpTestConnect:              bind(d.testConnect),
		OpIsStarted:                bind(d.isStarted),
		OpGetPropValue:             bind(d.getPropValue),
		OpMIDIInit:                 bind(d.midiInit),
		OpMIDIRelease:              bind(d.midiRelease),
		OpMIDIOutMessage:           bind(d.midiOutMessage),
		OpMIDIInMessage:            bind(d.midiInMessage),
		OpMIDINotifyWait:           bind(d.midiNotifyWait),
	}
	return d
}

// Engine returns the engine behind the table
func (d *Dispatcher) Engine() *engine.Engine { return d.eng }

// Call runs op with a background context
func (d *Dispatcher) Call(op Op, params any) error {
	return d.CallContext(context.Background(), op, params)
}

// CallContext runs op and writes its result code into params. The
// returned error only reports calls that could not be dispatched: an
// unknown op or a params struct of the wrong type. Panics inside an
// operation are recovered and reported as E_UNEXPECTED.
func (d *Dispatcher) CallContext(ctx context.Context, op Op, params any) error {
	holder, err := checkCall(op, params)
	if err != nil {
		return err
	}

	code, ok := invoke(ctx, d.log, &d.table, op, params)
	if !ok {
		return paramsMismatch(op, params)
	}
	holder.setResult(code)

	audiocore.GetMetrics().RecordOperation(op.String(), code.String())
	if code.Failed() {
		d.log.Debug("operation failed",
			logger.String("op", op.String()),
			logger.String("result", code.String()))
	}
	return nil
}

func invoke(ctx context.Context, log logger.Logger, table *[OpCount]handler, op Op, params any) (code HRESULT, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("panic in %s: %v", op, r).
				Component(componentDispatch).
				Category(errors.CategorySystem).
				Context("operation", op.String()).
				Context("stack", string(debug.Stack())).
				Build()
			log.Error("operation panicked", logger.Error(err))
			code, ok = EUnexpected, true
		}
	}()
	return table[op](ctx, params)
}

func checkCall(op Op, params any) (resultHolder, error) {
	if !op.Valid() {
		return nil, errors.Newf("unknown operation %d", uint32(op)).
			Component(componentDispatch).
			Category(errors.CategoryValidation).
			Build()
	}
	holder, ok := params.(resultHolder)
	if !ok {
		return nil, paramsMismatch(op, params)
	}
	return holder, nil
}

func paramsMismatch(op Op, params any) error {
	return errors.Newf("%s: unexpected params type %T", op, params).
		Component(componentDispatch).
		Category(errors.CategoryValidation).
		Context("operation", op.String()).
		Build()
}

func (d *Dispatcher) processAttach(_ context.Context, _ *ProcessAttachParams) HRESULT {
	return ResultOf(d.eng.Attach())
}

func (d *Dispatcher) processDetach(_ context.Context, _ *ProcessDetachParams) HRESULT {
	return ResultOf(d.eng.Detach())
}

func (d *Dispatcher) getEndpointIDs(ctx context.Context, p *GetEndpointIDsParams) HRESULT {
	list, err := d.eng.Endpoints(ctx, p.Flow)
	if err != nil {
		return ResultOf(err)
	}
	p.Endpoints = list
	p.Default = -1
	for i := range list {
		if list[i].Default {
			p.Default = i
			break
		}
	}
	return SOK
}

func (d *Dispatcher) createStream(ctx context.Context, p *CreateStreamParams) HRESULT {
	h, err := d.eng.Create(ctx, engine.CreateRequest{
		Name:     p.Name,
		Device:   p.Device,
		Flow:     p.Flow,
		Mode:     p.Mode,
		Flags:    p.Flags,
		Duration: p.Duration,
		Period:   p.Period,
		Format:   p.Format,
	})
	if err != nil {
		return ResultOf(err)
	}
	channels, err := d.eng.Channels(h)
	if err != nil {
		return ResultOf(err)
	}
	p.Stream = h
	p.Channels = channels
	return SOK
}

func (d *Dispatcher) releaseStream(_ context.Context, p *StreamParams) HRESULT {
	return ResultOf(d.eng.Release(p.Stream))
}

func (d *Dispatcher) start(_ context.Context, p *StreamParams) HRESULT {
	return ResultOf(d.eng.Start(p.Stream))
}

func (d *Dispatcher) stop(_ context.Context, p *StreamParams) HRESULT {
	status, err := d.eng.Stop(p.Stream)
	if err != nil {
		return ResultOf(err)
	}
	return statusCode(status)
}

func (d *Dispatcher) reset(_ context.Context, p *StreamParams) HRESULT {
	return ResultOf(d.eng.Reset(p.Stream))
}

func (d *Dispatcher) getRenderBuffer(_ context.Context, p *GetRenderBufferParams) HRESULT {
	data, err := d.eng.GetRenderBuffer(p.Stream, p.Frames)
	p.Data = data
	return ResultOf(err)
}

func (d *Dispatcher) releaseRenderBuffer(_ context.Context, p *ReleaseRenderBufferParams) HRESULT {
	return ResultOf(d.eng.ReleaseRenderBuffer(p.Stream, p.WrittenFrames, p.Flags))
}

func (d *Dispatcher) getCaptureBuffer(_ context.Context, p *GetCaptureBufferParams) HRESULT {
	pkt, err := d.eng.GetCaptureBuffer(p.Stream)
	if err != nil {
		return ResultOf(err)
	}
	p.Data = pkt.Data
	p.Frames = pkt.Frames
	p.Flags = pkt.Flags
	p.DevPos = pkt.DevicePosition
	p.QPCPos = pkt.QPCPosition
	if pkt.Frames == 0 {
		return AudclntSBufferEmpty
	}
	return SOK
}

func (d *Dispatcher) releaseCaptureBuffer(_ context.Context, p *ReleaseCaptureBufferParams) HRESULT {
	return ResultOf(d.eng.ReleaseCaptureBuffer(p.Stream, p.Done))
}

func (d *Dispatcher) isFormatSupported(_ context.Context, p *IsFormatSupportedParams) HRESULT {
	status, closest, err := d.eng.IsFormatSupported(p.Mode, p.Flow, p.Format)
	if err != nil {
		return ResultOf(err)
	}
	p.Closest = closest
	return statusCode(status)
}

func (d *Dispatcher) getLoopbackCaptureDevice(ctx context.Context, p *GetLoopbackCaptureDeviceParams) HRESULT {
	id, err := d.eng.LoopbackCaptureDevice(ctx, p.Device)
	p.Loopback = id
	return ResultOf(err)
}

func (d *Dispatcher) getMixFormat(ctx context.Context, p *GetMixFormatParams) HRESULT {
	wf, err := d.eng.MixFormat(ctx, p.Flow)
	if err != nil {
		return ResultOf(err)
	}
	p.Format = wf
	return SOK
}

func (d *Dispatcher) getDevicePeriod(_ context.Context, p *GetDevicePeriodParams) HRESULT {
	p.Default, p.Minimum = d.eng.DevicePeriod(p.Flow)
	return SOK
}

func (d *Dispatcher) getBufferSize(_ context.Context, p *GetBufferSizeParams) HRESULT {
	frames, err := d.eng.BufferSize(p.Stream)
	p.Frames = frames
	return ResultOf(err)
}

func (d *Dispatcher) getLatency(_ context.Context, p *GetLatencyParams) HRESULT {
	lat, err := d.eng.Latency(p.Stream)
	p.Latency = lat
	return ResultOf(err)
}

func (d *Dispatcher) getCurrentPadding(_ context.Context, p *GetCurrentPaddingParams) HRESULT {
	padding, err := d.eng.CurrentPadding(p.Stream)
	p.Padding = padding
	return ResultOf(err)
}

func (d *Dispatcher) getNextPacketSize(_ context.Context, p *GetNextPacketSizeParams) HRESULT {
	frames, err := d.eng.NextPacketSize(p.Stream)
	p.Frames = frames
	return ResultOf(err)
}

func (d *Dispatcher) getFrequency(_ context.Context, p *GetFrequencyParams) HRESULT {
	freq, err := d.eng.Frequency(p.Stream)
	p.Freq = freq
	return ResultOf(err)
}

func (d *Dispatcher) getPosition(_ context.Context, p *GetPositionParams) HRESULT {
	pos, qpc, err := d.eng.Position(p.Stream, p.Device)
	p.Pos, p.QPC = pos, qpc
	return ResultOf(err)
}

func (d *Dispatcher) setVolumes(_ context.Context, p *SetVolumesParams) HRESULT {
	return ResultOf(d.eng.SetVolumes(p.Stream, p.Master, p.Volumes, p.SessionVolumes))
}

func (d *Dispatcher) setEventHandle(_ context.Context, p *SetEventHandleParams) HRESULT {
	return ResultOf(d.eng.SetEventHandle(p.Stream, p.Event))
}

func (d *Dispatcher) setSampleRate(_ context.Context, p *SetSampleRateParams) HRESULT {
	return ResultOf(d.eng.SetSampleRate(p.Stream, p.Rate))
}

// testConnect always succeeds; an unreachable host is reported through
// the priority.
func (d *Dispatcher) testConnect(ctx context.Context, p *TestConnectParams) HRESULT {
	prio, err := d.eng.TestConnect(ctx)
	if err != nil {
		d.log.Info("host not available", logger.Error(err))
	}
	p.Priority = prio
	return SOK
}

func (d *Dispatcher) isStarted(_ context.Context, p *StreamParams) HRESULT {
	started, err := d.eng.IsStarted(p.Stream)
	if err != nil {
		return ResultOf(err)
	}
	if !started {
		return SFalse
	}
	return SOK
}

func (d *Dispatcher) getPropValue(ctx context.Context, p *GetPropValueParams) HRESULT {
	v, err := d.eng.PropertyValue(ctx, p.Flow, p.Device, p.Key)
	p.Value = v
	return ResultOf(err)
}

func (d *Dispatcher) midiInit(ctx context.Context, p *MIDIInitParams) HRESULT {
	if d.midi == nil {
		return ENotImpl
	}
	info, err := d.midi.Init(ctx)
	if err != nil {
		p.Err = MMSysErrNotSupp
		return ResultOf(err)
	}
	p.Info = info
	p.Err = MMSysErrNoError
	return SOK
}

func (d *Dispatcher) midiRelease(_ context.Context, _ *MIDIReleaseParams) HRESULT {
	if d.midi == nil {
		return ENotImpl
	}
	return ResultOf(d.midi.Release())
}

func (d *Dispatcher) midiOutMessage(_ context.Context, p *MIDIMessageParams) HRESULT {
	if d.midi == nil {
		return ENotImpl
	}
	p.Err = d.midi.OutMessage(p.Device, p.Message, p.User, p.Param1, p.Param2)
	return SOK
}

func (d *Dispatcher) midiInMessage(_ context.Context, p *MIDIMessageParams) HRESULT {
	if d.midi == nil {
		return ENotImpl
	}
	p.Err = d.midi.InMessage(p.Device, p.Message, p.User, p.Param1, p.Param2)
	return SOK
}

func (d *Dispatcher) midiNotifyWait(ctx context.Context, p *MIDINotifyWaitParams) HRESULT {
	if d.midi == nil {
		return ENotImpl
	}
	n, err := d.midi.NotifyWait(ctx)
	if err != nil {
		p.Notify = MIDINotify{Quit: true}
		return ResultOf(err)
	}
	p.Notify = n
	return SOK
}

func statusCode(s engine.Status) HRESULT {
	if s == engine.StatusFalse {
		return SFalse
	}
	return SOK
}
