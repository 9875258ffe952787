package dispatch

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/logger"
)

// Params for the operations whose native struct carries a slice, a
// pointer or a platform-width integer. Every other operation takes its
// native params struct unchanged through the 32-bit table.

type CreateStreamParams32 struct {
	Header
	Name     string
	Device   string
	Flow     audiocore.Flow
	Mode     audiocore.ShareMode
	Flags    audiocore.StreamFlags
	Duration audiocore.RefTime
	Period   audiocore.RefTime
	Format   Ptr32 // packed descriptor

	Stream   uint32
	Channels uint32
}

type GetRenderBufferParams32 struct {
	Header
	Stream uint32
	Frames uint32
	Data   Ptr32
}

type ReleaseRenderBufferParams32 struct {
	Header
	Stream        uint32
	WrittenFrames uint32
	Flags         audiocore.BufferFlags
}

type GetCaptureBufferParams32 struct {
	Header
	Stream uint32
	Data   Ptr32
	Frames uint32
	Flags  audiocore.BufferFlags
	DevPos uint64
	QPCPos uint64
}

type ReleaseCaptureBufferParams32 struct {
	Header
	Stream uint32
	Done   uint32
}

// IsFormatSupportedParams32 takes a packed descriptor. Closest, when not
// null, must address WireSizeExtensible writable bytes.
type IsFormatSupportedParams32 struct {
	Header
	Flow    audiocore.Flow
	Mode    audiocore.ShareMode
	Format  Ptr32
	Closest Ptr32
}

// GetMixFormatParams32 writes the packed mix format to Format, which
// must address WireSizeExtensible writable bytes.
type GetMixFormatParams32 struct {
	Header
	Flow   audiocore.Flow
	Format Ptr32
}

type GetBufferSizeParams32 struct {
	Header
	Stream uint32
	Frames uint32
}

type GetCurrentPaddingParams32 struct {
	Header
	Stream  uint32
	Padding uint32
}

type GetNextPacketSizeParams32 struct {
	Header
	Stream uint32
	Frames uint32
}

// SetVolumesParams32 addresses Channels little-endian float32 values for
// each volume array.
type SetVolumesParams32 struct {
	Header
	Stream         uint32
	Master         float32
	Channels       uint32
	Volumes        Ptr32
	SessionVolumes Ptr32
}

// Table32 serves clients with 32-bit references. Each entry converts its
// params, forwards to the native entry of the same ordinal and converts
// the outputs back; no engine logic lives here. Buffers handed out by
// the engine are mapped into the arena until they are released.
type Table32 struct {
	native *Dispatcher
	arena  *Arena
	log    logger.Logger

	mu     sync.Mutex
	leases map[engine.Handle]Ptr32

	table [OpCount]handler
}

// NewTable32 builds the 32-bit table over native
func NewTable32(native *Dispatcher) *Table32 {
	t := &Table32{
		native: native,
		arena:  NewArena(),
		log:    logger.Global().Module(componentDispatch).With(logger.String("abi", "32")),
		leases: make(map[engine.Handle]Ptr32),
	}

	t.table = [OpCount]handler{
		OpProcessAttach:            t.forward(OpProcessAttach),
		OpProcessDetach:            bind(t.processDetach),
		OpGetEndpointIDs:           t.forward(OpGetEndpointIDs),
		OpCreateStream:             bind(t.createStream),
		OpReleaseStream:            bind(t.releaseStream),
		OpStart:                    t.forward(OpStart),
		OpStop:                     t.forward(OpStop),
		OpReset:                    t.forward(OpReset),
		OpGetRenderBuffer:          bind(t.getRenderBuffer),
		OpReleaseRenderBuffer:      bind(t.releaseRenderBuffer),
		OpGetCaptureBuffer:         bind(t.getCaptureBuffer),
		OpReleaseCaptureBuffer:     bind(t.releaseCaptureBuffer),
		OpIsFormatSupported:        bind(t.isFormatSupported),
		OpGetLoopbackCaptureDevice: t.forward(OpGetLoopbackCaptureDevice),
		OpGetMixFormat:             bind(t.getMixFormat),
		OpGetDevicePeriod:          t.forward(OpGetDevicePeriod),
		OpGetBufferSize:            bind(t.getBufferSize),
		OpGetLatency:               t.forward(OpGetLatency),
		OpGetCurrentPadding:        bind(t.getCurrentPadding),
		OpGetNextPacketSize:        bind(t.getNextPacketSize),
		OpGetFrequency:             t.forward(OpGetFrequency),
		OpGetPosition:              t.forward(OpGetPosition),
		OpSetVolumes:               bind(t.setVolumes),
		OpSetEventHandle:           t.forward(OpSetEventHandle),
		OpSetSampleRate:            t.forward(OpSetSampleRate),
		OpTestConnect:              t.forward(OpTestConnect),
		OpIsStarted:                t.forward(OpIsStarted),
		OpGetPropValue:             t.forward(OpGetPropValue),
		OpMIDIInit:                 t.forward(OpMIDIInit),
		OpMIDIRelease:              t.forward(OpMIDIRelease),
		OpMIDIOutMessage:           t.forward(OpMIDIOutMessage),
		OpMIDIInMessage:            t.forward(OpMIDIInMessage),
		OpMIDINotifyWait:           t.forward(OpMIDINotifyWait),
	}
	return t
}

// Arena returns the address space buffers are mapped into
func (t *Table32) Arena() *Arena { return t.arena }

// Call runs op with a background context
func (t *Table32) Call(op Op, params any) error {
	return t.CallContext(context.Background(), op, params)
}

// CallContext runs op through the 32-bit table. Error semantics match
// Dispatcher.CallContext.
func (t *Table32) CallContext(ctx context.Context, op Op, params any) error {
	holder, err := checkCall(op, params)
	if err != nil {
		return err
	}
	code, ok := invoke(ctx, t.log, &t.table, op, params)
	if !ok {
		return paramsMismatch(op, params)
	}
	holder.setResult(code)
	return nil
}

// forward hands the native params struct straight to the native table
func (t *Table32) forward(op Op) handler {
	return func(ctx context.Context, params any) (HRESULT, bool) {
		if err := t.native.CallContext(ctx, op, params); err != nil {
			return 0, false
		}
		return params.(resultHolder).result(), true
	}
}

// call runs a native op whose params are built here; a dispatch error
// would mean the two tables disagree on types.
func (t *Table32) call(ctx context.Context, op Op, p resultHolder) HRESULT {
	if err := t.native.CallContext(ctx, op, p); err != nil {
		t.log.Error("native table rejected params", logger.Error(err))
		return EUnexpected
	}
	return p.result()
}

func (t *Table32) processDetach(ctx context.Context, p *ProcessDetachParams) HRESULT {
	code := t.call(ctx, OpProcessDetach, p)
	t.mu.Lock()
	for h, ptr := range t.leases {
		t.arena.Unmap(ptr)
		delete(t.leases, h)
	}
	t.mu.Unlock()
	return code
}

func (t *Table32) createStream(ctx context.Context, p *CreateStreamParams32) HRESULT {
	wf, code := t.readFormat(p.Format)
	if code != SOK {
		return code
	}
	np := CreateStreamParams{
		Name:     p.Name,
		Device:   p.Device,
		Flow:     p.Flow,
		Mode:     p.Mode,
		Flags:    p.Flags,
		Duration: p.Duration,
		Period:   p.Period,
		Format:   wf,
	}
	code = t.call(ctx, OpCreateStream, &np)
	p.Stream = uint32(np.Stream)
	p.Channels = uint32(np.Channels)
	return code
}

func (t *Table32) releaseStream(ctx context.Context, p *StreamParams) HRESULT {
	code := t.call(ctx, OpReleaseStream, p)
	if code.Succeeded() {
		t.unmapLease(p.Stream)
	}
	return code
}

func (t *Table32) getRenderBuffer(ctx context.Context, p *GetRenderBufferParams32) HRESULT {
	np := GetRenderBufferParams{Stream: engine.Handle(p.Stream), Frames: int(p.Frames)}
	code := t.call(ctx, OpGetRenderBuffer, &np)
	p.Data = 0
	if code != SOK {
		return code
	}
	ptr, code := t.mapLease(np.Stream, np.Data)
	p.Data = ptr
	return code
}

func (t *Table32) releaseRenderBuffer(ctx context.Context, p *ReleaseRenderBufferParams32) HRESULT {
	np := ReleaseRenderBufferParams{
		Stream:        engine.Handle(p.Stream),
		WrittenFrames: int(p.WrittenFrames),
		Flags:         p.Flags,
	}
	code := t.call(ctx, OpReleaseRenderBuffer, &np)
	if code.Succeeded() {
		t.unmapLease(np.Stream)
	}
	return code
}

func (t *Table32) getCaptureBuffer(ctx context.Context, p *GetCaptureBufferParams32) HRESULT {
	np := GetCaptureBufferParams{Stream: engine.Handle(p.Stream)}
	code := t.call(ctx, OpGetCaptureBuffer, &np)
	p.Data = 0
	p.Frames = uint32(np.Frames)
	p.Flags = np.Flags
	p.DevPos = np.DevPos
	p.QPCPos = np.QPCPos
	if code != SOK {
		return code
	}
	ptr, code := t.mapLease(np.Stream, np.Data)
	p.Data = ptr
	return code
}

func (t *Table32) releaseCaptureBuffer(ctx context.Context, p *ReleaseCaptureBufferParams32) HRESULT {
	np := ReleaseCaptureBufferParams{Stream: engine.Handle(p.Stream), Done: int(p.Done)}
	code := t.call(ctx, OpReleaseCaptureBuffer, &np)
	if code.Succeeded() {
		t.unmapLease(np.Stream)
	}
	return code
}

func (t *Table32) isFormatSupported(ctx context.Context, p *IsFormatSupportedParams32) HRESULT {
	wf, code := t.readFormat(p.Format)
	if code != SOK {
		return code
	}
	np := IsFormatSupportedParams{Flow: p.Flow, Mode: p.Mode, Format: wf}
	code = t.call(ctx, OpIsFormatSupported, &np)
	if np.Closest != nil && p.Closest != 0 {
		if wcode := t.writeFormat(p.Closest, np.Closest); wcode != SOK {
			return wcode
		}
	}
	return code
}

func (t *Table32) getMixFormat(ctx context.Context, p *GetMixFormatParams32) HRESULT {
	if p.Format == 0 {
		return EPointer
	}
	np := GetMixFormatParams{Flow: p.Flow}
	code := t.call(ctx, OpGetMixFormat, &np)
	if code != SOK {
		return code
	}
	return t.writeFormat(p.Format, &np.Format)
}

func (t *Table32) getBufferSize(ctx context.Context, p *GetBufferSizeParams32) HRESULT {
	np := GetBufferSizeParams{Stream: engine.Handle(p.Stream)}
	code := t.call(ctx, OpGetBufferSize, &np)
	p.Frames = uint32(np.Frames)
	return code
}

func (t *Table32) getCurrentPadding(ctx context.Context, p *GetCurrentPaddingParams32) HRESULT {
	np := GetCurrentPaddingParams{Stream: engine.Handle(p.Stream)}
	code := t.call(ctx, OpGetCurrentPadding, &np)
	p.Padding = uint32(np.Padding)
	return code
}

func (t *Table32) getNextPacketSize(ctx context.Context, p *GetNextPacketSizeParams32) HRESULT {
	np := GetNextPacketSizeParams{Stream: engine.Handle(p.Stream)}
	code := t.call(ctx, OpGetNextPacketSize, &np)
	p.Frames = uint32(np.Frames)
	return code
}

func (t *Table32) setVolumes(ctx context.Context, p *SetVolumesParams32) HRESULT {
	volumes, code := t.readFloats(p.Volumes, p.Channels)
	if code != SOK {
		return code
	}
	session, code := t.readFloats(p.SessionVolumes, p.Channels)
	if code != SOK {
		return code
	}
	np := SetVolumesParams{
		Stream:         engine.Handle(p.Stream),
		Master:         p.Master,
		Volumes:        volumes,
		SessionVolumes: session,
	}
	return t.call(ctx, OpSetVolumes, &np)
}

func (t *Table32) mapLease(h engine.Handle, data []byte) (Ptr32, HRESULT) {
	t.unmapLease(h)
	ptr, err := t.arena.Map(data)
	if err != nil {
		t.log.Warn("cannot map buffer",
			logger.Uint64("stream", uint64(h)),
			logger.Int("bytes", len(data)),
			logger.Error(err))
		return 0, ResultOf(err)
	}
	if ptr != 0 {
		t.mu.Lock()
		t.leases[h] = ptr
		t.mu.Unlock()
	}
	return ptr, SOK
}

func (t *Table32) unmapLease(h engine.Handle) {
	t.mu.Lock()
	ptr, ok := t.leases[h]
	delete(t.leases, h)
	t.mu.Unlock()
	if ok {
		t.arena.Unmap(ptr)
	}
}

// readFormat decodes the packed descriptor at p. Null stays nil so the
// native entry reports E_POINTER.
func (t *Table32) readFormat(p Ptr32) (*format.WaveFormat, HRESULT) {
	if p == 0 {
		return nil, SOK
	}
	head, err := t.arena.Resolve(p, format.WireSizeBase)
	if err != nil {
		return nil, EPointer
	}
	size := format.WireSizeBase
	if format.Tag(binary.LittleEndian.Uint16(head)) == format.TagExtensible {
		size = format.WireSizeExtensible
	}
	b, err := t.arena.Resolve(p, size)
	if err != nil {
		return nil, EPointer
	}
	wf := new(format.WaveFormat)
	if err := wf.UnmarshalBinary(b); err != nil {
		return nil, ResultOf(err)
	}
	return wf, SOK
}

func (t *Table32) writeFormat(p Ptr32, wf *format.WaveFormat) HRESULT {
	enc, err := wf.MarshalBinary()
	if err != nil {
		return ResultOf(err)
	}
	dst, err := t.arena.Resolve(p, len(enc))
	if err != nil {
		return EPointer
	}
	copy(dst, enc)
	return SOK
}

// readFloats decodes n little-endian float32 values at p. A null array
// with channels stays nil so the native entry reports the pointer error.
func (t *Table32) readFloats(p Ptr32, n uint32) ([]float32, HRESULT) {
	if p == 0 {
		return nil, SOK
	}
	b, err := t.arena.Resolve(p, int(n)*4)
	if err != nil {
		return nil, EPointer
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, SOK
}
