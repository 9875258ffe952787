package dispatch

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
)

// Header carries the result code every params struct embeds
type Header struct {
	Result HRESULT
}

func (h *Header) setResult(r HRESULT) { h.Result = r }
func (h *Header) result() HRESULT      { return h.Result }

// Code returns the result code written by the last call
func (h *Header) Code() HRESULT { return h.Result }

type resultHolder interface {
	setResult(HRESULT)
	result() HRESULT
}

// ProcessAttachParams attaches the engine
type ProcessAttachParams struct {
	Header
}

// ProcessDetachParams releases every stream and detaches the engine
type ProcessDetachParams struct {
	Header
}

// GetEndpointIDsParams lists the endpoints of a direction. Default is the
// index of the default endpoint, -1 when there is none.
type GetEndpointIDsParams struct {
	Header
	Flow      audiocore.Flow
	Endpoints []engine.Endpoint
	Default   int
}

// CreateStreamParams opens a stream; Stream and Channels are outputs
type CreateStreamParams struct {
	Header
	Name     string
	Device   string
	Flow     audiocore.Flow
	Mode     audiocore.ShareMode
	Flags    audiocore.StreamFlags
	Duration audiocore.RefTime
	Period   audiocore.RefTime
	Format   *format.WaveFormat

	Stream   engine.Handle
	Channels int
}

// StreamParams is used by the operations that only name a stream:
// release_stream, start, stop, reset and is_started.
type StreamParams struct {
	Header
	Stream engine.Handle
}

type GetRenderBufferParams struct {
	Header
	Stream engine.Handle
	Frames int
	Data   []byte
}

type ReleaseRenderBufferParams struct {
	Header
	Stream        engine.Handle
	WrittenFrames int
	Flags         audiocore.BufferFlags
}

// GetCaptureBufferParams receives the next capture packet. Result is
// AUDCLNT_S_BUFFER_EMPTY when no packet is ready.
type GetCaptureBufferParams struct {
	Header
	Stream engine.Handle
	Data   []byte
	Frames int
	Flags  audiocore.BufferFlags
	DevPos uint64
	QPCPos uint64
}

type ReleaseCaptureBufferParams struct {
	Header
	Stream engine.Handle
	Done   int
}

// IsFormatSupportedParams checks a format; Closest is set with S_FALSE
type IsFormatSupportedParams struct {
	Header
	Flow    audiocore.Flow
	Mode    audiocore.ShareMode
	Format  *format.WaveFormat
	Closest *format.WaveFormat
}

type GetLoopbackCaptureDeviceParams struct {
	Header
	Device   string
	Loopback string
}

type GetMixFormatParams struct {
	Header
	Flow   audiocore.Flow
	Format format.WaveFormat
}

type GetDevicePeriodParams struct {
	Header
	Flow    audiocore.Flow
	Default audiocore.RefTime
	Minimum audiocore.RefTime
}

type GetBufferSizeParams struct {
	Header
	Stream engine.Handle
	Frames int
}

type GetLatencyParams struct {
	Header
	Stream  engine.Handle
	Latency audiocore.RefTime
}

type GetCurrentPaddingParams struct {
	Header
	Stream  engine.Handle
	Padding int
}

type GetNextPacketSizeParams struct {
	Header
	Stream engine.Handle
	Frames int
}

type GetFrequencyParams struct {
	Header
	Stream engine.Handle
	Freq   uint64
}

// GetPositionParams reads the stream position, in frames when Device is
// set and in bytes otherwise.
type GetPositionParams struct {
	Header
	Stream engine.Handle
	Device bool
	Pos    uint64
	QPC    uint64
}

type SetVolumesParams struct {
	Header
	Stream         engine.Handle
	Master         float32
	Volumes        []float32
	SessionVolumes []float32
}

type SetEventHandleParams struct {
	Header
	Stream engine.Handle
	Event  engine.Event
}

type SetSampleRateParams struct {
	Header
	Stream engine.Handle
	Rate   uint32
}

type TestConnectParams struct {
	Header
	Priority engine.Priority
}

type GetPropValueParams struct {
	Header
	Flow   audiocore.Flow
	Device string
	Key    engine.PropertyKey
	Value  any
}

type MIDIInitParams struct {
	Header
	Info MIDIInfo
	Err  uint32
}

type MIDIReleaseParams struct {
	Header
}

// MIDIMessageParams is shared by midi_out_message and midi_in_message
type MIDIMessageParams struct {
	Header
	Device  uint16
	Message uint32
	User    uint64
	Param1  uint64
	Param2  uint64
	Err     uint32
}

type MIDINotifyWaitParams struct {
	Header
	Notify MIDINotify
}
