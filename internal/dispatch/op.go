package dispatch

import "strconv"

// Op is the ordinal of a call-boundary operation. The order is part of
// the client ABI and must never change.
type Op uint32

const (
	OpProcessAttach Op = iota
	OpProcessDetach
	OpGetEndpointIDs
	OpCreateStream
	OpReleaseStream
	OpStart
	OpStop
	OpReset
	OpGetRenderBuffer
	OpReleaseRenderBuffer
	OpGetCaptureBuffer
	OpReleaseCaptureBuffer
	OpIsFormatSupported
	OpGetLoopbackCaptureDevice
	OpGetMixFormat
	OpGetDevicePeriod
	OpGetBufferSize
	OpGetLatency
	OpGetCurrentPadding
	OpGetNextPacketSize
	OpGetFrequency
	OpGetPosition
	OpSetVolumes
	OpSetEventHandle
	OpSetSampleRate
	OpTestConnect
	OpIsStarted
	OpGetPropValue
	OpMIDIInit
	OpMIDIRelease
	OpMIDIOutMessage
	OpMIDIInMessage
	OpMIDINotifyWait

	// OpCount is the number of operations in a table
	OpCount
)

var opNames = [OpCount]string{
	"process_attach",
	"process_detach",
	"get_endpoint_ids",
	"create_stream",
	"release_stream",
	"start",
	"stop",
	"reset",
	"get_render_buffer",
	"release_render_buffer",
	"get_capture_buffer",
	"release_capture_buffer",
	"is_format_supported",
	"get_loopback_capture_device",
	"get_mix_format",
	"get_device_period",
	"get_buffer_size",
	"get_latency",
	"get_current_padding",
	"get_next_packet_size",
	"get_frequency",
	"get_position",
	"set_volumes",
	"set_event_handle",
	"set_sample_rate",
	"test_connect",
	"is_started",
	"get_prop_value",
	"midi_init",
	"midi_release",
	"midi_out_message",
	"midi_in_message",
	"midi_notify_wait",
}

func (o Op) String() string {
	if o < OpCount {
		return opNames[o]
	}
	return "op(" + strconv.FormatUint(uint64(o), 10) + ")"
}

// Valid reports whether o names an operation
func (o Op) Valid() bool { return o < OpCount }
