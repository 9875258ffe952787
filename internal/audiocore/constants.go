package audiocore

import (
	"time"

	"github.com/tphakala/pulseshim/internal/errors"
)

// RefTime is a duration in 100 ns units, the unit of every period and
// latency crossing the client API.
type RefTime int64

// RefTimePerSecond is the number of RefTime units in one second
const RefTimePerSecond RefTime = 10_000_000

// Engine timing defaults
const (
	MinimumPeriod RefTime = 30_000  // 3 ms
	DefaultPeriod RefTime = 100_000 // 10 ms

	// MaxBufferDuration caps a requested buffer at two seconds of audio
	MaxBufferDuration RefTime = 2 * RefTimePerSecond
)

// FromDuration converts a Go duration to RefTime, truncating below 100 ns
func FromDuration(d time.Duration) RefTime {
	return RefTime(d / 100)
}

// Duration converts RefTime to a Go duration
func (r RefTime) Duration() time.Duration {
	return time.Duration(r) * 100
}

// Flow is the data direction of an endpoint or stream
type Flow int

const (
	FlowRender Flow = iota
	FlowCapture
)

func (f Flow) String() string {
	switch f {
	case FlowRender:
		return "render"
	case FlowCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// ParseFlow accepts the names produced by Flow.String
func ParseFlow(s string) (Flow, error) {
	switch s {
	case "render":
		return FlowRender, nil
	case "capture":
		return FlowCapture, nil
	}
	return 0, errors.New(ErrInvalidArgument).
		Component(ComponentAudioCore).
		Context("flow", s).
		Build()
}

// ShareMode is the client requested sharing mode
type ShareMode int

const (
	ShareModeShared ShareMode = iota
	ShareModeExclusive
)

// StreamFlags are the client stream flags accepted at creation
type StreamFlags uint32

const (
	StreamFlagCrossProcess      StreamFlags = 0x00010000
	StreamFlagLoopback          StreamFlags = 0x00020000
	StreamFlagEventCallback     StreamFlags = 0x00040000
	StreamFlagNoPersist         StreamFlags = 0x00080000
	StreamFlagRateAdjust        StreamFlags = 0x00100000
	StreamFlagSRCDefaultQuality StreamFlags = 0x08000000
	StreamFlagAutoConvertPCM    StreamFlags = 0x80000000

	SessionFlagExpireWhenUnowned      StreamFlags = 0x10000000
	SessionFlagDisplayHide            StreamFlags = 0x20000000
	SessionFlagDisplayHideWhenExpired StreamFlags = 0x40000000
)

// ValidStreamFlags is the union of every accepted flag
const ValidStreamFlags = StreamFlagCrossProcess | StreamFlagLoopback | StreamFlagEventCallback |
	StreamFlagNoPersist | StreamFlagRateAdjust | StreamFlagSRCDefaultQuality | StreamFlagAutoConvertPCM |
	SessionFlagExpireWhenUnowned | SessionFlagDisplayHide | SessionFlagDisplayHideWhenExpired

// BufferFlags accompany render commits and capture leases
type BufferFlags uint32

const (
	BufferFlagDataDiscontinuity BufferFlags = 0x1
	BufferFlagSilent            BufferFlags = 0x2
	BufferFlagTimestampError    BufferFlags = 0x4
)
