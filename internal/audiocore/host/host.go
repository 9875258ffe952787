// Package host defines the host audio server capability the stream engine
// drives. Backends live in subpackages: memhost simulates a server with a
// deterministic clock, malgohost drives real devices through miniaudio.
package host

import (
	"context"
	"time"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
)

// BufferAttr are the host-side buffer metrics of a stream, in bytes
type BufferAttr struct {
	MaxLength int
	TLength   int
	Prebuf    int
	MinReq    int
	FragSize  int
}

// FormFactor classifies an endpoint
type FormFactor int

const (
	FormFactorUnknown FormFactor = iota
	FormFactorSpeakers
	FormFactorMicrophone
	FormFactorHeadphones
	FormFactorLineLevel
)

func (f FormFactor) String() string {
	switch f {
	case FormFactorSpeakers:
		return "speakers"
	case FormFactorMicrophone:
		return "microphone"
	case FormFactorHeadphones:
		return "headphones"
	case FormFactorLineLevel:
		return "line-level"
	case FormFactorUnknown:
		return "unknown"
	}
	return "unknown"
}

// DeviceInfo describes one host device
type DeviceInfo struct {
	ID          string // host identifier, opaque to the engine
	Name        string
	Flow        audiocore.Flow
	Default     bool
	Spec        format.SampleSpec // native mix format
	FormFactor  FormFactor
	MonitorOf   string // render device a capture device monitors, if any
	Description string
}

// ProbeResult is what a connection test learns about the default device
type ProbeResult struct {
	Spec   format.SampleSpec
	MinReq int // minimum request size in bytes
}

// StreamConfig opens a host stream. Streams are always opened corked.
type StreamConfig struct {
	Name   string
	Device string // empty for the default device
	Flow   audiocore.Flow
	Spec   format.SampleSpec
	Attr   BufferAttr
}

// Server is the host audio server
type Server interface {
	// Connect establishes the server connection; it is idempotent
	Connect(ctx context.Context, appName string) error
	Connected() bool
	Close() error

	Devices(flow audiocore.Flow) ([]DeviceInfo, error)
	DefaultDevice(flow audiocore.Flow) (DeviceInfo, error)
	Probe(ctx context.Context, flow audiocore.Flow) (ProbeResult, error)

	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one host stream. Methods other than UpdateTiming must not
// block; UpdateTiming may wait for the server and is called with the
// engine lock released.
type Stream interface {
	Attributes() BufferAttr
	Ready() bool

	Cork(corked bool) error
	Flush() error

	// render
	WritableSize() int
	Write(p []byte) (int, error)

	// capture
	ReadableSize() int
	Peek() (data []byte, n int, err error)
	Drop() error

	UpdateTiming(ctx context.Context) error
	// Time is the stream clock; it does not advance while corked
	Time() (time.Duration, error)
	SetRate(rate uint32) error

	// SetUnderflowCallback registers fn to run when a playing render
	// stream runs dry. fn may be called from any goroutine.
	SetUnderflowCallback(fn func())

	Close() error
}
