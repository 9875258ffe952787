package audiocore

import (
	"github.com/tphakala/pulseshim/internal/errors"
)

// ComponentAudioCore identifies audiocore errors
const ComponentAudioCore = "audiocore"

// Engine error taxonomy. Each sentinel maps to exactly one client result
// code in the dispatch layer.
var (
	ErrUnsupportedFormat = errors.Sentinel(ComponentAudioCore, errors.CategoryFormat, "unsupported format")
	ErrInvalidArgument   = errors.Sentinel(ComponentAudioCore, errors.CategoryValidation, "invalid argument")
	ErrNilPointer        = errors.Sentinel(ComponentAudioCore, errors.CategoryValidation, "required argument is nil")

	ErrNotInitialized    = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "stream not initialized")
	ErrNotStopped        = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "stream not stopped")
	ErrEventHandleNotSet = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "event handle not set")
	ErrEventHandleUnused = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "event handle not expected")
	ErrUnexpected        = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "unexpected call")
	ErrExclusiveMode     = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "exclusive mode not allowed")
	ErrWrongEndpointType = errors.Sentinel(ComponentAudioCore, errors.CategoryState, "wrong endpoint type")
	ErrOperationPending  = errors.Sentinel(ComponentAudioCore, errors.CategoryProtocol, "buffer operation pending")
	ErrOutOfOrder        = errors.Sentinel(ComponentAudioCore, errors.CategoryProtocol, "buffer lease out of order")
	ErrInvalidSize       = errors.Sentinel(ComponentAudioCore, errors.CategoryProtocol, "invalid buffer size")
	ErrBufferTooLarge    = errors.Sentinel(ComponentAudioCore, errors.CategoryBuffer, "buffer too large")
	ErrOutOfMemory       = errors.Sentinel(ComponentAudioCore, errors.CategoryResource, "out of memory")
	ErrDeviceInvalidated = errors.Sentinel(ComponentAudioCore, errors.CategoryDevice, "device invalidated")
	ErrEndpointCreate    = errors.Sentinel(ComponentAudioCore, errors.CategoryHost, "endpoint create failed")
	ErrServiceNotRunning = errors.Sentinel(ComponentAudioCore, errors.CategoryHost, "audio service not running")
	ErrNotImplemented    = errors.Sentinel(ComponentAudioCore, errors.CategoryGeneric, "not implemented")
	ErrDeviceNotFound    = errors.Sentinel(ComponentAudioCore, errors.CategoryNotFound, "device not found")
)
