package dispatch

import (
	"context"
	"fmt"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// HRESULT is the 32-bit result code written into every params struct
type HRESULT uint32

// Result codes with their client-visible numeric values
const (
	SOK    HRESULT = 0x00000000
	SFalse HRESULT = 0x00000001

	ENotImpl     HRESULT = 0x80004001
	EPointer     HRESULT = 0x80004003
	EFail        HRESULT = 0x80004005
	EUnexpected  HRESULT = 0x8000FFFF
	EOutOfMemory HRESULT = 0x8007000E
	EInvalidArg  HRESULT = 0x80070057
	ENotFound    HRESULT = 0x80070490

	AudclntENotInitialized          HRESULT = 0x88890001
	AudclntEAlreadyInitialized      HRESULT = 0x88890002
	AudclntEWrongEndpointType       HRESULT = 0x88890003
	AudclntEDeviceInvalidated       HRESULT = 0x88890004
	AudclntENotStopped              HRESULT = 0x88890005
	AudclntEBufferTooLarge          HRESULT = 0x88890006
	AudclntEOutOfOrder              HRESULT = 0x88890007
	AudclntEUnsupportedFormat       HRESULT = 0x88890008
	AudclntEInvalidSize             HRESULT = 0x88890009
	AudclntEDeviceInUse             HRESULT = 0x8889000A
	AudclntEBufferOperationPending  HRESULT = 0x8889000B
	AudclntEExclusiveModeNotAllowed HRESULT = 0x8889000E
	AudclntEEndpointCreateFailed    HRESULT = 0x8889000F
	AudclntEServiceNotRunning       HRESULT = 0x88890010
	AudclntEEventHandleNotExpected  HRESULT = 0x88890011
	AudclntEEventHandleNotSet       HRESULT = 0x88890014

	AudclntSBufferEmpty HRESULT = 0x08890001
)

// Succeeded reports whether r is a success code
func (r HRESULT) Succeeded() bool { return int32(r) >= 0 }

// Failed reports whether r is a failure code
func (r HRESULT) Failed() bool { return int32(r) < 0 }

func (r HRESULT) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(r))
}

var resultNames = map[HRESULT]string{
	SOK:                             "S_OK",
	SFalse:                          "S_FALSE",
	ENotImpl:                        "E_NOTIMPL",
	EPointer:                        "E_POINTER",
	EFail:                           "E_FAIL",
	EUnexpected:                     "E_UNEXPECTED",
	EOutOfMemory:                    "E_OUTOFMEMORY",
	EInvalidArg:                     "E_INVALIDARG",
	ENotFound:                       "E_NOTFOUND",
	AudclntENotInitialized:          "AUDCLNT_E_NOT_INITIALIZED",
	AudclntEAlreadyInitialized:      "AUDCLNT_E_ALREADY_INITIALIZED",
	AudclntEWrongEndpointType:       "AUDCLNT_E_WRONG_ENDPOINT_TYPE",
	AudclntEDeviceInvalidated:       "AUDCLNT_E_DEVICE_INVALIDATED",
	AudclntENotStopped:              "AUDCLNT_E_NOT_STOPPED",
	AudclntEBufferTooLarge:          "AUDCLNT_E_BUFFER_TOO_LARGE",
	AudclntEOutOfOrder:              "AUDCLNT_E_OUT_OF_ORDER",
	AudclntEUnsupportedFormat:       "AUDCLNT_E_UNSUPPORTED_FORMAT",
	AudclntEInvalidSize:             "AUDCLNT_E_INVALID_SIZE",
	AudclntEDeviceInUse:             "AUDCLNT_E_DEVICE_IN_USE",
	AudclntEBufferOperationPending:  "AUDCLNT_E_BUFFER_OPERATION_PENDING",
	AudclntEExclusiveModeNotAllowed: "AUDCLNT_E_EXCLUSIVE_MODE_NOT_ALLOWED",
	AudclntEEndpointCreateFailed:    "AUDCLNT_E_ENDPOINT_CREATE_FAILED",
	AudclntEServiceNotRunning:       "AUDCLNT_E_SERVICE_NOT_RUNNING",
	AudclntEEventHandleNotExpected:  "AUDCLNT_E_EVENTHANDLE_NOT_EXPECTED",
	AudclntEEventHandleNotSet:       "AUDCLNT_E_EVENTHANDLE_NOT_SET",
	AudclntSBufferEmpty:             "AUDCLNT_S_BUFFER_EMPTY",
}

// errorCodes is checked in order; the first sentinel in the chain wins
var errorCodes = []struct {
	sentinel error
	code     HRESULT
}{
	{audiocore.ErrUnsupportedFormat, AudclntEUnsupportedFormat},
	{audiocore.ErrInvalidArgument, EInvalidArg},
	{audiocore.ErrNilPointer, EPointer},
	{audiocore.ErrNotInitialized, AudclntENotInitialized},
	{audiocore.ErrNotStopped, AudclntENotStopped},
	{audiocore.ErrEventHandleNotSet, AudclntEEventHandleNotSet},
	{audiocore.ErrEventHandleUnused, AudclntEEventHandleNotExpected},
	{audiocore.ErrUnexpected, EUnexpected},
	{audiocore.ErrExclusiveMode, AudclntEExclusiveModeNotAllowed},
	{audiocore.ErrWrongEndpointType, AudclntEWrongEndpointType},
	{audiocore.ErrOperationPending, AudclntEBufferOperationPending},
	{audiocore.ErrOutOfOrder, AudclntEOutOfOrder},
	{audiocore.ErrInvalidSize, AudclntEInvalidSize},
	{audiocore.ErrBufferTooLarge, AudclntEBufferTooLarge},
	{audiocore.ErrOutOfMemory, EOutOfMemory},
	{audiocore.ErrDeviceInvalidated, AudclntEDeviceInvalidated},
	{audiocore.ErrEndpointCreate, AudclntEEndpointCreateFailed},
	{audiocore.ErrServiceNotRunning, AudclntEServiceNotRunning},
	{audiocore.ErrNotImplemented, ENotImpl},
	{audiocore.ErrDeviceNotFound, ENotFound},
}

// ResultOf maps an engine error to its result code. Errors outside the
// engine taxonomy map to E_UNEXPECTED.
func ResultOf(err error) HRESULT {
	if err == nil {
		return SOK
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.sentinel) {
			return ec.code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return AudclntEServiceNotRunning
	}
	return EUnexpected
}

// Err converts a failure code back into an error wrapping the matching
// engine sentinel. Success codes return nil.
func (r HRESULT) Err() error {
	if r.Succeeded() {
		return nil
	}
	for _, ec := range errorCodes {
		if ec.code == r {
			return errors.New(ec.sentinel).
				Component(componentDispatch).
				Context("hresult", r.String()).
				Build()
		}
	}
	return errors.Newf("call failed with %s", r).
		Component(componentDispatch).
		Category(errors.CategoryProtocol).
		Context("hresult", r.String()).
		Build()
}
