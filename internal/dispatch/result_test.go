package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

func TestResultOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want HRESULT
	}{
		{"nil", nil, SOK},
		{"sentinel", audiocore.ErrNotStopped, AudclntENotStopped},
		{"enhanced", errors.New(audiocore.ErrOutOfOrder).Component("test").Build(), AudclntEOutOfOrder},
		{"wrapped", fmt.Errorf("lease: %w", audiocore.ErrBufferTooLarge), AudclntEBufferTooLarge},
		{"device not found", audiocore.ErrDeviceNotFound, ENotFound},
		{"not implemented", audiocore.ErrNotImplemented, ENotImpl},
		{"cancelled", context.Canceled, AudclntEServiceNotRunning},
		{"deadline", fmt.Errorf("probe: %w", context.DeadlineExceeded), AudclntEServiceNotRunning},
		{"foreign", errors.NewStd("disk on fire"), EUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResultOf(tt.err))
		})
	}
}

func TestHRESULT(t *testing.T) {
	t.Parallel()

	assert.True(t, SOK.Succeeded())
	assert.True(t, SFalse.Succeeded())
	assert.True(t, AudclntSBufferEmpty.Succeeded())
	assert.True(t, AudclntEDeviceInvalidated.Failed())
	assert.True(t, EInvalidArg.Failed())

	assert.Equal(t, uint32(0x88890004), uint32(AudclntEDeviceInvalidated))
	assert.Equal(t, "AUDCLNT_E_DEVICE_INVALIDATED", AudclntEDeviceInvalidated.String())
	assert.Equal(t, "0x88890099", HRESULT(0x88890099).String())
}

func TestEveryCodeHasAName(t *testing.T) {
	t.Parallel()

	for _, ec := range errorCodes {
		assert.Contains(t, resultNames, ec.code, "%v", ec.sentinel)
	}
}

func TestHRESULTErr(t *testing.T) {
	t.Parallel()

	require.NoError(t, SOK.Err())
	require.NoError(t, AudclntSBufferEmpty.Err())
	require.ErrorIs(t, AudclntEDeviceInvalidated.Err(), audiocore.ErrDeviceInvalidated)
	assert.Equal(t, AudclntEDeviceInvalidated, ResultOf(AudclntEDeviceInvalidated.Err()))

	err := HRESULT(0x88890099).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x88890099")
}
