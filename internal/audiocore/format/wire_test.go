package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
)

func TestWireRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wf   WaveFormat
		size int
	}{
		{"pcm", NewPCM(TagPCM, 44100, 2, 16), WireSizeBase},
		{"extensible float", NewExtensible(SubtypeIEEEFloat, 48000, 6, 32, 32, Layout5Point1), WireSizeExtensible},
		{"extensible 24 in 32", NewExtensible(SubtypePCM, 96000, 2, 32, 24, LayoutStereo), WireSizeExtensible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := tt.wf.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, tt.size)

			var got WaveFormat
			require.NoError(t, got.UnmarshalBinary(b))
			assert.Equal(t, tt.wf, got)
		})
	}
}

func TestWireGUIDByteOrder(t *testing.T) {
	t.Parallel()

	wf := NewExtensible(SubtypeIEEEFloat, 48000, 2, 32, 32, LayoutStereo)
	b, err := wf.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, []byte{0xFE, 0xFF}, b[0:2])
	assert.Equal(t, []byte{22, 0}, b[16:18])
	assert.Equal(t, []byte{
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
		0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71,
	}, b[24:40])
}

func TestWireShortDescriptor(t *testing.T) {
	t.Parallel()

	var wf WaveFormat
	require.ErrorIs(t, wf.UnmarshalBinary(make([]byte, 10)), audiocore.ErrInvalidArgument)

	ext := NewExtensible(SubtypePCM, 48000, 2, 16, 16, LayoutStereo)
	b, err := ext.MarshalBinary()
	require.NoError(t, err)
	require.ErrorIs(t, wf.UnmarshalBinary(b[:WireSizeBase]), audiocore.ErrInvalidArgument)
}
