package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

func TestSubtypeTemplate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00000001-0000-0010-8000-00aa00389b71", SubtypePCM.String())
	assert.Equal(t, "00000003-0000-0010-8000-00aa00389b71", SubtypeIEEEFloat.String())
	assert.Equal(t, "00000007-0000-0010-8000-00aa00389b71", SubtypeMuLaw.String())
}

func TestToSampleSpecPlainTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wf       WaveFormat
		encoding Encoding
		wantErr  bool
	}{
		{"pcm8", NewPCM(TagPCM, 8000, 1, 8), EncodingU8, false},
		{"pcm16", NewPCM(TagPCM, 44100, 2, 16), EncodingS16LE, false},
		{"pcm24", NewPCM(TagPCM, 48000, 2, 24), EncodingS24LE, false},
		{"pcm32", NewPCM(TagPCM, 48000, 2, 32), EncodingS32LE, false},
		{"pcm12", NewPCM(TagPCM, 48000, 2, 12), EncodingInvalid, true},
		{"float32", NewPCM(TagIEEEFloat, 48000, 2, 32), EncodingF32LE, false},
		{"float64", NewPCM(TagIEEEFloat, 48000, 2, 64), EncodingInvalid, true},
		{"alaw", NewPCM(TagALaw, 8000, 1, 8), EncodingALaw, false},
		{"mulaw", NewPCM(TagMuLaw, 8000, 2, 8), EncodingMuLaw, false},
		{"mulaw16", NewPCM(TagMuLaw, 8000, 1, 16), EncodingInvalid, true},
		{"pcm three channels", NewPCM(TagPCM, 48000, 3, 16), EncodingInvalid, true},
		{"zero rate", NewPCM(TagPCM, 0, 2, 16), EncodingInvalid, true},
		{"unknown tag", NewPCM(Tag(0x55), 48000, 2, 16), EncodingInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wf := tt.wf
			spec, err := ToSampleSpec(&wf)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, audiocore.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, spec.Encoding)
			assert.Equal(t, int(wf.Channels), spec.Channels)
			assert.Len(t, spec.Map, spec.Channels)
			assert.True(t, spec.Valid())
		})
	}
}

func TestPlainMonoAndStereoMaps(t *testing.T) {
	t.Parallel()

	mono := NewPCM(TagPCM, 48000, 1, 16)
	spec, err := ToSampleSpec(&mono)
	require.NoError(t, err)
	assert.Equal(t, []Position{PositionMono}, spec.Map)

	stereo := NewPCM(TagIEEEFloat, 48000, 2, 32)
	spec, err = ToSampleSpec(&stereo)
	require.NoError(t, err)
	assert.Equal(t, []Position{PositionFrontLeft, PositionFrontRight}, spec.Map)
}

func TestToSampleSpecExtensible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wf       WaveFormat
		encoding Encoding
		wantErr  bool
	}{
		{"float 32/0", NewExtensible(SubtypeIEEEFloat, 48000, 2, 32, 0, LayoutStereo), EncodingF32LE, false},
		{"float 32/24", NewExtensible(SubtypeIEEEFloat, 48000, 2, 32, 24, LayoutStereo), EncodingInvalid, true},
		{"pcm 8/8", NewExtensible(SubtypePCM, 48000, 2, 8, 8, LayoutStereo), EncodingU8, false},
		{"pcm 16/0", NewExtensible(SubtypePCM, 48000, 2, 16, 0, LayoutStereo), EncodingS16LE, false},
		{"pcm 24/24", NewExtensible(SubtypePCM, 48000, 2, 24, 24, LayoutStereo), EncodingS24LE, false},
		{"pcm 32/24", NewExtensible(SubtypePCM, 48000, 2, 32, 24, LayoutStereo), EncodingS24In32LE, false},
		{"pcm 32/32", NewExtensible(SubtypePCM, 48000, 2, 32, 32, LayoutStereo), EncodingS32LE, false},
		{"pcm 32/20", NewExtensible(SubtypePCM, 48000, 2, 32, 20, LayoutStereo), EncodingInvalid, true},
		{"pcm valid exceeds container", NewExtensible(SubtypePCM, 48000, 2, 16, 24, LayoutStereo), EncodingInvalid, true},
		{"alaw subtype", NewExtensible(SubtypeALaw, 8000, 1, 8, 8, LayoutMono), EncodingALaw, false},
		{"reserved bit", NewExtensible(SubtypePCM, 48000, 2, 16, 16, LayoutStereo|0x40000), EncodingInvalid, true},
		{"too few mask bits", NewExtensible(SubtypePCM, 48000, 4, 16, 16, LayoutStereo), EncodingInvalid, true},
		{"unknown subtype", NewExtensible(Subtype(Tag(0x92)), 48000, 2, 16, 16, LayoutStereo), EncodingInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wf := tt.wf
			spec, err := ToSampleSpec(&wf)
			if tt.wantErr {
				assert.ErrorIs(t, err, audiocore.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, spec.Encoding)
		})
	}
}

func TestExtensibleChannelMasks(t *testing.T) {
	t.Parallel()

	t.Run("zero mask synthesizes 5.1", func(t *testing.T) {
		t.Parallel()
		wf := NewExtensible(SubtypeIEEEFloat, 48000, 6, 32, 32, 0)
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err)
		assert.Equal(t, []Position{
			PositionFrontLeft, PositionFrontRight, PositionFrontCenter,
			PositionLFE, PositionRearLeft, PositionRearRight,
		}, spec.Map)
	})

	t.Run("speaker all synthesizes from count", func(t *testing.T) {
		t.Parallel()
		wf := NewExtensible(SubtypePCM, 48000, 2, 16, 16, SpeakerAll)
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err)
		assert.Equal(t, []Position{PositionFrontLeft, PositionFrontRight}, spec.Map)
	})

	t.Run("all ones mono is center", func(t *testing.T) {
		t.Parallel()
		wf := NewExtensible(SubtypePCM, 48000, 1, 16, 16, ^uint32(0))
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err)
		assert.Equal(t, []Position{PositionMono}, spec.Map)
	})

	t.Run("extra bits ignored", func(t *testing.T) {
		t.Parallel()
		wf := NewExtensible(SubtypePCM, 48000, 2, 16, 16, Layout5Point1)
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err)
		assert.Equal(t, []Position{PositionFrontLeft, PositionFrontRight}, spec.Map)
	})

	t.Run("side speakers", func(t *testing.T) {
		t.Parallel()
		wf := NewExtensible(SubtypePCM, 48000, 2, 16, 16, SpeakerSideLeft|SpeakerSideRight)
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err)
		assert.Equal(t, []Position{PositionSideLeft, PositionSideRight}, spec.Map)
	})
}

func TestChannelMaskByCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(0), ChannelMask(0))
	assert.Equal(t, LayoutMono, ChannelMask(1))
	assert.Equal(t, LayoutStereo, ChannelMask(2))
	assert.Equal(t, LayoutStereo|SpeakerLowFrequency, ChannelMask(3))
	assert.Equal(t, LayoutQuad, ChannelMask(4))
	assert.Equal(t, LayoutQuad|SpeakerLowFrequency, ChannelMask(5))
	assert.Equal(t, Layout5Point1, ChannelMask(6))
	assert.Equal(t, Layout5Point1|SpeakerBackCenter, ChannelMask(7))
	assert.Equal(t, Layout7Point1Surround, ChannelMask(8))
	assert.Equal(t, uint32(0x3FF), ChannelMask(10))
}

func TestRoundTripPreservesEncodingAndChannels(t *testing.T) {
	t.Parallel()

	encodings := []Encoding{
		EncodingU8, EncodingALaw, EncodingMuLaw, EncodingS16LE,
		EncodingS24LE, EncodingS24In32LE, EncodingS32LE, EncodingF32LE,
	}

	for _, enc := range encodings {
		for channels := 1; channels <= 8; channels++ {
			wf := NewExtensible(SubtypePCM, 48000, uint16(channels), 16, 16, 0)
			base, err := ToSampleSpec(&wf)
			require.NoError(t, err)
			base.Encoding = enc

			external := ToWaveFormat(base)
			assert.GreaterOrEqual(t, popcount(external.ChannelMask), channels,
				"mask never narrows below the channel count")

			back, err := ToSampleSpec(&external)
			require.NoError(t, err, "%s %dch", enc, channels)
			assert.Equal(t, enc, back.Encoding)
			assert.Equal(t, channels, back.Channels)
		}
	}
}

func TestToWaveFormatCanonicalMask(t *testing.T) {
	t.Parallel()

	spec := SampleSpec{
		Rate:     48000,
		Encoding: EncodingF32LE,
		Channels: 2,
		Map:      []Position{PositionFrontLeft, PositionFrontRight},
	}
	wf := ToWaveFormat(spec)
	assert.Equal(t, TagExtensible, wf.Tag)
	assert.Equal(t, LayoutStereo, wf.ChannelMask)
	assert.Equal(t, SubtypeIEEEFloat, wf.SubFormat)
	assert.Equal(t, uint16(8), wf.BlockAlign)
	assert.Equal(t, uint32(384000), wf.AvgBytesPerSec)
	assert.Equal(t, uint16(ExtensibleSize), wf.CbSize)

	// three channels widen to the first four speaker layout
	spec.Channels = 3
	spec.Map = []Position{PositionFrontLeft, PositionFrontRight, PositionLFE}
	assert.Equal(t, LayoutQuad, ToWaveFormat(spec).ChannelMask)

	// side speakers prefer the surround flavour of 5.1
	spec.Channels = 6
	spec.Map = []Position{
		PositionFrontLeft, PositionFrontRight, PositionFrontCenter,
		PositionLFE, PositionSideLeft, PositionSideRight,
	}
	assert.Equal(t, Layout5Point1Surround, ToWaveFormat(spec).ChannelMask)

	s24 := SampleSpec{Rate: 48000, Encoding: EncodingS24In32LE, Channels: 1, Map: []Position{PositionMono}}
	wf = ToWaveFormat(s24)
	assert.Equal(t, uint16(32), wf.BitsPerSample)
	assert.Equal(t, uint16(24), wf.ValidBitsPerSample)
	assert.Equal(t, LayoutMono, wf.ChannelMask)
}

func TestWideLayoutsUseAuxPositions(t *testing.T) {
	t.Parallel()

	for _, channels := range []int{18, 19, 24, MaxChannels} {
		positions := DefaultMap(channels)
		require.Len(t, positions, channels, "%dch", channels)
		if channels > 18 {
			assert.Equal(t, PositionAux0, positions[18])
			assert.Equal(t, PositionAux0+Position(channels-19), positions[channels-1])
		}

		wf := NewExtensible(SubtypeIEEEFloat, 48000, uint16(channels), 32, 32, 0)
		spec, err := ToSampleSpec(&wf)
		require.NoError(t, err, "%dch", channels)
		assert.True(t, spec.Valid())
		assert.Equal(t, positions, spec.Map)

		external := ToWaveFormat(spec)
		assert.Equal(t, ChannelMask(channels), external.ChannelMask)
		assert.Nil(t, ClosestMatch(&external))

		back, err := ToSampleSpec(&external)
		require.NoError(t, err, "%dch", channels)
		assert.Equal(t, spec, back)
	}

	assert.Equal(t, "aux13", (PositionAux0 + 13).String())

	// a partial mask still has to name every channel
	partial := NewExtensible(SubtypeIEEEFloat, 48000, 20, 32, 32, Layout7Point1Surround)
	_, err := ToSampleSpec(&partial)
	require.ErrorIs(t, err, audiocore.ErrUnsupportedFormat)
}

func TestClosestMatch(t *testing.T) {
	t.Parallel()

	exact := NewExtensible(SubtypeIEEEFloat, 48000, 2, 32, 32, LayoutStereo)
	assert.Nil(t, ClosestMatch(&exact))

	zeroMask := NewExtensible(SubtypeIEEEFloat, 48000, 2, 32, 32, 0)
	closest := ClosestMatch(&zeroMask)
	require.NotNil(t, closest)
	assert.Equal(t, LayoutStereo, closest.ChannelMask)

	plain := NewPCM(TagPCM, 48000, 2, 16)
	assert.Nil(t, ClosestMatch(&plain))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Validate(nil), audiocore.ErrNilPointer)

	short := NewExtensible(SubtypePCM, 48000, 2, 16, 16, LayoutStereo)
	short.CbSize = 10
	require.ErrorIs(t, Validate(&short), audiocore.ErrInvalidArgument)

	noAlign := NewPCM(TagPCM, 48000, 2, 16)
	noAlign.BlockAlign = 0
	require.ErrorIs(t, Validate(&noAlign), audiocore.ErrInvalidArgument)

	ok := NewPCM(TagPCM, 48000, 2, 16)
	require.NoError(t, Validate(&ok))

	assert.True(t, errors.IsCategory(Validate(&noAlign), errors.CategoryValidation))
}

func TestSampleSpecSizes(t *testing.T) {
	t.Parallel()

	spec := SampleSpec{Rate: 48000, Encoding: EncodingF32LE, Channels: 2, Map: autoMap(2)}
	assert.Equal(t, 8, spec.FrameSize())
	assert.Equal(t, 384000, spec.BytesPerSecond())
	// 20 ms at 48 kHz is 960 frames
	assert.Equal(t, 960*8, spec.BytesFor(200_000))
	assert.Equal(t, byte(0x80), EncodingU8.SilenceByte())
	assert.Equal(t, byte(0xD5), EncodingALaw.SilenceByte())
	assert.Equal(t, byte(0xFF), EncodingMuLaw.SilenceByte())
	assert.Equal(t, byte(0), EncodingS24LE.SilenceByte())
}
