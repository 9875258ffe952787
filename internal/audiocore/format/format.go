// Package format translates client wave format descriptors into host
// sample specs and back.
package format

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Tag is the wave format tag
type Tag uint16

const (
	TagPCM        Tag = 0x0001
	TagIEEEFloat  Tag = 0x0003
	TagALaw       Tag = 0x0006
	TagMuLaw      Tag = 0x0007
	TagExtensible Tag = 0xFFFE
)

// ExtensibleSize is the cbSize of a complete extensible descriptor
const ExtensibleSize = 22

// MaxChannels is the largest channel count a stream may carry
const MaxChannels = 32

// WaveFormat is the client wave format descriptor. The trailing fields
// are only meaningful when Tag is TagExtensible.
type WaveFormat struct {
	Tag            Tag
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16

	ValidBitsPerSample uint16
	ChannelMask        uint32
	SubFormat          uuid.UUID
}

// subtypeBase is the KS media subtype template; the tag goes in the
// first four bytes.
var subtypeBase = uuid.MustParse("00000000-0000-0010-8000-00aa00389b71")

// Subtype returns the KSDATAFORMAT_SUBTYPE GUID for a plain format tag
func Subtype(tag Tag) uuid.UUID {
	id := subtypeBase
	id[2] = byte(tag >> 8)
	id[3] = byte(tag)
	return id
}

// Well-known subtypes
var (
	SubtypePCM       = Subtype(TagPCM)
	SubtypeIEEEFloat = Subtype(TagIEEEFloat)
	SubtypeALaw      = Subtype(TagALaw)
	SubtypeMuLaw     = Subtype(TagMuLaw)
)

// Encoding is a host sample encoding
type Encoding int

const (
	EncodingInvalid Encoding = iota
	EncodingU8
	EncodingALaw
	EncodingMuLaw
	EncodingS16LE
	EncodingS24LE
	EncodingS24In32LE
	EncodingS32LE
	EncodingF32LE
)

// SampleSize returns the container size of one sample in bytes
func (e Encoding) SampleSize() int {
	switch e {
	case EncodingU8, EncodingALaw, EncodingMuLaw:
		return 1
	case EncodingS16LE:
		return 2
	case EncodingS24LE:
		return 3
	case EncodingS24In32LE, EncodingS32LE, EncodingF32LE:
		return 4
	case EncodingInvalid:
		return 0
	}
	return 0
}

// SilenceByte returns the byte pattern that encodes silence
func (e Encoding) SilenceByte() byte {
	switch e {
	case EncodingU8:
		return 0x80
	case EncodingALaw:
		return 0xD5
	case EncodingMuLaw:
		return 0xFF
	case EncodingS16LE, EncodingS24LE, EncodingS24In32LE, EncodingS32LE, EncodingF32LE, EncodingInvalid:
		return 0
	}
	return 0
}

func (e Encoding) String() string {
	switch e {
	case EncodingU8:
		return "u8"
	case EncodingALaw:
		return "alaw"
	case EncodingMuLaw:
		return "ulaw"
	case EncodingS16LE:
		return "s16le"
	case EncodingS24LE:
		return "s24le"
	case EncodingS24In32LE:
		return "s24-32le"
	case EncodingS32LE:
		return "s32le"
	case EncodingF32LE:
		return "float32le"
	case EncodingInvalid:
		return "invalid"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// SampleSpec is the host-side stream description
type SampleSpec struct {
	Rate     uint32
	Encoding Encoding
	Channels int
	Map      []Position
}

// FrameSize returns the size of one frame in bytes
func (s SampleSpec) FrameSize() int {
	return s.Encoding.SampleSize() * s.Channels
}

// BytesPerSecond returns the byte rate of the stream
func (s SampleSpec) BytesPerSecond() int {
	return s.FrameSize() * int(s.Rate)
}

// BytesFor converts a RefTime duration to a byte count rounded down to
// whole frames.
func (s SampleSpec) BytesFor(d audiocore.RefTime) int {
	frames := int64(d) * int64(s.Rate) / int64(audiocore.RefTimePerSecond)
	return int(frames) * s.FrameSize()
}

// Valid reports whether the spec can be handed to a host
func (s SampleSpec) Valid() bool {
	return s.Rate > 0 && s.Encoding != EncodingInvalid &&
		s.Channels > 0 && s.Channels <= MaxChannels && len(s.Map) == s.Channels
}

func (s SampleSpec) String() string {
	return fmt.Sprintf("%s %dch %dHz", s.Encoding, s.Channels, s.Rate)
}

func unsupported(wf *WaveFormat, reason string) error {
	return errors.New(audiocore.ErrUnsupportedFormat).
		Component("format").
		Context("tag", fmt.Sprintf("0x%04x", uint16(wf.Tag))).
		Context("channels", wf.Channels).
		Context("bits", wf.BitsPerSample).
		Context("reason", reason).
		Build()
}

// ToSampleSpec translates a client wave format into a host sample spec.
// Every rejection wraps audiocore.ErrUnsupportedFormat.
func ToSampleSpec(wf *WaveFormat) (SampleSpec, error) {
	if wf == nil {
		return SampleSpec{}, errors.New(audiocore.ErrNilPointer).Component("format").Build()
	}
	if wf.SamplesPerSec == 0 {
		return SampleSpec{}, unsupported(wf, "zero sample rate")
	}
	if wf.Channels == 0 || wf.Channels > MaxChannels {
		return SampleSpec{}, unsupported(wf, "channel count out of range")
	}

	spec := SampleSpec{Rate: wf.SamplesPerSec, Channels: int(wf.Channels)}

	switch wf.Tag {
	case TagIEEEFloat:
		if wf.BitsPerSample != 32 {
			return SampleSpec{}, unsupported(wf, "float requires 32 bits")
		}
		spec.Encoding = EncodingF32LE
	case TagPCM:
		spec.Encoding = pcmEncoding(wf.BitsPerSample, wf.BitsPerSample)
		if spec.Encoding == EncodingInvalid {
			return SampleSpec{}, unsupported(wf, "unsupported PCM width")
		}
	case TagALaw, TagMuLaw:
		if wf.BitsPerSample != 8 {
			return SampleSpec{}, unsupported(wf, "companded formats require 8 bits")
		}
		spec.Encoding = EncodingALaw
		if wf.Tag == TagMuLaw {
			spec.Encoding = EncodingMuLaw
		}
	case TagExtensible:
		return extensibleSpec(wf)
	default:
		return SampleSpec{}, unsupported(wf, "unknown format tag")
	}

	// plain tags carry no mask, only mono and stereo have a defined layout
	if wf.Channels > 2 {
		return SampleSpec{}, unsupported(wf, "plain tags support one or two channels")
	}
	spec.Map = autoMap(spec.Channels)
	return spec, nil
}

func pcmEncoding(container, valid uint16) Encoding {
	switch {
	case container == 8 && valid == 8:
		return EncodingU8
	case container == 16 && valid == 16:
		return EncodingS16LE
	case container == 24 && valid == 24:
		return EncodingS24LE
	case container == 32 && valid == 24:
		return EncodingS24In32LE
	case container == 32 && valid == 32:
		return EncodingS32LE
	default:
		return EncodingInvalid
	}
}

func extensibleSpec(wf *WaveFormat) (SampleSpec, error) {
	spec := SampleSpec{Rate: wf.SamplesPerSec, Channels: int(wf.Channels)}

	switch wf.SubFormat {
	case SubtypeIEEEFloat:
		if wf.BitsPerSample != 32 || (wf.ValidBitsPerSample != 0 && wf.ValidBitsPerSample != 32) {
			return SampleSpec{}, unsupported(wf, "float requires 32 valid bits")
		}
		spec.Encoding = EncodingF32LE
	case SubtypePCM:
		valid := wf.ValidBitsPerSample
		if valid == 0 {
			valid = wf.BitsPerSample
		}
		if valid > wf.BitsPerSample {
			return SampleSpec{}, unsupported(wf, "valid bits exceed container")
		}
		spec.Encoding = pcmEncoding(wf.BitsPerSample, valid)
		if spec.Encoding == EncodingInvalid {
			return SampleSpec{}, unsupported(wf, "unsupported PCM container/valid pairing")
		}
	case SubtypeALaw, SubtypeMuLaw:
		if wf.BitsPerSample != 8 {
			return SampleSpec{}, unsupported(wf, "companded formats require 8 bits")
		}
		spec.Encoding = EncodingALaw
		if wf.SubFormat == SubtypeMuLaw {
			spec.Encoding = EncodingMuLaw
		}
	default:
		return SampleSpec{}, unsupported(wf, "unknown subformat")
	}

	positions, err := mapFromMask(wf.ChannelMask, spec.Channels)
	if err != nil {
		return SampleSpec{}, unsupported(wf, err.Error())
	}
	spec.Map = positions
	return spec, nil
}

// ToWaveFormat builds the extensible descriptor for a host sample spec.
// The channel mask is the smallest standard layout that can hold every
// channel, preferring the one covering most of the sample spec's own positions.
func ToWaveFormat(spec SampleSpec) WaveFormat {
	size := spec.Encoding.SampleSize()
	wf := WaveFormat{
		Tag:            TagExtensible,
		Channels:       uint16(spec.Channels),
		SamplesPerSec:  spec.Rate,
		BlockAlign:     uint16(spec.FrameSize()),
		AvgBytesPerSec: uint32(spec.BytesPerSecond()),
		BitsPerSample:  uint16(8 * size),
		CbSize:         ExtensibleSize,
	}
	wf.ValidBitsPerSample = wf.BitsPerSample

	switch spec.Encoding {
	case EncodingF32LE:
		wf.SubFormat = SubtypeIEEEFloat
	case EncodingALaw:
		wf.SubFormat = SubtypeALaw
	case EncodingMuLaw:
		wf.SubFormat = SubtypeMuLaw
	case EncodingS24In32LE:
		wf.SubFormat = SubtypePCM
		wf.ValidBitsPerSample = 24
	case EncodingU8, EncodingS16LE, EncodingS24LE, EncodingS32LE, EncodingInvalid:
		wf.SubFormat = SubtypePCM
	}

	wf.ChannelMask = canonicalMask(spec)
	return wf
}

// ClosestMatch returns the canonical extensible descriptor when wf is an
// extensible format whose mask does not describe its channels, and nil
// when wf is acceptable as given.
func ClosestMatch(wf *WaveFormat) *WaveFormat {
	if wf == nil || wf.Tag != TagExtensible {
		return nil
	}
	mask := wf.ChannelMask
	if mask != 0 && mask != SpeakerAll && holdsChannels(mask, int(wf.Channels)) {
		return nil
	}
	spec, err := ToSampleSpec(wf)
	if err != nil {
		return nil
	}
	closest := ToWaveFormat(spec)
	return &closest
}

// Validate checks the structural fields the translation does not look at
func Validate(wf *WaveFormat) error {
	if wf == nil {
		return errors.New(audiocore.ErrNilPointer).Component("format").Build()
	}
	if wf.Tag == TagExtensible && wf.CbSize < ExtensibleSize {
		return errors.New(audiocore.ErrInvalidArgument).
			Component("format").
			Context("cb_size", wf.CbSize).
			Build()
	}
	if wf.BlockAlign == 0 || wf.AvgBytesPerSec == 0 {
		return errors.New(audiocore.ErrInvalidArgument).
			Component("format").
			Context("reason", "zero block align or byte rate").
			Build()
	}
	if wf.Channels == 0 {
		return unsupported(wf, "zero channels")
	}
	return nil
}

// NewPCM builds a plain descriptor with consistent derived fields
func NewPCM(tag Tag, rate uint32, channels, bits uint16) WaveFormat {
	block := channels * bits / 8
	return WaveFormat{
		Tag:            tag,
		Channels:       channels,
		SamplesPerSec:  rate,
		BitsPerSample:  bits,
		BlockAlign:     block,
		AvgBytesPerSec: rate * uint32(block),
	}
}

// NewExtensible builds an extensible descriptor with consistent derived fields
func NewExtensible(subtype uuid.UUID, rate uint32, channels, bits, valid uint16, mask uint32) WaveFormat {
	wf := NewPCM(TagExtensible, rate, channels, bits)
	wf.CbSize = ExtensibleSize
	wf.ValidBitsPerSample = valid
	wf.ChannelMask = mask
	wf.SubFormat = subtype
	return wf
}
