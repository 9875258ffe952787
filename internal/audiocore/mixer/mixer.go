// Package mixer applies per-channel volume to interleaved sample buffers
// in every encoding a stream may carry.
package mixer

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/errors"
)

const componentMixer = "mixer"

const (
	s24Max = 1<<23 - 1
	s24Min = -1 << 23
)

// Silence fills buf with the silence pattern of enc
func Silence(enc format.Encoding, buf []byte) {
	v := enc.SilenceByte()
	if v == 0 {
		clear(buf)
		return
	}
	for i := range buf {
		buf[i] = v
	}
}

// Apply scales buf in place by one gain per channel. All-zero gains write
// silence, all-one gains leave the buffer untouched. A trailing partial
// frame is left as is.
func Apply(enc format.Encoding, buf []byte, gains []float32) error {
	size := enc.SampleSize()
	if size == 0 || len(gains) == 0 {
		return errors.New(audiocore.ErrInvalidArgument).
			Component(componentMixer).
			Context("encoding", enc.String()).
			Context("channels", len(gains)).
			Build()
	}

	switch {
	case allEqual(gains, 0):
		Silence(enc, buf)
		return nil
	case allEqual(gains, 1):
		return nil
	}

	frames := len(buf) / (size * len(gains))
	buf = buf[:frames*size*len(gains)]

	switch enc {
	case format.EncodingU8:
		scaleU8(buf, gains)
	case format.EncodingS16LE:
		scaleS16(buf, gains)
	case format.EncodingS24LE:
		scaleS24(buf, gains)
	case format.EncodingS24In32LE, format.EncodingS32LE:
		scaleS32(buf, gains)
	case format.EncodingF32LE:
		scaleF32(buf, gains)
	case format.EncodingALaw:
		scaleLaw(buf, gains, alawToLinear, linearToAlaw)
	case format.EncodingMuLaw:
		scaleLaw(buf, gains, ulawToLinear, linearToUlaw)
	case format.EncodingInvalid:
		return errors.New(audiocore.ErrInvalidArgument).
			Component(componentMixer).
			Context("encoding", enc.String()).
			Build()
	}
	return nil
}

func allEqual(gains []float32, v float32) bool {
	for _, g := range gains {
		if g != v {
			return false
		}
	}
	return true
}

func clampInt(v float64, lo, hi int64) int64 {
	switch {
	case v >= float64(hi):
		return hi
	case v <= float64(lo):
		return lo
	default:
		return int64(math.Round(v))
	}
}

func scaleU8(buf []byte, gains []float32) {
	ch := len(gains)
	for i := range buf {
		centered := float64(int(buf[i]) - 128)
		v := clampInt(centered*float64(gains[i%ch]), -128, 127)
		buf[i] = byte(v + 128)
	}
}

func scaleS16(buf []byte, gains []float32) {
	ch := len(gains)
	for i, n := 0, 0; i+2 <= len(buf); i, n = i+2, n+1 {
		s := int16(binary.LittleEndian.Uint16(buf[i:]))
		v := clampInt(float64(s)*float64(gains[n%ch]), math.MinInt16, math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(v)))
	}
}

func scaleS24(buf []byte, gains []float32) {
	ch := len(gains)
	for i, n := 0, 0; i+3 <= len(buf); i, n = i+3, n+1 {
		raw := int32(buf[i]) | int32(buf[i+1])<<8 | int32(int8(buf[i+2]))<<16
		v := clampInt(float64(raw)*float64(gains[n%ch]), s24Min, s24Max)
		buf[i] = byte(v)
		buf[i+1] = byte(v >> 8)
		buf[i+2] = byte(v >> 16)
	}
}

func scaleS32(buf []byte, gains []float32) {
	ch := len(gains)
	for i, n := 0, 0; i+4 <= len(buf); i, n = i+4, n+1 {
		s := int32(binary.LittleEndian.Uint32(buf[i:]))
		v := clampInt(float64(s)*float64(gains[n%ch]), math.MinInt32, math.MaxInt32)
		binary.LittleEndian.PutUint32(buf[i:], uint32(int32(v)))
	}
}

func scaleF32(buf []byte, gains []float32) {
	ch := len(gains)
	for i, n := 0, 0; i+4 <= len(buf); i, n = i+4, n+1 {
		s := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
		binary.LittleEndian.PutUint32(buf[i:], math.Float32bits(s*gains[n%ch]))
	}
}

func scaleLaw(buf []byte, gains []float32, decode func(byte) int16, encode func(int16) byte) {
	ch := len(gains)
	for i := range buf {
		lin := decode(buf[i])
		v := clampInt(float64(lin)*float64(gains[i%ch]), math.MinInt16, math.MaxInt16)
		buf[i] = encode(int16(v))
	}
}
