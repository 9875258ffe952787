package media

import (
	"encoding/binary"
	"math"
)

// intScale returns the divisor mapping a signed integer sample of the
// given bit depth into [-1, 1).
func intScale(bits int) (float32, bool) {
	switch bits {
	case 8:
		return 128, true
	case 16:
		return 32768, true
	case 24:
		return 8388608, true
	case 32:
		return 2147483648, true
	}
	return 0, false
}

// PutFloat32LE writes src into dst as little-endian float32 and returns
// the number of samples written.
func PutFloat32LE(dst []byte, src []float32) int {
	n := min(len(dst)/4, len(src))
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
	return n
}

// Float32LE decodes little-endian float32 samples from b
func Float32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// clampInt16 scales a float sample to a 16-bit integer sample
func clampInt16(v float32) int {
	s := int(v * 32767)
	switch {
	case s > math.MaxInt16:
		return math.MaxInt16
	case s < math.MinInt16:
		return math.MinInt16
	}
	return s
}
