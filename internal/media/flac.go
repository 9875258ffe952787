package media

import (
	"encoding/binary"
	"io"

	"github.com/tphakala/flac"
)

type flacSource struct {
	dec     *flac.Decoder
	divisor float32
	width   int
	pending []float32
}

func decodeFLAC(r io.Reader) (Source, error) {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	if dec.BitsPerSample%8 != 0 {
		return nil, unsupported(ContainerFLAC, "bit depth")
	}
	divisor, ok := intScale(dec.BitsPerSample)
	if !ok {
		return nil, unsupported(ContainerFLAC, "bit depth")
	}
	return &flacSource{dec: dec, divisor: divisor, width: dec.BitsPerSample / 8}, nil
}

func (s *flacSource) SampleRate() int { return s.dec.SampleRate }
func (s *flacSource) Channels() int   { return s.dec.NChannels }
func (s *flacSource) Close() error    { return nil }

func (s *flacSource) ReadSamples(dst []float32) (int, error) {
	n := 0
	for n < len(dst) {
		if len(s.pending) == 0 {
			frame, err := s.dec.Next()
			if err == io.EOF {
				if n == 0 {
					return 0, io.EOF
				}
				return n, nil
			}
			if err != nil {
				return n, err
			}
			s.pending = s.convert(frame)
			continue
		}
		c := copy(dst[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

// convert turns one decoded frame of little-endian interleaved samples
// into floats
func (s *flacSource) convert(frame []byte) []float32 {
	out := make([]float32, len(frame)/s.width)
	for i := range out {
		b := frame[i*s.width:]
		var v int32
		switch s.width {
		case 1:
			v = int32(int8(b[0]))
		case 2:
			v = int32(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			v = int32(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) << 8 >> 8
		case 4:
			v = int32(binary.LittleEndian.Uint32(b))
		}
		out[i] = float32(v) / s.divisor
	}
	return out
}
