package media

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/pulseshim/internal/errors"
)

const wavFormatPCM = 1

type wavSource struct {
	dec     *wav.Decoder
	buf     *audio.IntBuffer
	divisor float32
	offset  float32 // unsigned 8-bit samples are centred on 128
}

func decodeWAV(r io.ReadSeeker) (Source, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, unsupported(ContainerWAV, "not a valid WAV file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, unsupported(ContainerWAV, "only integer PCM is supported")
	}
	divisor, ok := intScale(int(dec.BitDepth))
	if !ok {
		return nil, unsupported(ContainerWAV, "bit depth")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}

	s := &wavSource{
		dec:     dec,
		divisor: divisor,
		buf: &audio.IntBuffer{
			Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: int(dec.NumChans)},
		},
	}
	if dec.BitDepth == 8 {
		s.offset = 128
	}
	return s, nil
}

func (s *wavSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *wavSource) Channels() int   { return int(s.dec.NumChans) }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, v := range s.buf.Data[:n] {
		dst[i] = (float32(v) - s.offset) / s.divisor
	}
	return n, nil
}

// WAVWriter records interleaved float samples as 16-bit PCM
type WAVWriter struct {
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer
	n    int
}

// CreateWAV creates path, and any missing parent directories, for writing
func CreateWAV(path string, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.Newf("invalid WAV layout: %d Hz, %d channels", sampleRate, channels).
			Component(componentMedia).
			Category(errors.CategoryValidation).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fileError(err, "mkdir", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fileError(err, "create", path)
	}

	format := &audio.Format{SampleRate: sampleRate, NumChannels: channels}
	return &WAVWriter{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, channels, wavFormatPCM),
		buf:  &audio.IntBuffer{Format: format, SourceBitDepth: 16},
	}, nil
}

// Write appends samples; a trailing partial frame is written as is
func (w *WAVWriter) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, v := range samples {
		w.buf.Data[i] = clampInt16(v)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fileError(err, "write", w.file.Name())
	}
	w.n += len(samples)
	return nil
}

// Samples returns the number of samples written so far
func (w *WAVWriter) Samples() int { return w.n }

// Close finalizes the header and closes the file
func (w *WAVWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fileError(err, "close", w.file.Name())
	}
	return nil
}

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component(componentMedia).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}
