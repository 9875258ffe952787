// Package media decodes audio files for playback and writes captured
// audio to WAV.
package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/pulseshim/internal/errors"
)

const componentMedia = "media"

var (
	ErrUnknownContainer = errors.Sentinel(componentMedia, errors.CategoryValidation, "unknown audio container")
	ErrUnsupportedAudio = errors.Sentinel(componentMedia, errors.CategoryFormat, "unsupported audio encoding")
)

// Container identifies an audio file type
type Container string

const (
	ContainerWAV    Container = "wav"
	ContainerFLAC   Container = "flac"
	ContainerMP3    Container = "mp3"
	ContainerVorbis Container = "ogg"
)

// Source yields interleaved float32 samples in [-1, 1]
type Source interface {
	SampleRate() int
	Channels() int
	// ReadSamples fills dst with interleaved samples and returns how
	// many were written. It returns io.EOF once the stream is drained.
	ReadSamples(dst []float32) (int, error)
	Close() error
}

// ContainerFromPath picks a container from the file extension
func ContainerFromPath(path string) (Container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return ContainerWAV, nil
	case ".flac":
		return ContainerFLAC, nil
	case ".mp3":
		return ContainerMP3, nil
	case ".ogg", ".oga":
		return ContainerVorbis, nil
	}
	return "", errors.New(ErrUnknownContainer).
		Component(componentMedia).
		Category(errors.CategoryValidation).
		Context("path", path).
		Build()
}

// Open decodes the file at path. Closing the source closes the file.
func Open(path string) (Source, error) {
	c, err := ContainerFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMedia).
			Category(errors.CategoryFileIO).
			Context("operation", "open").
			Context("path", path).
			Build()
	}

	src, err := Decode(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSource{Source: src, file: f}, nil
}

// Decode reads r as the given container
func Decode(r io.ReadSeeker, c Container) (Source, error) {
	var (
		src Source
		err error
	)
	switch c {
	case ContainerWAV:
		src, err = decodeWAV(r)
	case ContainerFLAC:
		src, err = decodeFLAC(r)
	case ContainerMP3:
		src, err = decodeMP3(r)
	case ContainerVorbis:
		src, err = decodeVorbis(r)
	default:
		return nil, errors.New(ErrUnknownContainer).
			Component(componentMedia).
			Category(errors.CategoryValidation).
			Context("container", string(c)).
			Build()
	}
	if err != nil {
		return nil, decodeError(err, c)
	}
	return src, nil
}

func decodeError(err error, c Container) error {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return err
	}
	return errors.New(err).
		Component(componentMedia).
		Category(errors.CategoryFormat).
		Context("container", string(c)).
		Build()
}

func unsupported(c Container, reason string) error {
	return errors.New(ErrUnsupportedAudio).
		Component(componentMedia).
		Category(errors.CategoryFormat).
		Context("container", string(c)).
		Context("reason", reason).
		Build()
}

type fileSource struct {
	Source
	file *os.File
}

func (s *fileSource) Close() error {
	err := s.Source.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAll drains src
func ReadAll(src Source) ([]float32, error) {
	out := make([]float32, 0, 4096)
	buf := make([]float32, 4096)
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
