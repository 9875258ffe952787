package media

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/errors"
)

func TestContainerFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Container
	}{
		{"a.wav", ContainerWAV},
		{"/x/B.WAV", ContainerWAV},
		{"song.flac", ContainerFLAC},
		{"song.mp3", ContainerMP3},
		{"song.ogg", ContainerVorbis},
		{"song.oga", ContainerVorbis},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, err := ContainerFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ContainerFromPath("notes.txt")
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.wav")
	w, err := CreateWAV(path, 44100, 2)
	require.NoError(t, err)

	in := []float32{0, 0, 0.5, -0.5, 1, -1, 0.25, -0.25}
	require.NoError(t, w.Write(in[:4]))
	require.NoError(t, w.Write(in[4:]))
	require.NoError(t, w.Write(nil))
	assert.Equal(t, len(in), w.Samples())
	require.NoError(t, w.Close())

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 44100, src.SampleRate())
	assert.Equal(t, 2, src.Channels())

	out, err := ReadAll(src)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/16384, "sample %d", i)
	}
}

func TestWAVClamps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "loud.wav")
	w, err := CreateWAV(path, 8000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write([]float32{3, -3}))
	require.NoError(t, w.Close())

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	out, err := ReadAll(src)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1, out[0], 0.001)
	assert.InDelta(t, -1, out[1], 0.001)
}

func TestCreateWAVRejectsLayout(t *testing.T) {
	t.Parallel()

	_, err := CreateWAV(filepath.Join(t.TempDir(), "x.wav"), 0, 2)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	garbage := bytes.Repeat([]byte("not audio "), 64)
	for _, c := range []Container{ContainerWAV, ContainerFLAC, ContainerVorbis} {
		t.Run(string(c), func(t *testing.T) {
			t.Parallel()
			_, err := Decode(bytes.NewReader(garbage), c)
			require.Error(t, err)
			var ee *errors.EnhancedError
			assert.True(t, errors.As(err, &ee), "decode errors are enhanced")
		})
	}

	_, err := Decode(bytes.NewReader(garbage), Container("aiff"))
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "missing.flac"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestFloat32LE(t *testing.T) {
	t.Parallel()

	src := []float32{0.5, -1, 0.125}
	b := make([]byte, 10) // room for two samples only
	assert.Equal(t, 2, PutFloat32LE(b, src))
	assert.Equal(t, src[:2], Float32LE(b))
}

func TestFLACFrameConversion(t *testing.T) {
	t.Parallel()

	s := &flacSource{width: 3, divisor: 8388608}
	// 0x800000 is the most negative 24-bit sample, 0x400000 is half scale
	got := s.convert([]byte{0x00, 0x00, 0x80, 0x00, 0x00, 0x40})
	assert.Equal(t, []float32{-1, 0.5}, got)

	s = &flacSource{width: 2, divisor: 32768}
	assert.Equal(t, []float32{-0.5}, s.convert([]byte{0x00, 0xc0}))
}

type sliceSource struct {
	data []float32
}

func (s *sliceSource) SampleRate() int { return 48000 }
func (s *sliceSource) Channels() int   { return 1 }
func (s *sliceSource) Close() error    { return nil }

func (s *sliceSource) ReadSamples(dst []float32) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(dst, s.data)
	s.data = s.data[n:]
	return n, nil
}

func TestReadAll(t *testing.T) {
	t.Parallel()

	data := make([]float32, 10000)
	for i := range data {
		data[i] = float32(i)
	}
	out, err := ReadAll(&sliceSource{data: append([]float32(nil), data...)})
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
