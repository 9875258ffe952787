package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
)

func TestArenaMapAliases(t *testing.T) {
	t.Parallel()

	a := NewArena()
	buf := make([]byte, 100)

	p, err := a.Map(buf)
	require.NoError(t, err)
	assert.Equal(t, Ptr32(arenaBase), p)

	view, err := a.Resolve(p+10, 4)
	require.NoError(t, err)
	copy(view, "abcd")
	assert.Equal(t, []byte("abcd"), buf[10:14], "writes land in the mapped slice")

	q, err := a.Map(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, p+112, q, "addresses are 16 byte aligned")
	assert.Equal(t, 2, a.Live())
}

func TestArenaResolveBounds(t *testing.T) {
	t.Parallel()

	a := NewArena()
	p, err := a.Map(make([]byte, 32))
	require.NoError(t, err)

	_, err = a.Resolve(0, 1)
	require.ErrorIs(t, err, audiocore.ErrNilPointer)

	_, err = a.Resolve(p, 33)
	require.ErrorIs(t, err, audiocore.ErrInvalidArgument)

	_, err = a.Resolve(p-1, 1)
	require.ErrorIs(t, err, audiocore.ErrInvalidArgument, "below the first mapping")

	_, err = a.Resolve(p+30, 2)
	require.NoError(t, err)
}

func TestArenaReusesRetiredRanges(t *testing.T) {
	t.Parallel()

	a := NewArena()
	p, err := a.Map(make([]byte, 64))
	require.NoError(t, err)
	a.Unmap(p)
	a.Unmap(p) // unknown addresses are ignored
	assert.Zero(t, a.Live())

	_, err = a.Resolve(p, 1)
	require.Error(t, err, "retired ranges do not resolve")

	q, err := a.Map(make([]byte, 40))
	require.NoError(t, err)
	assert.Equal(t, p, q)

	r, err := a.Map(make([]byte, 80))
	require.NoError(t, err)
	assert.Greater(t, r, q, "too large for the retired range")
}

func TestArenaEmptyMapsToNull(t *testing.T) {
	t.Parallel()

	a := NewArena()
	p, err := a.Map(nil)
	require.NoError(t, err)
	assert.Zero(t, p)
	assert.Zero(t, a.Live())
}
