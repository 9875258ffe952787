package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pulseshim/internal/audiocore"
)

// chunk is one host fragment; nil data with n > 0 is a hole
type chunk struct {
	data []byte
	n    int
}

type fakeSource struct {
	chunks  []chunk
	drops   int
	peekErr error
}

func (f *fakeSource) Peek() ([]byte, int, error) {
	if f.peekErr != nil {
		return nil, 0, f.peekErr
	}
	if len(f.chunks) == 0 {
		return nil, 0, nil
	}
	c := f.chunks[0]
	return c.data, c.n, nil
}

func (f *fakeSource) Drop() error {
	f.chunks = f.chunks[1:]
	f.drops++
	return nil
}

func (f *fakeSource) readable() int {
	total := 0
	for _, c := range f.chunks {
		total += c.n
	}
	return total
}

func bytesOf(v byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func periodsOf(values ...byte) *fakeSource {
	src := &fakeSource{}
	for _, v := range values {
		src.chunks = append(src.chunks, chunk{data: bytesOf(v, 4), n: 4})
	}
	return src
}

func TestNewPacketPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPacketPool(10, 4, 0)
	require.ErrorIs(t, err, audiocore.ErrInvalidArgument)

	_, err = NewPacketPool(16, 0, 0)
	require.ErrorIs(t, err, audiocore.ErrInvalidArgument)

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, p.FreeCount())
	assert.Equal(t, 0, p.FilledCount())
}

func TestFillMovesFreeToFilled(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := periodsOf(1, 2)

	n, err := p.Fill(src, src.readable(), true, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, p.FilledCount())
	assert.Equal(t, 2, p.FreeCount())
	assert.Equal(t, 8, p.Held())
	assert.Equal(t, 2, src.drops)

	head := p.Head()
	require.NotNil(t, head)
	assert.Equal(t, bytesOf(1, 4), head.Data)
	assert.Equal(t, audiocore.RefTime(1000), head.Stamp)
	assert.False(t, head.Discontinuous)
}

func TestFillNotStartedDiscards(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := periodsOf(1, 2, 3)

	n, err := p.Fill(src, src.readable(), false, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, p.FilledCount())
	assert.Equal(t, 0, p.Held())
	assert.Equal(t, 3, src.drops, "host data consumed")
}

func TestFillStagesLongChunks(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := &fakeSource{chunks: []chunk{
		{data: []byte{1, 2, 3, 4, 5, 6}, n: 6},
		{data: []byte{7, 8}, n: 2},
	}}

	n, err := p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pkt, err := p.Lock()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, pkt.Data)
	require.NoError(t, p.Consume())

	pkt, err = p.Lock()
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, pkt.Data, "remainder staged then topped up from the host")
}

func TestFillStagedRemainderCountsAsReadable(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := &fakeSource{chunks: []chunk{{data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, n: 8}}}

	// only one period announced, the rest stays staged
	n, err := p.Fill(src, 4, true, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Fill(src, 0, true, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, p.FilledCount())
}

func TestFillHoleIsSilence(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(8, 4, 0x80)
	require.NoError(t, err)
	src := &fakeSource{chunks: []chunk{{data: nil, n: 6}, {data: []byte{9, 9}, n: 2}}}

	n, err := p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pkt, err := p.Lock()
	require.NoError(t, err)
	assert.Equal(t, bytesOf(0x80, 4), pkt.Data)
	require.NoError(t, p.Consume())

	pkt, err = p.Lock()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x80, 9, 9}, pkt.Data)
}

func TestFillPeekErrorEndsTick(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := &fakeSource{peekErr: assert.AnError}

	n, err := p.Fill(src, 8, true, 0)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, n, "packet already claimed stays filled with silence")
}

func TestExhaustedPoolMarksDiscontinuity(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(12, 4, 0)
	require.NoError(t, err)

	src := periodsOf(1, 2, 3, 4)
	_, err = p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, p.FilledCount())
	assert.Equal(t, 0, p.FreeCount())
	assert.Equal(t, 12, p.Held(), "held stays at capacity")

	head := p.Head()
	require.NotNil(t, head)
	assert.True(t, head.Discontinuous)
	assert.Equal(t, bytesOf(2, 4), head.Data, "oldest packet was recycled")

	before := p.ClockWritten()
	assert.Equal(t, before+4, p.Position(head), "discontinuous head reports one period ahead")

	_, err = p.Lock()
	require.NoError(t, err)
	require.NoError(t, p.Consume())
	assert.Equal(t, before+8, p.ClockWritten(), "discontinuous release advances two periods")
}

func TestExhaustedPoolReusesNewestWhenOldestDiscontinuous(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(12, 4, 0)
	require.NoError(t, err)

	src := periodsOf(1, 2, 3, 4, 5)
	_, err = p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)

	// 1 recycled for 4 and marked 2, then 2 is discontinuous so the
	// newest (4) is overwritten by 5
	var got [][]byte
	for p.FilledCount() > 0 {
		pkt, err := p.Lock()
		require.NoError(t, err)
		got = append(got, append([]byte(nil), pkt.Data...))
		require.NoError(t, p.Consume())
	}
	assert.Equal(t, [][]byte{bytesOf(2, 4), bytesOf(3, 4), bytesOf(5, 4)}, got)
}

func TestLockUnlockConsume(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)

	pkt, err := p.Lock()
	require.NoError(t, err)
	assert.Nil(t, pkt, "nothing filled")
	require.ErrorIs(t, p.Consume(), audiocore.ErrOutOfOrder)

	src := periodsOf(1, 2)
	_, err = p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)

	pkt, err = p.Lock()
	require.NoError(t, err)
	require.NotNil(t, pkt)
	_, err = p.Lock()
	require.ErrorIs(t, err, audiocore.ErrOutOfOrder)

	p.Unlock()
	assert.Same(t, pkt, p.Head(), "cancelled packet returns to the head")
	assert.Equal(t, 2, p.FilledCount())

	_, err = p.Lock()
	require.NoError(t, err)
	require.NoError(t, p.Consume())
	assert.Equal(t, uint64(4), p.ClockWritten())
	assert.Equal(t, 4, p.Held())
	assert.Equal(t, 3, p.FreeCount())
}

func TestResetReturnsEverything(t *testing.T) {
	t.Parallel()

	p, err := NewPacketPool(16, 4, 0)
	require.NoError(t, err)
	src := periodsOf(1, 2, 3)
	_, err = p.Fill(src, src.readable(), true, 0)
	require.NoError(t, err)
	_, err = p.Lock()
	require.NoError(t, err)

	p.Reset()
	assert.Equal(t, 4, p.FreeCount())
	assert.Equal(t, 0, p.FilledCount())
	assert.Nil(t, p.Locked())
	assert.Equal(t, 0, p.Held())
	assert.Equal(t, uint64(12), p.ClockWritten(), "held bytes count as delivered")
}
