// Package ringbuf holds the per-stream render ring and the capture packet
// pool. Neither type locks: every call happens under the engine lock.
package ringbuf

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

const componentRingbuf = "ringbuf"

// Sink accepts bytes drained from a render ring, typically a host stream
type Sink interface {
	Write(p []byte) (int, error)
}

// Processor runs in place on committed render bytes before they are
// queued for the host.
type Processor func(buf []byte) error

// Ring is the render-side byte ring of a stream. The client leases and
// commits at lcl_offs+held, the timing loop advances lcl_offs and drains
// committed bytes from the host cursor.
//
// Storage is twice the client capacity so bytes committed but not yet
// accepted by the host survive a full client buffer being rewritten.
type Ring struct {
	buf      []byte
	capacity int
	frame    int
	silence  byte

	lclOffs     int // local play cursor
	paOffs      int // host cursor
	heldBytes   int // client padding
	paHeldBytes int // committed, not yet handed to the host

	locked  int // 0 none, >0 direct lease, <0 staging lease
	staging []byte

	clockWritten uint64
}

// NewRing allocates a ring with the given client capacity in bytes. The
// storage is silence filled.
func NewRing(capacity, frameSize int, silence byte) (*Ring, error) {
	if capacity <= 0 || frameSize <= 0 || capacity%frameSize != 0 {
		return nil, errors.New(audiocore.ErrInvalidArgument).
			Component(componentRingbuf).
			Context("capacity", capacity).
			Context("frame_size", frameSize).
			Build()
	}

	r := &Ring{
		buf:      make([]byte, 2*capacity),
		capacity: capacity,
		frame:    frameSize,
		silence:  silence,
	}
	fill(r.buf, silence)
	return r, nil
}

// Capacity returns the client-visible size in bytes
func (r *Ring) Capacity() int { return r.capacity }

// Storage returns the size of the backing store in bytes
func (r *Ring) Storage() int { return len(r.buf) }

// Held returns the client padding in bytes
func (r *Ring) Held() int { return r.heldBytes }

// Free returns the bytes a new lease may take
func (r *Ring) Free() int { return r.capacity - r.heldBytes }

// Pending returns bytes committed but not yet drained to the host
func (r *Ring) Pending() int { return r.paHeldBytes }

// Leased returns the size of the outstanding lease, 0 when none
func (r *Ring) Leased() int {
	if r.locked < 0 {
		return -r.locked
	}
	return r.locked
}

// ClockWritten returns the total number of bytes ever committed
func (r *Ring) ClockWritten() uint64 { return r.clockWritten }

// Lease reserves n bytes for the client and returns a contiguous,
// silence-filled region to write them into.
func (r *Ring) Lease(n int) ([]byte, error) {
	if r.locked != 0 {
		return nil, errors.New(audiocore.ErrOutOfOrder).
			Component(componentRingbuf).
			Context("leased", r.Leased()).
			Build()
	}
	if n == 0 {
		return nil, nil
	}
	if n < 0 || r.heldBytes+n > r.capacity {
		return nil, errors.New(audiocore.ErrBufferTooLarge).
			Component(componentRingbuf).
			Context("requested", n).
			Context("held", r.heldBytes).
			Context("capacity", r.capacity).
			Build()
	}

	wri := r.writeOffset()
	var region []byte
	if wri+n > len(r.buf) {
		if cap(r.staging) < n {
			r.staging = make([]byte, n)
		}
		region = r.staging[:n]
		r.locked = -n
	} else {
		region = r.buf[wri : wri+n]
		r.locked = n
	}
	fill(region, r.silence)
	return region, nil
}

// Commit resolves the outstanding lease with n written bytes. Committing
// zero bytes cancels the lease. A failed commit leaves every cursor and
// the lease as they were.
func (r *Ring) Commit(n int, silent bool, process Processor) error {
	if n == 0 {
		r.locked = 0
		return nil
	}
	if r.locked == 0 {
		return errors.New(audiocore.ErrOutOfOrder).
			Component(componentRingbuf).
			Context("committed", n).
			Build()
	}
	if n < 0 || n > r.Leased() {
		return errors.New(audiocore.ErrInvalidSize).
			Component(componentRingbuf).
			Context("committed", n).
			Context("leased", r.Leased()).
			Build()
	}

	wri := r.writeOffset()
	var region []byte
	if r.locked > 0 {
		region = r.buf[wri : wri+n]
	} else {
		region = r.staging[:n]
	}

	if silent {
		fill(region, r.silence)
	} else if process != nil {
		if err := process(region); err != nil {
			return err
		}
	}

	if r.locked < 0 {
		r.wrapCopy(wri, region)
	}

	r.heldBytes += n
	r.paHeldBytes += n
	if r.paHeldBytes > len(r.buf) {
		// oldest unsent bytes were overwritten, skip the host cursor past them
		r.paOffs = (r.paOffs + r.paHeldBytes - len(r.buf)) % len(r.buf)
		r.paHeldBytes = len(r.buf)
	}
	r.clockWritten += uint64(n)
	r.locked = 0
	return nil
}

// DrainTo copies up to min(writable, pending) bytes from the host cursor
// into sink, wrapping at most once. It returns the bytes the sink took.
func (r *Ring) DrainTo(sink Sink, writable int) (int, error) {
	n := min(writable, r.paHeldBytes)
	if n <= 0 {
		return 0, nil
	}

	total := 0
	if r.paOffs+n > len(r.buf) {
		head := len(r.buf) - r.paOffs
		written, err := sink.Write(r.buf[r.paOffs:])
		r.consumeHost(written)
		total += written
		if err != nil || written < head {
			return total, err
		}
		n -= head
	}

	written, err := sink.Write(r.buf[r.paOffs : r.paOffs+n])
	r.consumeHost(written)
	total += written
	return total, err
}

// Prebuffer writes silence so the host holds at least writable bytes once
// pending data is drained. It returns the silence bytes written.
func (r *Ring) Prebuffer(sink Sink, writable int) (int, error) {
	gap := writable - r.paHeldBytes
	gap -= gap % r.frame
	if gap <= 0 {
		return 0, nil
	}
	silence := make([]byte, gap)
	fill(silence, r.silence)
	return sink.Write(silence)
}

// Advance moves the local play cursor by min(n, held) bytes and returns
// the distance moved.
func (r *Ring) Advance(n int) int {
	n = min(n, r.heldBytes)
	if n <= 0 {
		return 0
	}
	r.lclOffs = (r.lclOffs + n) % len(r.buf)
	r.heldBytes -= n
	return n
}

// Flush zeroes every cursor and counter. The lease, if any, is dropped.
func (r *Ring) Flush() {
	r.lclOffs = 0
	r.paOffs = 0
	r.heldBytes = 0
	r.paHeldBytes = 0
	r.locked = 0
	r.clockWritten = 0
}

func (r *Ring) writeOffset() int {
	return (r.lclOffs + r.heldBytes) % len(r.buf)
}

func (r *Ring) consumeHost(n int) {
	if n <= 0 {
		return
	}
	r.paOffs = (r.paOffs + n) % len(r.buf)
	r.paHeldBytes -= n
}

// wrapCopy copies src into storage at off, continuing at the start when
// it runs past the end.
func (r *Ring) wrapCopy(off int, src []byte) {
	head := copy(r.buf[off:], src)
	copy(r.buf, src[head:])
}

func fill(b []byte, v byte) {
	if v == 0 {
		clear(b)
		return
	}
	for i := range b {
		b[i] = v
	}
}
