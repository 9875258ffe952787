package ringbuf

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Source is the host side of a capture stream. Peek returns the next
// readable chunk without consuming it; a nil slice with n > 0 is a hole
// of n bytes. Drop releases the chunk returned by the last Peek.
type Source interface {
	Peek() (data []byte, n int, err error)
	Drop() error
}

// Packet is one period of captured audio
type Packet struct {
	Data          []byte
	Stamp         audiocore.RefTime // monotonic device time of the fill
	Discontinuous bool
}

// PacketPool recycles fixed-size capture packets free → filled → locked
// → free. The packets share a single backing buffer.
type PacketPool struct {
	backing []byte
	period  int
	silence byte

	free   []*Packet
	filled []*Packet
	locked *Packet

	// staged remainder of a host chunk longer than a packet needed
	peek    []byte
	peekLen int
	peekOfs int

	heldBytes    int
	clockWritten uint64
}

// NewPacketPool allocates capacity bytes split into period sized packets.
// capacity must be a whole number of periods.
func NewPacketPool(capacity, period int, silence byte) (*PacketPool, error) {
	if period <= 0 || capacity < period || capacity%period != 0 {
		return nil, errors.New(audiocore.ErrInvalidArgument).
			Component(componentRingbuf).
			Context("capacity", capacity).
			Context("period", period).
			Build()
	}

	p := &PacketPool{
		backing: make([]byte, capacity),
		period:  period,
		silence: silence,
	}
	fill(p.backing, silence)

	count := capacity / period
	p.free = make([]*Packet, 0, count)
	p.filled = make([]*Packet, 0, count)
	for i := range count {
		p.free = append(p.free, &Packet{Data: p.backing[i*period : (i+1)*period]})
	}
	return p, nil
}

// Capacity returns the pool size in bytes
func (p *PacketPool) Capacity() int { return len(p.backing) }

// Period returns the packet size in bytes
func (p *PacketPool) Period() int { return p.period }

// Held returns the bytes held in filled and locked packets
func (p *PacketPool) Held() int { return p.heldBytes }

// ClockWritten returns the capture position in bytes
func (p *PacketPool) ClockWritten() uint64 { return p.clockWritten }

// FreeCount returns the number of packets ready for host data
func (p *PacketPool) FreeCount() int { return len(p.free) }

// FilledCount returns the number of packets waiting for the client
func (p *PacketPool) FilledCount() int { return len(p.filled) }

// Locked returns the packet leased to the client, nil when none
func (p *PacketPool) Locked() *Packet { return p.locked }

// Fill pulls whole periods from the host while readable plus the staged
// remainder covers one. When started is false the data is consumed and
// discarded. A host error ends the fill early; the number of packets
// filled is returned either way.
func (p *PacketPool) Fill(src Source, readable int, started bool, now audiocore.RefTime) (int, error) {
	avail := readable + p.peekLen - p.peekOfs
	filled := 0

	for avail >= p.period {
		var dst []byte
		if started {
			pkt := p.nextPacket()
			if pkt == nil {
				return filled, nil
			}
			pkt.Stamp = now
			pkt.Discontinuous = false
			p.filled = append(p.filled, pkt)
			dst = pkt.Data
			filled++
		}

		if err := p.copyPeriod(src, dst); err != nil {
			return filled, err
		}
		avail -= p.period
	}
	return filled, nil
}

// nextPacket pops a free packet, or recycles a filled one when the pool is
// exhausted. Recycling the oldest marks its successor discontinuous; when
// the oldest already carries the mark the newest is reused instead.
func (p *PacketPool) nextPacket() *Packet {
	if len(p.free) > 0 {
		pkt := p.free[0]
		p.free = p.free[1:]
		p.heldBytes += p.period
		return pkt
	}
	if len(p.filled) == 0 {
		return nil
	}

	oldest := p.filled[0]
	if oldest.Discontinuous {
		last := len(p.filled) - 1
		pkt := p.filled[last]
		p.filled = p.filled[:last]
		return pkt
	}
	if len(p.filled) > 1 {
		p.filled[1].Discontinuous = true
	}
	p.filled = p.filled[1:]
	return oldest
}

// copyPeriod moves one period from the staged remainder and the host into
// dst. dst may be nil to discard.
func (p *PacketPool) copyPeriod(src Source, dst []byte) error {
	rem := p.period
	for rem > 0 {
		if p.peekLen > 0 {
			n := min(rem, p.peekLen-p.peekOfs)
			if dst != nil {
				copy(dst[p.period-rem:], p.peek[p.peekOfs:p.peekOfs+n])
			}
			rem -= n
			p.peekOfs += n
			if p.peekOfs == p.peekLen {
				p.peekLen, p.peekOfs = 0, 0
			}
			continue
		}

		data, n, err := src.Peek()
		if err == nil && n == 0 {
			err = errors.Newf("host returned an empty chunk").
				Component(componentRingbuf).
				Category(errors.CategoryHost).
				Build()
		}
		if err != nil {
			if dst != nil {
				fill(dst[p.period-rem:], p.silence)
			}
			return err
		}

		take := min(rem, n)
		if dst != nil {
			p.copyChunk(dst[p.period-rem:p.period-rem+take], data, 0)
		}
		rem -= take

		if take < n {
			p.stage(data, take, n)
		}
		if err := src.Drop(); err != nil {
			return err
		}
	}
	return nil
}

// stage keeps chunk[from:n] for the next packet
func (p *PacketPool) stage(data []byte, from, n int) {
	size := n - from
	if cap(p.peek) < size {
		p.peek = make([]byte, size)
	}
	p.peek = p.peek[:size]
	p.copyChunk(p.peek, data, from)
	p.peekLen, p.peekOfs = size, 0
}

// copyChunk copies data[from:] into dst, synthesizing silence for holes
func (p *PacketPool) copyChunk(dst, data []byte, from int) {
	if data == nil {
		fill(dst, p.silence)
		return
	}
	copy(dst, data[from:])
}

// Head returns the oldest filled packet without locking it. A locked
// packet is no longer part of the filled list.
func (p *PacketPool) Head() *Packet {
	if len(p.filled) == 0 {
		return nil
	}
	return p.filled[0]
}

// Lock leases the oldest filled packet to the client. It returns nil
// without error when nothing is filled.
func (p *PacketPool) Lock() (*Packet, error) {
	if p.locked != nil {
		return nil, errors.New(audiocore.ErrOutOfOrder).
			Component(componentRingbuf).
			Build()
	}
	if len(p.filled) == 0 {
		return nil, nil
	}
	p.locked = p.filled[0]
	p.filled = p.filled[1:]
	return p.locked, nil
}

// Unlock cancels the lease and puts the packet back at the head of the
// filled list.
func (p *PacketPool) Unlock() {
	if p.locked == nil {
		return
	}
	p.filled = append([]*Packet{p.locked}, p.filled...)
	p.locked = nil
}

// Consume returns the locked packet to the free list and advances the
// capture position by one period, two when the packet was discontinuous.
func (p *PacketPool) Consume() error {
	pkt := p.locked
	if pkt == nil {
		return errors.New(audiocore.ErrOutOfOrder).
			Component(componentRingbuf).
			Build()
	}

	p.free = append(p.free, pkt)
	p.locked = nil
	p.heldBytes -= p.period
	p.clockWritten += uint64(p.period)
	if pkt.Discontinuous {
		p.clockWritten += uint64(p.period)
	}
	return nil
}

// Reset returns every packet to the free list and counts the held bytes
// as delivered.
func (p *PacketPool) Reset() {
	p.clockWritten += uint64(p.heldBytes)
	p.heldBytes = 0
	p.free = append(p.free, p.filled...)
	p.filled = p.filled[:0]
	if p.locked != nil {
		p.free = append(p.free, p.locked)
		p.locked = nil
	}
}

// Position returns the device position of the head packet in bytes
func (p *PacketPool) Position(pkt *Packet) uint64 {
	pos := p.clockWritten
	if pkt != nil && pkt.Discontinuous {
		pos += uint64(p.period)
	}
	return pos
}
