package engine

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Handle identifies a live stream. The high 16 bits carry the slot
// generation and the low 16 bits the slot index. Generations start at 1,
// so the zero handle is never issued.
type Handle uint32

const maxSlots = 1 << 16

func (h Handle) index() int { return int(h & 0xFFFF) }
func (h Handle) generation() uint16 { return uint16(h >> 16) }

type slot struct {
	gen    uint16
	stream *stream
}

// handleTable is a generation-checked slot table. Retiring a handle bumps
// its slot generation, so a stale handle never resolves again even after
// the slot is reused.
type handleTable struct {
	slots []slot
	free  []int
	live  int
}

func (t *handleTable) insert(s *stream) (Handle, error) {
	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= maxSlots {
			return 0, errors.New(audiocore.ErrOutOfMemory).
				Component(componentEngine).
				Context("slots", len(t.slots)).
				Build()
		}
		t.slots = append(t.slots, slot{gen: 1})
		idx = len(t.slots) - 1
	}

	sl := &t.slots[idx]
	sl.stream = s
	t.live++
	return Handle(uint32(sl.gen)<<16 | uint32(idx)), nil
}

func (t *handleTable) lookup(h Handle) *stream {
	idx, gen := h.index(), h.generation()
	if gen == 0 || idx >= len(t.slots) {
		return nil
	}
	if sl := t.slots[idx]; sl.gen == gen {
		return sl.stream
	}
	return nil
}

// remove retires h and returns the stream it named
func (t *handleTable) remove(h Handle) *stream {
	s := t.lookup(h)
	if s == nil {
		return nil
	}
	sl := &t.slots[h.index()]
	sl.stream = nil
	sl.gen++
	if sl.gen == 0 {
		sl.gen = 1
	}
	t.free = append(t.free, h.index())
	t.live--
	return s
}

// streams returns every live stream in slot order
func (t *handleTable) streams() []*stream {
	out := make([]*stream, 0, t.live)
	for i := range t.slots {
		if t.slots[i].stream != nil {
			out = append(out, t.slots[i].stream)
		}
	}
	return out
}

func (t *handleTable) len() int { return t.live }
