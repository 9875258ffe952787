package dispatch

import (
	"cmp"
	"math"
	"slices"
	"sync"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Ptr32 is an address in a 32-bit client address space. Zero is null.
type Ptr32 uint32

const (
	arenaBase  = 0x00010000
	arenaAlign = 16
)

type region struct {
	base Ptr32
	size int // reserved bytes, at least len(data)
	data []byte
}

// Arena maps Go byte slices into a 32-bit address space for clients that
// cannot hold 64-bit references. Mapped memory is shared, not copied:
// writes through a resolved address land in the original slice.
// Retired address ranges are reused by later mappings that fit.
type Arena struct {
	mu      sync.Mutex
	next    uint64
	live    []region // sorted by base
	retired []region
}

// NewArena returns an empty arena
func NewArena() *Arena {
	return &Arena{next: arenaBase}
}

// Map exposes b at a 32-bit address. An empty slice maps to null.
func (a *Arena) Map(b []byte) (Ptr32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	size := (len(b) + arenaAlign - 1) &^ (arenaAlign - 1)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.retired {
		if a.retired[i].size >= len(b) {
			r := a.retired[i]
			a.retired = slices.Delete(a.retired, i, i+1)
			r.data = b
			a.insertLocked(r)
			return r.base, nil
		}
	}

	if a.next+uint64(size) > math.MaxUint32 {
		return 0, errors.New(audiocore.ErrOutOfMemory).
			Component(componentDispatch).
			Context("mapping_bytes", len(b)).
			Context("live_mappings", len(a.live)).
			Build()
	}
	r := region{base: Ptr32(a.next), size: size, data: b}
	a.next += uint64(size)
	a.insertLocked(r)
	return r.base, nil
}

// Resolve returns n bytes starting at p. The range must lie inside one
// live mapping.
func (a *Arena) Resolve(p Ptr32, n int) ([]byte, error) {
	if p == 0 {
		return nil, errors.New(audiocore.ErrNilPointer).
			Component(componentDispatch).
			Build()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	i, found := slices.BinarySearchFunc(a.live, p, compareBase)
	if !found {
		i--
	}
	if i >= 0 && n >= 0 {
		r := a.live[i]
		off := int(p - r.base)
		if off+n <= len(r.data) {
			return r.data[off : off+n : off+n], nil
		}
	}
	return nil, errors.New(audiocore.ErrInvalidArgument).
		Component(componentDispatch).
		Context("address", uint32(p)).
		Context("length", n).
		Build()
}

// Unmap retires the mapping starting at p. Unknown addresses are ignored.
func (a *Arena) Unmap(p Ptr32) {
	if p == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	i, found := slices.BinarySearchFunc(a.live, p, compareBase)
	if !found {
		return
	}
	r := a.live[i]
	a.live = slices.Delete(a.live, i, i+1)
	r.data = nil
	a.retired = append(a.retired, r)
}

// Live returns the number of active mappings
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func (a *Arena) insertLocked(r region) {
	i, _ := slices.BinarySearchFunc(a.live, r.base, compareBase)
	a.live = slices.Insert(a.live, i, r)
}

func compareBase(r region, p Ptr32) int {
	return cmp.Compare(r.base, p)
}
