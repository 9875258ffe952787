package dispatch

import (
	"context"
	"sync"
)

// MIDI message results, as the multimedia system error codes
const (
	MMSysErrNoError     uint32 = 0
	MMSysErrBadDeviceID uint32 = 2
	MMSysErrNotSupp     uint32 = 8
)

// MIDIInfo describes the devices a MIDI driver exposes
type MIDIInfo struct {
	OutDevices int
	InDevices  int
}

// MIDINotify is one driver callback delivered through midi_notify_wait
type MIDINotify struct {
	Quit     bool
	Device   uint16
	Message  uint16
	Instance uint64
	Param1   uint64
	Param2   uint64
}

// MIDIDriver backs the MIDI operations. Without a driver they report
// E_NOTIMPL.
type MIDIDriver interface {
	Init(ctx context.Context) (MIDIInfo, error)
	Release() error
	OutMessage(dev uint16, msg uint32, user, p1, p2 uint64) uint32
	InMessage(dev uint16, msg uint32, user, p1, p2 uint64) uint32
	// NotifyWait blocks until a notification is queued or ctx ends
	NotifyWait(ctx context.Context) (MIDINotify, error)
}

// Short MIDI message opcodes handled by LoopbackMIDI
const (
	ModMessageData uint32 = 7 // MODM_DATA
	MidMessageOpen uint32 = 3 // MIDM_OPEN
	MimData        uint16 = 0x3C3
)

// LoopbackMIDI is a single-port driver that feeds every short message
// sent to its output back as input data.
type LoopbackMIDI struct {
	mu     sync.Mutex
	open   bool
	notify chan MIDINotify
}

// NewLoopbackMIDI returns a loopback driver with a bounded notify queue
func NewLoopbackMIDI() *LoopbackMIDI {
	return &LoopbackMIDI{notify: make(chan MIDINotify, 64)}
}

func (m *LoopbackMIDI) Init(ctx context.Context) (MIDIInfo, error) {
	if err := ctx.Err(); err != nil {
		return MIDIInfo{}, err
	}
	m.mu.Lock()
	m.open = true
	m.mu.Unlock()
	return MIDIInfo{OutDevices: 1, InDevices: 1}, nil
}

// Release wakes a pending NotifyWait with a quit notification
func (m *LoopbackMIDI) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	m.open = false
	select {
	case m.notify <- MIDINotify{Quit: true}:
	default:
	}
	return nil
}

func (m *LoopbackMIDI) OutMessage(dev uint16, msg uint32, user, p1, _ uint64) uint32 {
	if dev != 0 {
		return MMSysErrBadDeviceID
	}
	if msg != ModMessageData {
		return MMSysErrNotSupp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.notify <- MIDINotify{Device: dev, Message: MimData, Instance: user, Param1: p1}:
	default:
		// dropped like a full hardware input buffer
	}
	return MMSysErrNoError
}

func (m *LoopbackMIDI) InMessage(dev uint16, msg uint32, _, _, _ uint64) uint32 {
	if dev != 0 {
		return MMSysErrBadDeviceID
	}
	if msg != MidMessageOpen {
		return MMSysErrNotSupp
	}
	return MMSysErrNoError
}

func (m *LoopbackMIDI) NotifyWait(ctx context.Context) (MIDINotify, error) {
	select {
	case n := <-m.notify:
		return n, nil
	case <-ctx.Done():
		return MIDINotify{}, ctx.Err()
	}
}

var _ MIDIDriver = (*LoopbackMIDI)(nil)
