package format

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Wire sizes of the packed little-endian descriptor
const (
	WireSizeBase       = 18
	WireSizeExtensible = WireSizeBase + ExtensibleSize
)

// WireSize returns the encoded size of wf
func (wf *WaveFormat) WireSize() int {
	if wf.Tag == TagExtensible {
		return WireSizeExtensible
	}
	return WireSizeBase
}

// MarshalBinary encodes wf in the packed layout clients exchange. GUIDs
// use the mixed-endian Windows byte order.
func (wf *WaveFormat) MarshalBinary() ([]byte, error) {
	b := make([]byte, wf.WireSize())
	le := binary.LittleEndian
	le.PutUint16(b[0:], uint16(wf.Tag))
	le.PutUint16(b[2:], wf.Channels)
	le.PutUint32(b[4:], wf.SamplesPerSec)
	le.PutUint32(b[8:], wf.AvgBytesPerSec)
	le.PutUint16(b[12:], wf.BlockAlign)
	le.PutUint16(b[14:], wf.BitsPerSample)

	if wf.Tag != TagExtensible {
		le.PutUint16(b[16:], 0)
		return b, nil
	}
	le.PutUint16(b[16:], ExtensibleSize)
	le.PutUint16(b[18:], wf.ValidBitsPerSample)
	le.PutUint32(b[20:], wf.ChannelMask)
	putGUID(b[24:], wf.SubFormat)
	return b, nil
}

// UnmarshalBinary decodes a packed descriptor. An extensible tag needs
// the full extensible payload.
func (wf *WaveFormat) UnmarshalBinary(b []byte) error {
	if len(b) < WireSizeBase {
		return shortDescriptor(len(b), WireSizeBase)
	}
	le := binary.LittleEndian
	out := WaveFormat{
		Tag:            Tag(le.Uint16(b[0:])),
		Channels:       le.Uint16(b[2:]),
		SamplesPerSec:  le.Uint32(b[4:]),
		AvgBytesPerSec: le.Uint32(b[8:]),
		BlockAlign:     le.Uint16(b[12:]),
		BitsPerSample:  le.Uint16(b[14:]),
		CbSize:         le.Uint16(b[16:]),
	}

	if out.Tag == TagExtensible {
		if out.CbSize < ExtensibleSize || len(b) < WireSizeExtensible {
			return shortDescriptor(len(b), WireSizeExtensible)
		}
		out.ValidBitsPerSample = le.Uint16(b[18:])
		out.ChannelMask = le.Uint32(b[20:])
		out.SubFormat = readGUID(b[24:])
	}
	*wf = out
	return nil
}

func shortDescriptor(have, want int) error {
	return errors.New(audiocore.ErrInvalidArgument).
		Component("format").
		Context("descriptor_bytes", have).
		Context("required_bytes", want).
		Build()
}

func putGUID(b []byte, id uuid.UUID) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], binary.BigEndian.Uint32(id[0:]))
	le.PutUint16(b[4:], binary.BigEndian.Uint16(id[4:]))
	le.PutUint16(b[6:], binary.BigEndian.Uint16(id[6:]))
	copy(b[8:16], id[8:])
}

func readGUID(b []byte) uuid.UUID {
	var id uuid.UUID
	le := binary.LittleEndian
	binary.BigEndian.PutUint32(id[0:], le.Uint32(b[0:]))
	binary.BigEndian.PutUint16(id[4:], le.Uint16(b[4:]))
	binary.BigEndian.PutUint16(id[6:], le.Uint16(b[6:]))
	copy(id[8:], b[8:16])
	return id
}
