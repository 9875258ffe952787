package format

import (
	"fmt"
	"math/bits"
)

// Speaker position bits of a client channel mask
const (
	SpeakerFrontLeft          uint32 = 0x1
	SpeakerFrontRight         uint32 = 0x2
	SpeakerFrontCenter        uint32 = 0x4
	SpeakerLowFrequency       uint32 = 0x8
	SpeakerBackLeft           uint32 = 0x10
	SpeakerBackRight          uint32 = 0x20
	SpeakerFrontLeftOfCenter  uint32 = 0x40
	SpeakerFrontRightOfCenter uint32 = 0x80
	SpeakerBackCenter         uint32 = 0x100
	SpeakerSideLeft           uint32 = 0x200
	SpeakerSideRight          uint32 = 0x400
	SpeakerTopCenter          uint32 = 0x800
	SpeakerTopFrontLeft       uint32 = 0x1000
	SpeakerTopFrontCenter     uint32 = 0x2000
	SpeakerTopFrontRight      uint32 = 0x4000
	SpeakerTopBackLeft        uint32 = 0x8000
	SpeakerTopBackCenter      uint32 = 0x10000
	SpeakerTopBackRight       uint32 = 0x20000
	SpeakerReserved           uint32 = 0x7FFC0000
	SpeakerAll                uint32 = 0x80000000
)

// Standard speaker layouts
const (
	LayoutMono            = SpeakerFrontCenter
	LayoutStereo          = SpeakerFrontLeft | SpeakerFrontRight
	LayoutQuad            = SpeakerFrontLeft | SpeakerFrontRight | SpeakerBackLeft | SpeakerBackRight
	LayoutSurround        = SpeakerFrontLeft | SpeakerFrontRight | SpeakerFrontCenter | SpeakerBackCenter
	Layout5Point1         = SpeakerFrontLeft | SpeakerFrontRight | SpeakerFrontCenter | SpeakerLowFrequency | SpeakerBackLeft | SpeakerBackRight
	Layout5Point1Surround = SpeakerFrontLeft | SpeakerFrontRight | SpeakerFrontCenter | SpeakerLowFrequency | SpeakerSideLeft | SpeakerSideRight
	Layout7Point1         = Layout5Point1 | SpeakerFrontLeftOfCenter | SpeakerFrontRightOfCenter
	Layout7Point1Surround = Layout5Point1 | SpeakerSideLeft | SpeakerSideRight
)

// standardLayouts is ordered; ties on speaker count resolve to the first
var standardLayouts = []uint32{
	LayoutMono,
	LayoutStereo,
	LayoutQuad,
	LayoutSurround,
	Layout5Point1,
	Layout5Point1Surround,
	Layout7Point1,
	Layout7Point1Surround,
}

// Position is a host channel position
type Position int

const (
	PositionMono               Position = 0
	PositionFrontLeft          Position = 1
	PositionFrontRight         Position = 2
	PositionFrontCenter        Position = 3
	PositionRearCenter         Position = 4
	PositionRearLeft           Position = 5
	PositionRearRight          Position = 6
	PositionLFE                Position = 7
	PositionFrontLeftOfCenter  Position = 8
	PositionFrontRightOfCenter Position = 9
	PositionSideLeft           Position = 10
	PositionSideRight          Position = 11
	PositionAux0               Position = 12
	PositionTopCenter          Position = 44
	PositionTopFrontLeft       Position = 45
	PositionTopFrontRight      Position = 46
	PositionTopFrontCenter     Position = 47
	PositionTopRearLeft        Position = 48
	PositionTopRearRight       Position = 49
	PositionTopRearCenter      Position = 50
)

// positionBySpeakerBit maps mask bit i to its host position
var positionBySpeakerBit = [...]Position{
	PositionFrontLeft,
	PositionFrontRight,
	PositionFrontCenter,
	PositionLFE,
	PositionRearLeft,
	PositionRearRight,
	PositionFrontLeftOfCenter,
	PositionFrontRightOfCenter,
	PositionRearCenter,
	PositionSideLeft,
	PositionSideRight,
	PositionTopCenter,
	PositionTopFrontLeft,
	PositionTopFrontCenter,
	PositionTopFrontRight,
	PositionTopRearLeft,
	PositionTopRearCenter,
	PositionTopRearRight,
}

var positionNames = map[Position]string{
	PositionMono:               "mono",
	PositionFrontLeft:          "front-left",
	PositionFrontRight:         "front-right",
	PositionFrontCenter:        "front-center",
	PositionRearCenter:         "rear-center",
	PositionRearLeft:           "rear-left",
	PositionRearRight:          "rear-right",
	PositionLFE:                "lfe",
	PositionFrontLeftOfCenter:  "front-left-of-center",
	PositionFrontRightOfCenter: "front-right-of-center",
	PositionSideLeft:           "side-left",
	PositionSideRight:          "side-right",
	PositionTopCenter:          "top-center",
	PositionTopFrontLeft:       "top-front-left",
	PositionTopFrontRight:      "top-front-right",
	PositionTopFrontCenter:     "top-front-center",
	PositionTopRearLeft:        "top-rear-left",
	PositionTopRearRight:       "top-rear-right",
	PositionTopRearCenter:      "top-rear-center",
}

func (p Position) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	if p >= PositionAux0 && p < PositionTopCenter {
		return fmt.Sprintf("aux%d", int(p-PositionAux0))
	}
	return fmt.Sprintf("position(%d)", int(p))
}

// SpeakerBit returns the mask bit for a host position, 0 for aux positions
func (p Position) SpeakerBit() uint32 {
	if p == PositionMono {
		return SpeakerFrontCenter
	}
	for i, pos := range positionBySpeakerBit {
		if pos == p {
			return 1 << uint(i)
		}
	}
	return 0
}

// ChannelMask returns the default speaker mask for a channel count
func ChannelMask(channels int) uint32 {
	switch channels {
	case 0:
		return 0
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	case 3:
		return LayoutStereo | SpeakerLowFrequency
	case 4:
		return LayoutQuad
	case 5:
		return LayoutQuad | SpeakerLowFrequency
	case 6:
		return Layout5Point1
	case 7:
		return Layout5Point1 | SpeakerBackCenter
	case 8:
		return Layout7Point1Surround
	}
	if channels >= len(positionBySpeakerBit) {
		return speakerBitsAll
	}
	return 1<<uint(channels) - 1
}

// speakerBitsAll has every defined speaker bit set. Channels beyond the
// eighteenth of a mask like this land on aux positions.
const speakerBitsAll = 1<<uint(len(positionBySpeakerBit)) - 1

// holdsChannels reports whether mask can place the given channel count
func holdsChannels(mask uint32, channels int) bool {
	mask &^= SpeakerReserved | SpeakerAll
	return popcount(mask) >= channels || mask == speakerBitsAll
}

// autoMap is the host default map for plain one and two channel formats
func autoMap(channels int) []Position {
	if channels == 1 {
		return []Position{PositionMono}
	}
	return []Position{PositionFrontLeft, PositionFrontRight}
}

// DefaultMap returns the position map of the standard layout for a channel
// count; mono maps to the host's mono position.
func DefaultMap(channels int) []Position {
	if channels <= 0 {
		return nil
	}
	positions, err := mapFromMask(ChannelMask(channels), channels)
	if err != nil {
		return nil
	}
	return positions
}

func mapFromMask(mask uint32, channels int) ([]Position, error) {
	switch {
	case mask == 0 || mask == SpeakerAll:
		mask = ChannelMask(channels)
	case mask == ^uint32(0) && channels == 1:
		mask = SpeakerFrontCenter
	}

	if mask&SpeakerReserved != 0 {
		return nil, fmt.Errorf("reserved speaker bits in mask 0x%x", mask)
	}

	positions := make([]Position, 0, channels)
	for bit := 0; bit < len(positionBySpeakerBit) && len(positions) < channels; bit++ {
		if mask&(1<<uint(bit)) != 0 {
			positions = append(positions, positionBySpeakerBit[bit])
		}
	}
	if mask == speakerBitsAll {
		for aux := 0; len(positions) < channels; aux++ {
			positions = append(positions, PositionAux0+Position(aux))
		}
	}
	if len(positions) < channels {
		return nil, fmt.Errorf("mask 0x%x maps %d of %d channels", mask, len(positions), channels)
	}

	// a lone center speaker is the host's mono position
	if mask == SpeakerFrontCenter {
		positions[0] = PositionMono
	}
	return positions, nil
}

// maskFromMap ORs the speaker bits of every position in the map
func maskFromMap(positions []Position) uint32 {
	var mask uint32
	for _, p := range positions {
		mask |= p.SpeakerBit()
	}
	return mask
}

func popcount(mask uint32) int {
	return bits.OnesCount32(mask)
}

// canonicalMask picks the smallest standard layout holding every channel.
// Among layouts of equal size the one sharing most speakers with the
// spec's own map wins, then table order. Above eight channels there is
// no standard layout and the sample spec's positions are kept.
func canonicalMask(spec SampleSpec) uint32 {
	own := maskFromMap(spec.Map)

	if spec.Channels > 8 {
		if holdsChannels(own, spec.Channels) {
			return own
		}
		return ChannelMask(spec.Channels)
	}

	best := uint32(0)
	bestSize, bestCover := 0, -1
	for _, layout := range standardLayouts {
		size := popcount(layout)
		if size < spec.Channels {
			continue
		}
		cover := popcount(layout & own)
		if best == 0 || size < bestSize || (size == bestSize && cover > bestCover) {
			best, bestSize, bestCover = layout, size, cover
		}
	}
	return best
}
