package mixer

// ITU-T G.711 segment tables
var (
	alawSegEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}
	ulawSegEnd = [8]int{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}
)

const (
	ulawBias = 0x84
	ulawClip = 8159
)

func segment(v int, table *[8]int) int {
	for i, end := range table {
		if v <= end {
			return i
		}
	}
	return len(table)
}

// linearToAlaw encodes a 16-bit linear sample
func linearToAlaw(sample int16) byte {
	pcm := int(sample) >> 3
	mask := 0xD5
	if pcm < 0 {
		mask = 0x55
		pcm = -pcm - 1
	}

	seg := segment(pcm, &alawSegEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	aval := seg << 4
	if seg < 2 {
		aval |= (pcm >> 1) & 0x0F
	} else {
		aval |= (pcm >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}

// alawToLinear decodes an A-law byte to a 16-bit linear sample
func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0F) << 4
	switch seg := int(a&0x70) >> 4; seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// linearToUlaw encodes a 16-bit linear sample
func linearToUlaw(sample int16) byte {
	pcm := int(sample) >> 2
	mask := 0xFF
	if pcm < 0 {
		pcm = -pcm
		mask = 0x7F
	}
	pcm = min(pcm, ulawClip)
	pcm += ulawBias >> 2

	seg := segment(pcm, &ulawSegEnd)
	if seg >= 8 {
		return byte(0x7F ^ mask)
	}
	uval := seg<<4 | (pcm>>(seg+1))&0x0F
	return byte(uval ^ mask)
}

// ulawToLinear decodes a µ-law byte to a 16-bit linear sample
func ulawToLinear(u byte) int16 {
	u = ^u
	t := (int(u&0x0F) << 3) + ulawBias
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(ulawBias - t)
	}
	return int16(t - ulawBias)
}
