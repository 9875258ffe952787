package malgohost

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/errors"
)

// backendForPlatform returns the miniaudio backend for the current platform
func backendForPlatform(goos string) (malgo.Backend, error) {
	switch goos {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(audiocore.ErrServiceNotRunning).
			Component(componentMalgo).
			Context("error", "unsupported operating system").
			Context("os", goos).
			Build()
	}
}

func defaultBackend() (malgo.Backend, error) {
	return backendForPlatform(runtime.GOOS)
}

// formatFor maps a host encoding to the miniaudio sample format. A-law,
// µ-law and 24-in-32 have no miniaudio equivalent.
func formatFor(enc format.Encoding) (malgo.FormatType, error) {
	switch enc {
	case format.EncodingU8:
		return malgo.FormatU8, nil
	case format.EncodingS16LE:
		return malgo.FormatS16, nil
	case format.EncodingS24LE:
		return malgo.FormatS24, nil
	case format.EncodingS32LE:
		return malgo.FormatS32, nil
	case format.EncodingF32LE:
		return malgo.FormatF32, nil
	case format.EncodingALaw, format.EncodingMuLaw, format.EncodingS24In32LE, format.EncodingInvalid:
		return malgo.FormatUnknown, errors.New(audiocore.ErrUnsupportedFormat).
			Component(componentMalgo).
			Context("encoding", enc.String()).
			Build()
	}
	return malgo.FormatUnknown, errors.New(audiocore.ErrUnsupportedFormat).
		Component(componentMalgo).
		Context("encoding", enc.String()).
		Build()
}

func deviceType(flow audiocore.Flow) malgo.DeviceType {
	if flow == audiocore.FlowCapture {
		return malgo.Capture
	}
	return malgo.Playback
}

// deviceID decodes the hex device identifier miniaudio reports; ALSA ids
// decode to strings like ":0,0". Undecodable ids are used verbatim.
func deviceID(info *malgo.DeviceInfo) string {
	raw := info.ID.String()
	decoded, err := hexToASCII(raw)
	if err != nil {
		return raw
	}
	return strings.TrimRight(decoded, "\x00")
}

func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// isDiscardDevice reports the miniaudio null sink, which is not listed
func isDiscardDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}
