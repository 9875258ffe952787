package mixer

import (
	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
)

// Compose returns the effective per-channel gains
// master × client[i] × session[i]. Every factor must lie in [0, 1] and
// both vectors must carry exactly one value per channel.
func Compose(master float32, client, session []float32, channels int) ([]float32, error) {
	if len(client) != channels || len(session) != channels {
		return nil, errors.New(audiocore.ErrInvalidArgument).
			Component(componentMixer).
			Context("channels", channels).
			Context("client_volumes", len(client)).
			Context("session_volumes", len(session)).
			Build()
	}
	if !inUnitRange(master) {
		return nil, gainOutOfRange("master", master)
	}

	gains := make([]float32, channels)
	for i := range gains {
		if !inUnitRange(client[i]) {
			return nil, gainOutOfRange("client", client[i])
		}
		if !inUnitRange(session[i]) {
			return nil, gainOutOfRange("session", session[i])
		}
		gains[i] = master * client[i] * session[i]
	}
	return gains, nil
}

// Unity returns channels gains of 1
func Unity(channels int) []float32 {
	gains := make([]float32, channels)
	for i := range gains {
		gains[i] = 1
	}
	return gains
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}

func gainOutOfRange(which string, v float32) error {
	return errors.New(audiocore.ErrInvalidArgument).
		Component(componentMixer).
		Context("volume", which).
		Context("value", v).
		Build()
}
