package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/audiocore/host"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

// endpointNamespace seeds the name-based endpoint GUIDs, so a device keeps
// its GUID across enumerations and restarts.
var endpointNamespace = uuid.MustParse("bd2c2a2e-6f0b-4d4e-9a3c-7c1f0e5a9b61")

// Endpoint is one host device as clients see it
type Endpoint struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	GUID       uuid.UUID         `json:"guid"`
	Flow       audiocore.Flow    `json:"flow"`
	Default    bool              `json:"default"`
	FormFactor host.FormFactor   `json:"form_factor"`
	Spec       format.SampleSpec `json:"-"`
	MonitorOf  string            `json:"monitor_of,omitempty"`
}

// EndpointGUID returns the stable GUID of a host device
func EndpointGUID(flow audiocore.Flow, id string) uuid.UUID {
	return uuid.NewSHA1(endpointNamespace, []byte(flow.String()+":"+id))
}

// Endpoints lists the devices of a direction, default device first.
// Results are cached for the configured TTL.
func (e *Engine) Endpoints(ctx context.Context, flow audiocore.Flow) ([]Endpoint, error) {
	key := "endpoints:" + flow.String()
	if cached, ok := e.endpoints.Get(key); ok {
		if list, ok := cached.([]Endpoint); ok {
			return cloneEndpoints(list), nil
		}
	}

	g := e.lock()
	defer g.Unlock()

	if err := e.connectLocked(ctx); err != nil {
		return nil, err
	}
	devices, err := e.server.Devices(flow)
	if err != nil {
		return nil, err
	}

	list := make([]Endpoint, 0, len(devices))
	for i := range devices {
		ep := Endpoint{
			ID:         devices[i].ID,
			Name:       devices[i].Name,
			GUID:       EndpointGUID(flow, devices[i].ID),
			Flow:       flow,
			Default:    devices[i].Default,
			FormFactor: devices[i].FormFactor,
			Spec:       devices[i].Spec,
			MonitorOf:  devices[i].MonitorOf,
		}
		if ep.Default {
			list = append([]Endpoint{ep}, list...)
			continue
		}
		list = append(list, ep)
	}

	e.endpoints.Set(key, list, cache.DefaultExpiration)
	e.log.Debug("endpoints enumerated",
		logger.String("flow", flow.String()),
		logger.Int("count", len(list)))
	return cloneEndpoints(list), nil
}

// Endpoint finds a device by host id or GUID string
func (e *Engine) Endpoint(ctx context.Context, flow audiocore.Flow, id string) (Endpoint, error) {
	list, err := e.Endpoints(ctx, flow)
	if err != nil {
		return Endpoint{}, err
	}
	for i := range list {
		if list[i].ID == id || list[i].GUID.String() == id {
			return list[i], nil
		}
	}
	return Endpoint{}, errors.New(audiocore.ErrDeviceNotFound).
		Component(componentEngine).
		Context("flow", flow.String()).
		Context("device", id).
		Build()
}

// LoopbackCaptureDevice returns the capture device that monitors the
// given render device.
func (e *Engine) LoopbackCaptureDevice(ctx context.Context, renderID string) (string, error) {
	render, err := e.Endpoint(ctx, audiocore.FlowRender, renderID)
	if err != nil {
		return "", err
	}
	captures, err := e.Endpoints(ctx, audiocore.FlowCapture)
	if err != nil {
		return "", err
	}
	for i := range captures {
		if captures[i].MonitorOf == render.ID {
			return captures[i].ID, nil
		}
	}
	return "", errors.New(audiocore.ErrDeviceNotFound).
		Component(componentEngine).
		Context("render_device", render.ID).
		Context("reason", "no monitor source").
		Build()
}

// PropertyKey names an endpoint property
type PropertyKey int

const (
	PropertyFriendlyName PropertyKey = iota
	PropertyPhysicalSpeakers
	PropertyFormFactor
	PropertyEndpointGUID
	PropertyDeviceFormat
)

func (k PropertyKey) String() string {
	switch k {
	case PropertyFriendlyName:
		return "friendly_name"
	case PropertyPhysicalSpeakers:
		return "physical_speakers"
	case PropertyFormFactor:
		return "form_factor"
	case PropertyEndpointGUID:
		return "endpoint_guid"
	case PropertyDeviceFormat:
		return "device_format"
	}
	return "unknown"
}

// PropertyValue returns an endpoint property: a string for the friendly
// name, a uint32 speaker mask, a host.FormFactor, a uuid.UUID or a
// format.WaveFormat.
func (e *Engine) PropertyValue(ctx context.Context, flow audiocore.Flow, id string, key PropertyKey) (any, error) {
	ep, err := e.Endpoint(ctx, flow, id)
	if err != nil {
		return nil, err
	}

	switch key {
	case PropertyFriendlyName:
		return ep.Name, nil
	case PropertyPhysicalSpeakers:
		if flow != audiocore.FlowRender {
			break
		}
		return format.ToWaveFormat(ep.Spec).ChannelMask, nil
	case PropertyFormFactor:
		return ep.FormFactor, nil
	case PropertyEndpointGUID:
		return ep.GUID, nil
	case PropertyDeviceFormat:
		return format.ToWaveFormat(ep.Spec), nil
	}
	return nil, errors.New(audiocore.ErrNotImplemented).
		Component(componentEngine).
		Context("property", key.String()).
		Context("flow", flow.String()).
		Build()
}

// InvalidateEndpoints drops the cached device lists
func (e *Engine) InvalidateEndpoints() {
	e.endpoints.Flush()
}

func cloneEndpoints(list []Endpoint) []Endpoint {
	return append([]Endpoint(nil), list...)
}
