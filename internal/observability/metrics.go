// Package observability wires the Prometheus collectors into the engine
// and exposes them over HTTP.
package observability

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Engine   *metrics.EngineMetrics
	HTTP     *metrics.HTTPMetrics

	installOnce sync.Once
}

// NewMetrics creates a new instance of Metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create http metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Engine:   engineMetrics,
		HTTP:     httpMetrics,
	}, nil
}

// Install makes the engine collector the process-wide recorder and counts
// every built error. Repeated calls are no-ops.
func (m *Metrics) Install() {
	m.installOnce.Do(func() {
		audiocore.SetMetrics(m.Engine)
		errors.AddErrorHook(m.Engine.ErrorHook())
	})
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{logger.Global().Module("metrics")},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts the structured logger to promhttp's Println logger
type promLogger struct{ log logger.Logger }

func (p promLogger) Println(v ...any) {
	p.log.Warn("metrics exposition", logger.String("detail", fmt.Sprint(v...)))
}
