// Package telemetry provides opt-in, privacy-filtered error reporting
// through Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/privacy"
	"github.com/tphakala/pulseshim/internal/secrets"
)

var initialized atomic.Bool

func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// Option adjusts the Sentry client options before initialization
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, mainly for tests
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry initializes Sentry when telemetry is enabled and installs
// the errors package reporter. It returns false when telemetry is off.
func InitSentry(settings *conf.Settings, version string, opts ...Option) (bool, error) {
	if settings == nil || !settings.Telemetry.Enabled {
		getLogger().Debug("telemetry disabled")
		return false, nil
	}

	dsn, err := secrets.Resolve(settings.Telemetry.DSNFile, settings.Telemetry.DSN)
	if err != nil {
		return false, err
	}

	options := sentry.ClientOptions{
		Dsn:              dsn,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Telemetry.Environment,
		ServerName:       "", // keep the hostname out of events
		Release:          fmt.Sprintf("pulseshim@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("backend", settings.Host.Backend)
		scope.SetContext("application", map[string]any{
			"name":    conf.DefaultAppName,
			"version": version,
		})
	})

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	getLogger().Info("telemetry enabled",
		logger.String("environment", settings.Telemetry.Environment),
		logger.String("release", options.Release))
	return true, nil
}

// Shutdown detaches the reporter and flushes pending events
func Shutdown(timeout time.Duration) {
	if !initialized.Swap(false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	errors.SetPrivacyScrubber(nil)
	if !sentry.Flush(timeout) {
		getLogger().Warn("telemetry flush timed out", logger.Duration("timeout", timeout))
	}
}

// applyPrivacyFilters strips identifying data from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
