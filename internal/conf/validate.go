// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateEngineSettings(&settings.Engine); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateHostSettings(&settings.Host); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMetricsSettings(&settings.Metrics); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Cache.EndpointTTL < 0 {
		ve.Errors = append(ve.Errors, "cache endpoint TTL cannot be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateEngineSettings checks period ordering and allocation limits
func validateEngineSettings(settings *EngineSettings) error {
	var errs []string

	// the engine works in 100 ns units, anything finer truncates to zero
	const tick = 100 * time.Nanosecond

	if settings.MinimumPeriod < tick {
		errs = append(errs, "minimum period must be at least 100ns")
	}
	if settings.DefaultPeriod < settings.MinimumPeriod {
		errs = append(errs, fmt.Sprintf("default period %v is below minimum period %v",
			settings.DefaultPeriod, settings.MinimumPeriod))
	}
	if settings.MaxBufferBytes <= 0 {
		errs = append(errs, "max buffer bytes must be positive")
	}
	if settings.JoinTimeout <= 0 {
		errs = append(errs, "join timeout must be positive")
	}
	if settings.WarmupPeriods < 1 {
		errs = append(errs, "warm-up must last at least one period")
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine settings errors: %v", errs)
	}
	return nil
}

func validateHostSettings(settings *HostSettings) error {
	var errs []string

	switch settings.Backend {
	case BackendMemory, BackendMalgo:
	default:
		errs = append(errs, fmt.Sprintf("unknown host backend %q", settings.Backend))
	}

	if strings.TrimSpace(settings.AppName) == "" {
		errs = append(errs, "host app name cannot be empty")
	}
	if settings.SampleRate < MinSampleRate || settings.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("host sample rate must be between %d and %d", MinSampleRate, MaxSampleRate))
	}
	if settings.Channels < 1 || settings.Channels > MaxChannels {
		errs = append(errs, fmt.Sprintf("host channels must be between 1 and %d", MaxChannels))
	}

	if len(errs) > 0 {
		return fmt.Errorf("host settings errors: %v", errs)
	}
	return nil
}

func validateMetricsSettings(settings *MetricsSettings) error {
	if settings.Enabled && settings.Listen == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.DSN == "" && settings.DSNFile == "" {
		return fmt.Errorf("telemetry DSN is required when telemetry is enabled")
	}
	return nil
}
