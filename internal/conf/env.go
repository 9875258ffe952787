// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PULSESHIM_DEBUG", validateEnvBool},

		{"engine.defaultperiod", "PULSESHIM_ENGINE_DEFAULTPERIOD", validateEnvDuration},
		{"engine.minimumperiod", "PULSESHIM_ENGINE_MINIMUMPERIOD", validateEnvDuration},
		{"engine.jointimeout", "PULSESHIM_ENGINE_JOINTIMEOUT", validateEnvDuration},

		{"host.backend", "PULSESHIM_HOST_BACKEND", validateEnvBackend},
		{"host.device", "PULSESHIM_HOST_DEVICE", nil},
		{"host.samplerate", "PULSESHIM_HOST_SAMPLERATE", validateEnvSampleRate},

		{"metrics.enabled", "PULSESHIM_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "PULSESHIM_METRICS_LISTEN", nil},

		{"telemetry.enabled", "PULSESHIM_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "PULSESHIM_TELEMETRY_DSN", nil},
		{"telemetry.dsnfile", "PULSESHIM_TELEMETRY_DSN_FILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

// validateEnvDuration validates Go duration strings such as "10ms"
func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be a duration like 10ms: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch strings.TrimSpace(value) {
	case BackendMemory, BackendMalgo:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", BackendMemory, BackendMalgo)
	}
}

func validateEnvSampleRate(value string) error {
	rate, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("must be between %d and %d", MinSampleRate, MaxSampleRate)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}
