// conf/config.go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/pulseshim/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EngineSettings tunes the stream engine and its timing loops
type EngineSettings struct {
	DefaultPeriod  time.Duration `yaml:"defaultperiod" mapstructure:"defaultperiod"`   // period used when the client asks for 0
	MinimumPeriod  time.Duration `yaml:"minimumperiod" mapstructure:"minimumperiod"`   // smallest period a client may request
	MaxBufferBytes int           `yaml:"maxbufferbytes" mapstructure:"maxbufferbytes"` // per-stream ring allocation limit
	JoinTimeout    time.Duration `yaml:"jointimeout" mapstructure:"jointimeout"`       // bounded wait for a timing loop on release
	WarmupPeriods  int           `yaml:"warmupperiods" mapstructure:"warmupperiods"`   // periods to wait before drift correction starts
}

// HostSettings selects and configures the host audio server backend
type HostSettings struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`       // memory or malgo
	AppName    string `yaml:"appname" mapstructure:"appname"`       // client name announced to the host
	Device     string `yaml:"device" mapstructure:"device"`         // preferred device id, empty for default
	SampleRate int    `yaml:"samplerate" mapstructure:"samplerate"` // memory backend mix rate
	Channels   int    `yaml:"channels" mapstructure:"channels"`     // memory backend channel count
}

// MetricsSettings controls the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings controls Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`         // may reference ${ENV_VARS}
	DSNFile     string `yaml:"dsnfile" mapstructure:"dsnfile"` // takes precedence over dsn
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// CacheSettings controls cached host lookups
type CacheSettings struct {
	EndpointTTL time.Duration `yaml:"endpointttl" mapstructure:"endpointttl"` // device enumeration cache lifetime
}

// Settings contains all configuration options for pulseshim
type Settings struct {
	Debug     bool                 `yaml:"debug" mapstructure:"debug"`
	Engine    EngineSettings       `yaml:"engine" mapstructure:"engine"`
	Host      HostSettings         `yaml:"host" mapstructure:"host"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Cache     CacheSettings        `yaml:"cache" mapstructure:"cache"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables using the
// global viper instance, which is where cobra binds its flags.
func Load() (*Settings, error) {
	settings, err := LoadWith(viper.GetViper())
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadWith reads configuration into a new Settings using v.
func LoadWith(v *viper.Viper) (*Settings, error) {
	if err := initViper(v); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults, environment bindings and reads the config file.
// An explicit file set with SetConfigFile must exist; otherwise the default
// search paths are used and a default file is created when none is found.
func initViper(v *viper.Viper) error {
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	err = v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, configFileName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return v.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, configFileName)
	if err != nil {
		// embedded at build time, a failure here is a broken binary
		panic(fmt.Sprintf("embedded config missing: %v", err))
	}
	return string(data)
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temporary file.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// MarshalYAMLBytes renders settings as YAML for the config command
func (s *Settings) MarshalYAMLBytes() ([]byte, error) {
	return yaml.Marshal(s)
}
