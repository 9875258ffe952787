// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/pulseshim/internal/logger"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("engine.defaultperiod", DefaultPeriod)
	v.SetDefault("engine.minimumperiod", MinimumPeriod)
	v.SetDefault("engine.maxbufferbytes", DefaultMaxBuffer)
	v.SetDefault("engine.jointimeout", DefaultJoinTimeout)
	v.SetDefault("engine.warmupperiods", 1)

	v.SetDefault("host.backend", BackendMalgo)
	v.SetDefault("host.appname", DefaultAppName)
	v.SetDefault("host.device", "")
	v.SetDefault("host.samplerate", 48000)
	v.SetDefault("host.channels", 2)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsAddr)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.dsnfile", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("cache.endpointttl", DefaultEndpointTTL)
}
