package conf

import "time"

// Host backend names accepted in host.backend
const (
	BackendMemory = "memory"
	BackendMalgo  = "malgo"
)

// Engine timing defaults. Periods are expressed as durations here and
// converted to 100 ns reference units by the engine.
const (
	DefaultPeriod      = 10 * time.Millisecond
	MinimumPeriod      = 3 * time.Millisecond
	DefaultJoinTimeout = 2 * time.Second
	DefaultMaxBuffer   = 64 * 1024 * 1024
	DefaultEndpointTTL = 30 * time.Second
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultAppName     = "pulseshim"
	configFileName     = "config.yaml"
	appDirName         = "pulseshim"
	envPrefix          = "PULSESHIM"
)

// Host sample spec bounds
const (
	MinSampleRate = 1000
	MaxSampleRate = 384000
	MaxChannels   = 32
)
