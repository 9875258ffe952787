package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	return &Settings{
		Engine: EngineSettings{
			DefaultPeriod:  DefaultPeriod,
			MinimumPeriod:  MinimumPeriod,
			MaxBufferBytes: DefaultMaxBuffer,
			JoinTimeout:    DefaultJoinTimeout,
			WarmupPeriods:  1,
		},
		Host: HostSettings{
			Backend:    BackendMemory,
			AppName:    DefaultAppName,
			SampleRate: 48000,
			Channels:   2,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero minimum period", func(s *Settings) { s.Engine.MinimumPeriod = 0 }, "at least 100ns"},
		{"default below minimum", func(s *Settings) { s.Engine.DefaultPeriod = time.Millisecond }, "below minimum"},
		{"no join timeout", func(s *Settings) { s.Engine.JoinTimeout = 0 }, "join timeout"},
		{"no warmup", func(s *Settings) { s.Engine.WarmupPeriods = 0 }, "warm-up"},
		{"zero buffer limit", func(s *Settings) { s.Engine.MaxBufferBytes = 0 }, "max buffer"},
		{"unknown backend", func(s *Settings) { s.Host.Backend = "jack" }, "unknown host backend"},
		{"too many channels", func(s *Settings) { s.Host.Channels = 33 }, "channels"},
		{"rate too low", func(s *Settings) { s.Host.SampleRate = 10 }, "sample rate"},
		{"metrics without listen", func(s *Settings) { s.Metrics.Enabled = true }, "listen address"},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "DSN"},
		{"negative ttl", func(s *Settings) { s.Cache.EndpointTTL = -time.Second }, "TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvBool(" true "))
	assert.Error(t, validateEnvBool("yes"))
	assert.NoError(t, validateEnvDuration("10ms"))
	assert.Error(t, validateEnvDuration("-1s"))
	assert.Error(t, validateEnvDuration("fast"))
	assert.NoError(t, validateEnvBackend("memory"))
	assert.Error(t, validateEnvBackend("oss"))
	assert.NoError(t, validateEnvSampleRate("96000"))
	assert.Error(t, validateEnvSampleRate("500"))
}
