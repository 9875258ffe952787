package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadFile(t *testing.T, path string) (*Settings, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	return LoadWith(v)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	settings, err := loadFile(t, writeConfig(t, "debug: true\n"))
	require.NoError(t, err)

	assert.True(t, settings.Debug)
	assert.Equal(t, DefaultPeriod, settings.Engine.DefaultPeriod)
	assert.Equal(t, MinimumPeriod, settings.Engine.MinimumPeriod)
	assert.Equal(t, DefaultJoinTimeout, settings.Engine.JoinTimeout)
	assert.Equal(t, 1, settings.Engine.WarmupPeriods)
	assert.Equal(t, BackendMalgo, settings.Host.Backend)
	assert.Equal(t, 48000, settings.Host.SampleRate)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Equal(t, DefaultEndpointTTL, settings.Cache.EndpointTTL)
}

func TestLoadParsesDurations(t *testing.T) {
	t.Parallel()

	settings, err := loadFile(t, writeConfig(t, `
engine:
  defaultperiod: 20ms
  minimumperiod: 5ms
  jointimeout: 500ms
host:
  backend: memory
  samplerate: 44100
  channels: 6
`))
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, settings.Engine.DefaultPeriod)
	assert.Equal(t, 5*time.Millisecond, settings.Engine.MinimumPeriod)
	assert.Equal(t, 500*time.Millisecond, settings.Engine.JoinTimeout)
	assert.Equal(t, BackendMemory, settings.Host.Backend)
	assert.Equal(t, 44100, settings.Host.SampleRate)
	assert.Equal(t, 6, settings.Host.Channels)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	_, err := loadFile(t, writeConfig(t, `
engine:
  defaultperiod: 1ms
  minimumperiod: 3ms
host:
  backend: alsa
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), "below minimum period")
	assert.Contains(t, err.Error(), `unknown host backend "alsa"`)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := loadFile(t, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("PULSESHIM_HOST_BACKEND", "memory")
	t.Setenv("PULSESHIM_ENGINE_DEFAULTPERIOD", "40ms")

	settings, err := loadFile(t, writeConfig(t, "host:\n  backend: malgo\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, settings.Host.Backend)
	assert.Equal(t, 40*time.Millisecond, settings.Engine.DefaultPeriod)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "host:\n  backend: memory\n")
	settings, err := loadFile(t, path)
	require.NoError(t, err)

	settings.Engine.DefaultPeriod = 25 * time.Millisecond
	settings.Metrics.Enabled = true
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := loadFile(t, path)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, reloaded.Engine.DefaultPeriod)
	assert.True(t, reloaded.Metrics.Enabled)
	assert.Equal(t, BackendMemory, reloaded.Host.Backend)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestEmbeddedDefaultConfigLoads(t *testing.T) {
	t.Parallel()

	settings, err := loadFile(t, writeConfig(t, getDefaultConfig()))
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriod, settings.Engine.DefaultPeriod)
	assert.False(t, settings.Telemetry.Enabled)
}
