package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pulseshim/cmd/capture"
	configcmd "github.com/tphakala/pulseshim/cmd/config"
	"github.com/tphakala/pulseshim/cmd/devices"
	"github.com/tphakala/pulseshim/cmd/play"
	"github.com/tphakala/pulseshim/cmd/probe"
	"github.com/tphakala/pulseshim/cmd/serve"
	"github.com/tphakala/pulseshim/cmd/status"
	"github.com/tphakala/pulseshim/internal/buildinfo"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/telemetry"
)

// telemetryFlushTimeout bounds the Sentry flush on exit
const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates the root command. Settings are loaded in the
// persistent pre-run, after flags are parsed, into the struct every
// subcommand holds a pointer to.
func RootCommand(info *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string
	var centralLogger *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "pulseshim",
		Short:         "Audio client streaming engine over a host audio server",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err) // flag names are static
	}

	subcommands := []*cobra.Command{
		devices.Command(settings),
		probe.Command(settings),
		play.Command(settings),
		capture.Command(settings),
		serve.Command(settings, info),
		status.Command(settings, info),
		configcmd.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}

		loaded, err := conf.Load()
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		*settings = *loaded

		centralLogger, err = initLogging(settings)
		if err != nil {
			return err
		}

		if _, err := telemetry.InitSentry(settings, info.GetVersion()); err != nil {
			conf.GetLogger().Warn("telemetry disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Shutdown(telemetryFlushTimeout)
		if centralLogger != nil {
			return centralLogger.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines the global flags and binds them to their config keys
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to the config file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", "", "Host audio backend, memory or malgo (overrides host.backend)")
	flags.Duration("period", conf.DefaultPeriod, "Default engine period")

	bindings := map[string]string{
		"debug":   "debug",
		"backend": "host.backend",
		"period":  "engine.defaultperiod",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// initLogging installs the central logger. Debug raises the default level.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}
