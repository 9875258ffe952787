// Package config implements the config command
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulseshim/internal/conf"
)

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	var savePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if savePath != "" {
				if err := conf.SaveYAMLConfig(savePath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", savePath)
				return nil
			}

			data, err := settings.MarshalYAMLBytes()
			if err != nil {
				return fmt.Errorf("error rendering configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&savePath, "save", "", "Write the effective configuration to this path")
	return cmd
}
