// Package status implements the status command
package status

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/buildinfo"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/httpclient"
	"github.com/tphakala/pulseshim/internal/httpserver"
)

// Command creates the status command
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running serve instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = settings.Metrics.Listen
			}
			if server == "" {
				server = conf.DefaultMetricsAddr
			}

			c, err := httpclient.New(server, &httpclient.Config{UserAgent: "pulseshim/" + info.GetVersion()})
			if err != nil {
				return err
			}
			defer c.Close()

			health, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			streams, err := c.Streams(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), health, streams)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Status server address (defaults to metrics.listen)")
	return cmd
}

func printStatus(w io.Writer, h *httpserver.HealthResponse, streams []engine.StreamInfo) error {
	fmt.Fprintf(w, "status:  %s\n", h.Status)
	if h.Version != "" {
		fmt.Fprintf(w, "version: %s\n", h.Version)
	}
	fmt.Fprintf(w, "uptime:  %s\n", h.Uptime)
	fmt.Fprintf(w, "streams: %d\n", h.Streams)
	if len(streams) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tNAME\tFLOW\tFORMAT\tSTARTED\tPADDING")
	for _, s := range streams {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d/%d\n",
			s.Handle, s.Name, s.Flow, s.Format, s.Started, s.PaddingFrames, s.BufferFrames)
	}
	return tw.Flush()
}
