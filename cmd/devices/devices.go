// Package devices implements the devices command
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/dispatch"
	"github.com/tphakala/pulseshim/internal/runtime"
)

// Listing is the endpoint set of one direction
type Listing struct {
	Flow      string            `json:"flow"`
	MixFormat string            `json:"mix_format"`
	Endpoints []engine.Endpoint `json:"endpoints"`
}

// Command creates the devices command
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List render and capture endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime.Start(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			listings, err := List(rt.Native)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listings)
			}
			return printListings(cmd.OutOrStdout(), listings)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// List enumerates both directions through the call table
func List(d *dispatch.Dispatcher) ([]Listing, error) {
	var out []Listing
	for _, flow := range []audiocore.Flow{audiocore.FlowRender, audiocore.FlowCapture} {
		ids := dispatch.GetEndpointIDsParams{Flow: flow}
		if err := d.Call(dispatch.OpGetEndpointIDs, &ids); err != nil {
			return nil, err
		}
		if err := ids.Result.Err(); err != nil {
			return nil, err
		}

		listing := Listing{Flow: flow.String(), Endpoints: ids.Endpoints}
		mix := dispatch.GetMixFormatParams{Flow: flow}
		if err := d.Call(dispatch.OpGetMixFormat, &mix); err != nil {
			return nil, err
		}
		if mix.Result.Succeeded() {
			listing.MixFormat = describe(&mix.Format)
		}
		out = append(out, listing)
	}
	return out, nil
}

func describe(wf *format.WaveFormat) string {
	spec, err := format.ToSampleSpec(wf)
	if err != nil {
		return "unknown"
	}
	return spec.String()
}

func printListings(w io.Writer, listings []Listing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, l := range listings {
		fmt.Fprintf(tw, "%s (mix format %s)\n", l.Flow, l.MixFormat)
		fmt.Fprintln(tw, "  DEFAULT\tID\tNAME\tFORM FACTOR\tGUID")
		for i := range l.Endpoints {
			ep := &l.Endpoints[i]
			mark := ""
			if ep.Default {
				mark = "*"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", mark, ep.ID, ep.Name, ep.FormFactor, ep.GUID)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
