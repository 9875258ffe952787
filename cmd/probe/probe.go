// Package probe implements the probe command
package probe

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/cpuspec"
	"github.com/tphakala/pulseshim/internal/dispatch"
	"github.com/tphakala/pulseshim/internal/runtime"
)

// Command creates the probe command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Test the host connection and report device periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime.New(settings)
			if err != nil {
				return err
			}
			if err := rt.Attach(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			out := cmd.OutOrStdout()
			var tc dispatch.TestConnectParams
			if err := rt.Native.CallContext(cmd.Context(), dispatch.OpTestConnect, &tc); err != nil {
				return err
			}
			fmt.Fprintf(out, "backend:  %s\n", settings.Host.Backend)
			fmt.Fprintf(out, "priority: %s\n", tc.Priority)
			reportCPU(cmd)

			for _, flow := range []audiocore.Flow{audiocore.FlowRender, audiocore.FlowCapture} {
				if err := report(cmd, rt.Native, flow); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func report(cmd *cobra.Command, d *dispatch.Dispatcher, flow audiocore.Flow) error {
	out := cmd.OutOrStdout()

	period := dispatch.GetDevicePeriodParams{Flow: flow}
	if err := d.CallContext(cmd.Context(), dispatch.OpGetDevicePeriod, &period); err != nil {
		return err
	}
	mix := dispatch.GetMixFormatParams{Flow: flow}
	if err := d.CallContext(cmd.Context(), dispatch.OpGetMixFormat, &mix); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s:\n", flow)
	if period.Result.Failed() {
		fmt.Fprintf(out, "  unavailable (%s)\n", period.Result)
		return nil
	}
	fmt.Fprintf(out, "  default period: %s\n", period.Default.Duration())
	fmt.Fprintf(out, "  minimum period: %s\n", period.Minimum.Duration())
	if mix.Result.Succeeded() {
		if spec, err := format.ToSampleSpec(&mix.Format); err == nil {
			fmt.Fprintf(out, "  mix format:     %s\n", spec)
		}
	}
	return nil
}

func reportCPU(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	cpu := cpuspec.GetCPUSpec()

	fmt.Fprintf(out, "cpu:      %s (%d logical cores)\n", cpu.BrandName, cpu.LogicalCores)
	if len(cpu.Features) > 0 {
		fmt.Fprintf(out, "simd:     %s\n", strings.Join(cpu.Features, " "))
	}
	if cpu.Hybrid() {
		fmt.Fprintf(out, "hybrid:   %d performance cores, timing loops may land on efficiency cores\n", cpu.PerformanceCores)
	}

	hl, err := cpuspec.GetHostLoad(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "memory:   unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "memory:   %d MiB available of %d MiB (%.0f%% used)\n",
		hl.AvailableBytes>>20, hl.TotalBytes>>20, hl.UsedPercent)
	if hl.HasLoad {
		fmt.Fprintf(out, "load:     %.2f %.2f %.2f\n", hl.Load1, hl.Load5, hl.Load15)
	}
}
