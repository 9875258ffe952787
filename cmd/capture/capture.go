// Package capture implements the capture command
package capture

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/media"
	"github.com/tphakala/pulseshim/internal/runtime"
)

// Command creates the capture command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		device   string
		duration time.Duration
		buffer   time.Duration
		loopback bool
	)

	cmd := &cobra.Command{
		Use:   "capture [out.wav]",
		Short: "Record from a capture device into a 16-bit WAV file",
		Long: "Record from a capture device into a 16-bit WAV file. With --loopback the " +
			"monitor of a render device is recorded instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := runtime.Start(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var (
				out  *media.WAVWriter
				rate int
			)
			opts := runtime.RecordOptions{
				Name:     args[0],
				Device:   device,
				Loopback: loopback,
				Buffer:   audiocore.FromDuration(buffer),
				Duration: duration,
			}
			open := func(l runtime.Recording) error {
				w, werr := media.CreateWAV(args[0], l.SampleRate, l.Channels)
				if werr != nil {
					return werr
				}
				out, rate = w, l.SampleRate
				return nil
			}

			stats, err := rt.Client().Record(ctx, opts, open, func(s []float32) error {
				return out.Write(s)
			})
			if out != nil {
				if cerr := out.Close(); err == nil {
					err = cerr
				}
			}
			if err != nil {
				return err
			}

			logger.Global().Module("capture").Info("capture finished",
				logger.String("file", args[0]),
				logger.Int64("frames", stats.Frames),
				logger.Int("discontinuities", stats.Discontinuities))
			fmt.Fprintf(cmd.OutOrStdout(), "captured %.2fs to %s\n",
				float64(stats.Frames)/float64(max(rate, 1)), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Capture device id, or render device id with --loopback")
	cmd.Flags().DurationVarP(&duration, "duration", "t", 5*time.Second, "Recording length, 0 records until interrupted")
	cmd.Flags().DurationVar(&buffer, "buffer", 200*time.Millisecond, "Stream buffer duration")
	cmd.Flags().BoolVar(&loopback, "loopback", false, "Record what a render device is playing")
	return cmd
}
