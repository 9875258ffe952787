// Package play implements the play command
package play

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/media"
	"github.com/tphakala/pulseshim/internal/runtime"
)

// progressInterval is how often playback progress is logged
const progressInterval = time.Second

// Command creates the play command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		device string
		buffer time.Duration
		volume float32
	)

	cmd := &cobra.Command{
		Use:   "play [file]",
		Short: "Play a WAV, FLAC, MP3 or Ogg Vorbis file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			src, err := media.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			rt, err := runtime.Start(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if device == "" {
				device = settings.Host.Device
			}
			return run(ctx, cmd, rt.Client(), src, runtime.PlayOptions{
				Name:   args[0],
				Device: device,
				Buffer: audiocore.FromDuration(buffer),
				Volume: volume,
			})
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Render device id (default device when empty)")
	cmd.Flags().DurationVar(&buffer, "buffer", 100*time.Millisecond, "Stream buffer duration")
	cmd.Flags().Float32Var(&volume, "volume", 1, "Master volume between 0 and 1")
	return cmd
}

// run plays src while a second goroutine logs progress
func run(ctx context.Context, cmd *cobra.Command, c *runtime.Client, src media.Source, opts runtime.PlayOptions) error {
	log := logger.Global().Module("play")
	var played atomic.Int64
	opts.Progress = played.Store

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		stats, err := c.Play(gctx, src, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "played %d frames in %s\n", stats.Frames, stats.Elapsed.Round(time.Millisecond))
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				frames := played.Load()
				log.Info("playing",
					logger.String("file", opts.Name),
					logger.Int64("frames", frames),
					logger.Float64("seconds", float64(frames)/float64(src.SampleRate())))
			}
		}
	})

	return g.Wait()
}
