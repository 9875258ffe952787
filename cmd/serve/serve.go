// Package serve implements the serve command
package serve

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/pulseshim/internal/buildinfo"
	"github.com/tphakala/pulseshim/internal/conf"
	"github.com/tphakala/pulseshim/internal/httpserver"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/runtime"
)

// statusInterval is how often the engine summary is logged
const statusInterval = 30 * time.Second

// Command creates the serve command
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Attach the engine and serve the status and metrics API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if listen == "" {
				listen = settings.Metrics.Listen
			}
			if listen == "" {
				listen = conf.DefaultMetricsAddr
			}
			return Run(ctx, settings, listen, info.GetVersion())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (defaults to metrics.listen)")
	return cmd
}

// Run serves until ctx ends
func Run(ctx context.Context, settings *conf.Settings, listen, version string) error {
	log := logger.Global().Module("serve")

	rt, err := runtime.Start(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("detach failed", logger.Error(err))
		}
	}()

	opts := []httpserver.ServerOption{httpserver.WithVersion(version)}
	if rt.Metrics != nil {
		opts = append(opts, httpserver.WithMetrics(rt.Metrics))
	}
	srv := httpserver.New(rt.Engine, listen, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				log.Info("engine status",
					logger.Bool("attached", rt.Engine.Attached()),
					logger.Int("streams", rt.Engine.StreamCount()))
			}
		}
	})

	log.Info("serving", logger.String("address", listen), logger.String("backend", settings.Host.Backend))
	return g.Wait()
}
