package runtime

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/pulseshim/internal/audiocore"
	"github.com/tphakala/pulseshim/internal/audiocore/engine"
	"github.com/tphakala/pulseshim/internal/audiocore/format"
	"github.com/tphakala/pulseshim/internal/dispatch"
	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
	"github.com/tphakala/pulseshim/internal/media"
)

// minPoll keeps the transfer loops from spinning on tiny periods
const minPoll = time.Millisecond

// PlayOptions configures Play
type PlayOptions struct {
	Name   string
	Device string            // empty for the default render device
	Buffer audiocore.RefTime // requested buffer duration
	Volume float32           // master gain, 1 leaves samples untouched
	// Progress, when set, is called after every commit
	Progress func(frames int64)
}

// TransferStats summarizes a finished transfer
type TransferStats struct {
	Frames          int64
	Discontinuities int
	Elapsed         time.Duration
}

// Play renders src until it is drained and the stream has played out
// its queue. The source format is passed through as 32-bit float.
func (c *Client) Play(ctx context.Context, src media.Source, opts PlayOptions) (TransferStats, error) {
	var stats TransferStats
	start := time.Now()
	log := logger.Global().Module(componentRuntime).With(logger.String("op", "play"))

	channels := src.Channels()
	if channels <= 0 || channels > format.MaxChannels || src.SampleRate() <= 0 {
		return stats, errors.Newf("unplayable source layout: %d Hz, %d channels", src.SampleRate(), channels).
			Component(componentRuntime).
			Category(errors.CategoryValidation).
			Build()
	}
	wf := format.NewPCM(format.TagIEEEFloat, uint32(src.SampleRate()), uint16(channels), 32) //nolint:gosec // bounded above

	h, _, err := c.CreateStream(ctx, dispatch.CreateStreamParams{
		Name:     opts.Name,
		Device:   opts.Device,
		Flow:     audiocore.FlowRender,
		Duration: opts.Buffer,
		Format:   &wf,
	})
	if err != nil {
		return stats, err
	}
	defer func() { _ = c.ReleaseStream(context.WithoutCancel(ctx), h) }()

	if opts.Volume != 1 {
		if err := c.SetVolume(ctx, h, channels, opts.Volume); err != nil {
			return stats, err
		}
	}

	total, err := c.BufferSize(ctx, h)
	if err != nil {
		return stats, err
	}
	poll, err := c.pollInterval(ctx, audiocore.FlowRender)
	if err != nil {
		return stats, err
	}

	samples := make([]float32, total*channels)
	started, eof := false, false
	for {
		pad, err := c.Padding(ctx, h)
		if err != nil {
			return stats, err
		}
		if eof && pad == 0 {
			break
		}

		if avail := total - pad; !eof && avail > 0 {
			n, rerr := fill(src, samples[:avail*channels])
			frames := n / channels
			if frames > 0 {
				if err := c.commit(ctx, h, frames, samples[:frames*channels]); err != nil {
					return stats, err
				}
				stats.Frames += int64(frames)
				if opts.Progress != nil {
					opts.Progress(stats.Frames)
				}
			}
			switch {
			case rerr == io.EOF:
				eof = true
			case rerr != nil:
				return stats, rerr
			}
			if !started && (frames > 0 || eof) {
				if err := c.Start(ctx, h); err != nil {
					return stats, err
				}
				started = true
			}
		}

		if err := sleepCtx(ctx, poll); err != nil {
			return stats, err
		}
	}

	if _, err := c.Stop(ctx, h); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	log.Debug("playback finished",
		logger.Int64("frames", stats.Frames),
		logger.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (c *Client) commit(ctx context.Context, h engine.Handle, frames int, samples []float32) error {
	buf, err := c.RenderBuffer(ctx, h, frames)
	if err != nil {
		return err
	}
	media.PutFloat32LE(buf, samples)
	return c.ReleaseRenderBuffer(ctx, h, frames, 0)
}

// RecordOptions configures Record
type RecordOptions struct {
	Name     string
	Device   string // capture device, or the render device with Loopback
	Loopback bool
	Buffer   audiocore.RefTime
	Duration time.Duration // stop after this much audio, 0 runs until ctx ends
}

// Recording describes the layout Record delivers samples in
type Recording struct {
	SampleRate int
	Channels   int
}

// Record captures interleaved float samples into sink. open is called
// once with the negotiated layout before the first samples arrive. A
// cancelled ctx ends an unbounded recording without error.
func (c *Client) Record(ctx context.Context, opts RecordOptions, open func(Recording) error, sink func([]float32) error) (TransferStats, error) {
	var stats TransferStats
	start := time.Now()

	device := opts.Device
	if opts.Loopback {
		render := device
		if render == "" {
			ids := dispatch.GetEndpointIDsParams{Flow: audiocore.FlowRender}
			if _, err := c.call(ctx, dispatch.OpGetEndpointIDs, &ids); err != nil {
				return stats, err
			}
			if ids.Default < 0 {
				return stats, errors.New(audiocore.ErrDeviceNotFound).
					Component(componentRuntime).
					Context("reason", "no default render device").
					Build()
			}
			render = ids.Endpoints[ids.Default].ID
		}
		monitor, err := c.LoopbackDevice(ctx, render)
		if err != nil {
			return stats, err
		}
		device = monitor
	}

	mix, err := c.MixFormat(ctx, audiocore.FlowCapture)
	if err != nil {
		return stats, err
	}
	layout := Recording{SampleRate: int(mix.SamplesPerSec), Channels: int(mix.Channels)}
	limit := int64(opts.Duration) * int64(layout.SampleRate) / int64(time.Second)
	wf := format.NewPCM(format.TagIEEEFloat, mix.SamplesPerSec, mix.Channels, 32)

	h, _, err := c.CreateStream(ctx, dispatch.CreateStreamParams{
		Name:     opts.Name,
		Device:   device,
		Flow:     audiocore.FlowCapture,
		Duration: opts.Buffer,
		Format:   &wf,
	})
	if err != nil {
		return stats, err
	}
	defer func() { _ = c.ReleaseStream(context.WithoutCancel(ctx), h) }()

	if err := open(layout); err != nil {
		return stats, err
	}
	poll, err := c.pollInterval(ctx, audiocore.FlowCapture)
	if err != nil {
		return stats, err
	}
	if err := c.Start(ctx, h); err != nil {
		return stats, err
	}

	for limit == 0 || stats.Frames < limit {
		if ctx.Err() != nil {
			break
		}
		next, err := c.NextPacketSize(ctx, h)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return stats, err
		}
		if next == 0 {
			if err := sleepCtx(ctx, poll); err != nil {
				break
			}
			continue
		}

		pkt, err := c.CaptureBuffer(ctx, h)
		if err != nil {
			return stats, err
		}
		if pkt.Frames == 0 {
			continue
		}
		if pkt.Flags&audiocore.BufferFlagDataDiscontinuity != 0 {
			stats.Discontinuities++
		}

		frames := int64(pkt.Frames)
		if limit > 0 {
			frames = min(frames, limit-stats.Frames)
		}
		samples := media.Float32LE(pkt.Data)[:frames*int64(layout.Channels)]
		if err := sink(samples); err != nil {
			_ = c.ReleaseCaptureBuffer(ctx, h, 0)
			return stats, err
		}
		if err := c.ReleaseCaptureBuffer(ctx, h, pkt.Frames); err != nil {
			return stats, err
		}
		stats.Frames += frames
	}

	if _, err := c.Stop(context.WithoutCancel(ctx), h); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// pollInterval is half the default device period
func (c *Client) pollInterval(ctx context.Context, flow audiocore.Flow) (time.Duration, error) {
	def, _, err := c.DevicePeriod(ctx, flow)
	if err != nil {
		return 0, err
	}
	return max(def.Duration()/2, minPoll), nil
}

// fill reads from src until dst is full or the source fails
func fill(src media.Source, dst []float32) (int, error) {
	n := 0
	for n < len(dst) {
		m, err := src.ReadSamples(dst[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
