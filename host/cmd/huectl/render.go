package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"huepico/core"
	"huepico/host/device"
	"huepico/host/spistrip"
)

const (
	defaultLEDs     = 12
	defaultInterval = time.Second
	statsInterval   = 5 * time.Second
)

var errDisconnected = errors.New("device disconnected")

func runMonitor(ctx context.Context, c *cli, d *device.Device, args []string) error {
	interval := defaultInterval
	switch len(args) {
	case 0:
	case 1:
		var err error
		if interval, err = time.ParseDuration(args[0]); err != nil || interval <= 0 {
			return fmt.Errorf("bad interval %q", args[0])
		}
	default:
		return fmt.Errorf("usage: monitor [INTERVAL]")
	}

	d.OnLog(func(msg string) {
		c.log.Infow("device", "msg", msg)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-d.Done():
			return errDisconnected
		}
	})
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
			st, err := d.Status()
			if err != nil {
				return err
			}
			c.log.Infow("status",
				"ticks", st.Ticks,
				"uptime", st.Uptime,
				"scene", st.Scene,
				"hue", st.Hue,
				"paused", st.Paused,
				"first", fmt.Sprintf("%06X", uint32(st.First)))
		}
	})
	return g.Wait()
}

func runRender(ctx context.Context, c *cli, _ *device.Device, args []string) error {
	fs := pflag.NewFlagSet("render", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	port := fs.String("spi", "", "spidev port name or number (default first port)")
	leds := fs.Int("leds", defaultLEDs, "number of LEDs")
	step := fs.Uint16("step", core.DefaultHueStep, "hue advance per frame in degrees")
	period := fs.Duration("period", core.TickPeriodMS*time.Millisecond, "frame period")
	frames := fs.Int("frames", 0, "stop after this many frames (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("render takes no positional arguments")
	}
	if *period <= 0 {
		return fmt.Errorf("bad period %v", *period)
	}

	scene := core.NewScene(*leds)
	if err := scene.SetMode(core.SceneRainbow, *step); err != nil {
		return err
	}
	strip, err := spistrip.Open(*port, *leds)
	if err != nil {
		return err
	}
	defer func() {
		if err := strip.Close(); err != nil {
			c.log.Warnw("close strip", "err", err)
		}
	}()
	c.log.Infow("rendering", "strip", strip.String(), "leds", *leds, "period", *period)
	return render(ctx, c.log, strip, scene, *period, *frames)
}

// render shows scene frames on out every period until ctx ends or frames
// have been shown (0 means no limit).
func render(ctx context.Context, log *zap.SugaredLogger, out core.StripOutput, scene *core.Scene, period time.Duration, frames int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var shown atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		t := time.NewTicker(period)
		defer t.Stop()
		for frames == 0 || shown.Load() < int64(frames) {
			f := scene.Tick()
			if err := out.Show(f.Pixels); err != nil {
				return fmt.Errorf("show frame %d: %w", shown.Load(), err)
			}
			shown.Add(1)
			if f.Marker && len(f.Pixels) > 0 {
				log.Infow(core.MarkerName(f.Hue), "first", fmt.Sprintf("%06X", uint32(f.Pixels[0])))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(statsInterval)
		defer t.Stop()
		var last int64
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				n := shown.Load()
				log.Debugw("render", "frames", n, "fps", float64(n-last)/statsInterval.Seconds())
				last = n
			}
		}
	})
	return g.Wait()
}
