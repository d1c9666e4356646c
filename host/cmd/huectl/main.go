// Command huectl controls the LED controller over its USB serial link and can
// render the same scenes on a local spidev strip.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"huepico/host/device"
	"huepico/host/serial"
)

type options struct {
	device  string
	baud    int
	timeout time.Duration
	verbose bool
}

type cli struct {
	opts options
	in   io.Reader
	out  io.Writer
	log  *zap.SugaredLogger
	dev  *device.Device

	// connect opens the device; replaced in tests.
	connect func(ctx context.Context) (*device.Device, error)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "huectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("huectl", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SetInterspersed(false)
	fs.StringVarP(&opts.device, "device", "d", "/dev/ttyACM0", "serial device of the controller")
	fs.IntVar(&opts.baud, "baud", serial.DefaultBaud, "baud rate (ignored by USB CDC)")
	fs.DurationVar(&opts.timeout, "timeout", device.DefaultTimeout, "response timeout")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(out, "usage: huectl [flags] <command> [args]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "flags:")
		fs.PrintDefaults()
		fmt.Fprintln(out)
		printCommands(out)
	}
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no command given")
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	c := &cli{opts: opts, in: in, out: out, log: log}
	c.connect = c.open
	defer c.close()
	return c.exec(ctx, fs.Args())
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Sugar(), nil
}

func (c *cli) open(ctx context.Context) (*device.Device, error) {
	cfg := serial.DefaultConfig(c.opts.device)
	cfg.Baud = c.opts.baud
	d, err := device.Open(cfg, c.log.Named("device"))
	if err != nil {
		return nil, err
	}
	d.Timeout = c.opts.timeout
	if _, err := d.Identify(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("identify %s: %w", c.opts.device, err)
	}
	return d, nil
}

// device returns the connection, opening it on first use.
func (c *cli) device(ctx context.Context) (*device.Device, error) {
	if c.dev != nil {
		return c.dev, nil
	}
	d, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.dev = d
	return d, nil
}

func (c *cli) close() {
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			c.log.Debugw("close", "err", err)
		}
		c.dev = nil
	}
}

func (c *cli) exec(ctx context.Context, args []string) error {
	cmd, ok := lookupCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	if cmd.nargs >= 0 && len(args)-1 != cmd.nargs {
		return fmt.Errorf("usage: %s %s", cmd.name, cmd.usage)
	}
	var d *device.Device
	if cmd.device {
		var err error
		if d, err = c.device(ctx); err != nil {
			return err
		}
	}
	return cmd.run(ctx, c, d, args[1:])
}
