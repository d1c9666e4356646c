package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"huepico/color"
	"huepico/core"
	"huepico/host/device"
)

type command struct {
	name  string
	usage string
	help  string
	// nargs is the exact argument count, or -1 when run checks it.
	nargs  int
	device bool
	run    func(ctx context.Context, c *cli, d *device.Device, args []string) error
}

var commands []*command

func init() {
	commands = []*command{
		{"dict", "", "print the firmware dictionary", 0, true, runDict},
		{"status", "", "print tick count, uptime and scene state", 0, true, runStatus},
		{"pixel", "INDEX RRGGBB", "set one LED and switch to the static scene", 2, true, runPixel},
		{"hsl", "INDEX HUE SAT LIGHT", "set one LED from hue (degrees), saturation and lightness (0..1)", 4, true, runHSL},
		{"fill", "RRGGBB", "set every LED and switch to the static scene", 1, true, runFill},
		{"scene", "rainbow|static [STEP]", "select the scene; STEP is the rainbow advance in degrees per tick", -1, true, runScene},
		{"pause", "on|off", "freeze or resume the rainbow", 1, true, runPause},
		{"pwm", "PIN [VALUE|PERCENT%]", "read a PWM pin, or set its compare value or duty", -1, true, runPWM},
		{"led", "RRGGBB", "set the on-board RGB LED", 1, true, runLED},
		{"pin", "PIN low|high|pwm", "drive a GPIO from software or hand it to PWM", 2, true, runPin},
		{"spi-divider", "BUS PRESCALE POSTDIV", "write SPI clock dividers directly", 3, true, runSPIDivider},
		{"dump", "pwm|spi|gpio INDEX", "print peripheral registers", 2, true, runDump},
		{"reset", "", "reboot the controller", 0, true, runReset},
		{"monitor", "[INTERVAL]", "print device logs and poll status until interrupted", -1, true, runMonitor},
		{"shell", "", "read commands from stdin on one connection", 0, true, runShell},
		{"render", "[--spi PORT] [--leds N] [--step DEG] [--period D] [--frames N]", "run the rainbow on a local spidev strip", -1, false, runRender},
		{"divider", "CLOCK BAUD", "compute SPI dividers, e.g. divider 125M 8.5M", 2, false, runDivider},
		{"help", "", "list commands", 0, false, runHelp},
	}
}

func lookupCommand(name string) (*command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

func printCommands(w io.Writer) {
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %-28s %s\n", c.name, c.usage, c.help)
	}
}

func runHelp(_ context.Context, c *cli, _ *device.Device, _ []string) error {
	printCommands(c.out)
	return nil
}

func runDict(_ context.Context, c *cli, d *device.Device, _ []string) error {
	dict := d.Dictionary()
	fmt.Fprintf(c.out, "version: %s\nbuild:   %s\n", dict.Version, dict.BuildVersions)

	keys := make([]string, 0, len(dict.Config))
	for k := range dict.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(c.out, "config:")
	for _, k := range keys {
		fmt.Fprintf(c.out, "  %s = %s\n", k, dict.Config[k])
	}

	fmt.Fprintln(c.out, "commands:")
	for _, m := range dict.Commands() {
		fmt.Fprintf(c.out, "  [%2d] %s\n", m.ID, m)
	}
	fmt.Fprintln(c.out, "responses:")
	for _, m := range dict.Responses() {
		fmt.Fprintf(c.out, "  [%2d] %s\n", m.ID, m)
	}

	names := make([]string, 0, len(dict.Enumerations))
	for n := range dict.Enumerations {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(c.out, "enumerations:")
	for _, n := range names {
		values := dict.Enumerations[n]
		labels := make([]string, 0, len(values))
		for l := range values {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool { return values[labels[i]] < values[labels[j]] })
		for i, l := range labels {
			labels[i] = fmt.Sprintf("%s=%d", l, values[l])
		}
		fmt.Fprintf(c.out, "  %s: %s\n", n, strings.Join(labels, " "))
	}
	return nil
}

func runStatus(_ context.Context, c *cli, d *device.Device, _ []string) error {
	st, err := d.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ticks:  %d\nuptime: %v\nscene:  %s (step %d, hue %d", st.Ticks, st.Uptime, st.Scene, st.Step, st.Hue)
	if st.Paused {
		fmt.Fprint(c.out, ", paused")
	}
	fmt.Fprintf(c.out, ")\nleds:   %d, first %06X\n", st.LEDs, uint32(st.First))
	return nil
}

func runPixel(_ context.Context, _ *cli, d *device.Device, args []string) error {
	index, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	c, err := parseColor(args[1])
	if err != nil {
		return err
	}
	return d.SetPixel(int(index), c)
}

func runHSL(_ context.Context, _ *cli, d *device.Device, args []string) error {
	index, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	var v [3]float64
	for i, a := range args[1:] {
		if v[i], err = strconv.ParseFloat(a, 64); err != nil {
			return fmt.Errorf("bad number %q", a)
		}
	}
	return d.SetPixelHSL(int(index), v[0], v[1], v[2])
}

func runFill(_ context.Context, _ *cli, d *device.Device, args []string) error {
	c, err := parseColor(args[0])
	if err != nil {
		return err
	}
	return d.Fill(c)
}

func runScene(_ context.Context, _ *cli, d *device.Device, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: scene rainbow|static [STEP]")
	}
	var step uint64
	if len(args) == 2 {
		var err error
		if step, err = parseUint(args[1], 16); err != nil {
			return err
		}
	}
	return d.SetScene(args[0], uint16(step))
}

func runPause(_ context.Context, _ *cli, d *device.Device, args []string) error {
	on, err := parseSwitch(args[0])
	if err != nil {
		return err
	}
	return d.PauseScene(on)
}

func runPWM(_ context.Context, c *cli, d *device.Device, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: pwm PIN [VALUE|PERCENT%%]")
	}
	pin, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		if pct, ok := strings.CutSuffix(args[1], "%"); ok {
			f, err := strconv.ParseFloat(pct, 64)
			if err != nil {
				return fmt.Errorf("bad percentage %q", args[1])
			}
			err = d.SetPWMPercent(uint8(pin), f/100)
			if err != nil {
				return err
			}
		} else {
			v, err := parseUint(args[1], 16)
			if err != nil {
				return err
			}
			if err := d.SetPWM(uint8(pin), uint16(v)); err != nil {
				return err
			}
		}
	}
	s, err := d.PWM(uint8(pin))
	if err != nil {
		return err
	}
	state := "stopped"
	if s.Running {
		state = "running"
	}
	fmt.Fprintf(c.out, "pin %d: compare %d of %d (%.1f%%), %s\n", s.Pin, s.Compare, s.Top, s.Duty()*100, state)
	return nil
}

func runLED(_ context.Context, _ *cli, d *device.Device, args []string) error {
	c, err := parseColor(args[0])
	if err != nil {
		return err
	}
	return d.SetStatusLED(c)
}

func runPin(_ context.Context, _ *cli, d *device.Device, args []string) error {
	pin, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	return d.SetPin(uint8(pin), args[1])
}

func runSPIDivider(_ context.Context, _ *cli, d *device.Device, args []string) error {
	var v [3]uint64
	for i, a := range args {
		var err error
		if v[i], err = parseUint(a, 8); err != nil {
			return err
		}
	}
	return d.SetSPIDivider(uint8(v[0]), uint8(v[1]), uint8(v[2]))
}

func runDump(_ context.Context, c *cli, d *device.Device, args []string) error {
	index, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	lines, err := d.DumpRegisters(args[0], uint8(index))
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
	return nil
}

func runReset(_ context.Context, c *cli, d *device.Device, _ []string) error {
	if err := d.Reset(); err != nil {
		return err
	}
	c.log.Infow("reset sent", "device", c.opts.device)
	return nil
}

func runDivider(_ context.Context, c *cli, _ *device.Device, args []string) error {
	clock, err := parseHz(args[0])
	if err != nil {
		return err
	}
	baud, err := parseHz(args[1])
	if err != nil {
		return err
	}
	div, err := core.ComputeDivider(clock, baud)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "prescale=%d postdiv=%d rate=%d Hz\n", div.Prescale, div.Postdiv, div.Rate(clock))
	return nil
}

// runShell runs one command per input line until EOF or quit.
func runShell(ctx context.Context, c *cli, _ *device.Device, _ []string) error {
	in := c.in
	if in == nil {
		return fmt.Errorf("shell needs an input")
	}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		args, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		case "shell":
			fmt.Fprintln(c.out, "error: already in a shell")
			continue
		}
		if err := c.exec(ctx, args); err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// parseColor accepts RRGGBB with an optional # or 0x prefix.
func parseColor(s string) (color.RGB, error) {
	h := strings.TrimPrefix(s, "#")
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if len(h) != 6 {
		return 0, fmt.Errorf("bad color %q, want RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad color %q, want RRGGBB", s)
	}
	return color.RGB(v), nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("want on or off, got %q", s)
	}
	return b, nil
}

// parseHz reads a frequency with an optional k, M or G multiplier and an
// optional Hz suffix: 125M, 8.5MHz, 400000.
func parseHz(s string) (uint32, error) {
	t := strings.TrimSuffix(strings.TrimSuffix(s, "Hz"), "hz")
	mult := 1.0
	if n := len(t); n > 0 {
		switch t[n-1] {
		case 'k', 'K':
			mult, t = 1e3, t[:n-1]
		case 'M':
			mult, t = 1e6, t[:n-1]
		case 'G':
			mult, t = 1e9, t[:n-1]
		}
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("bad frequency %q", s)
	}
	hz := f * mult
	if hz > float64(^uint32(0)) {
		return 0, fmt.Errorf("frequency %q above 4.29 GHz", s)
	}
	return uint32(hz + 0.5), nil
}
