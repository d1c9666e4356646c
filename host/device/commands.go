package device

import (
	"fmt"
	"math"
	"time"

	"huepico/color"
)

// Status is the answer to get_status.
type Status struct {
	Ticks  uint32
	Uptime time.Duration
	Scene  string
	Step   uint16
	Hue    uint16
	Paused bool
	LEDs   int
	First  color.RGB
}

// PWMState is the answer to get_pwm.
type PWMState struct {
	Pin     uint8
	Top     uint16
	Compare uint16
	Running bool
}

// Duty returns Compare as a fraction of Top.
func (s PWMState) Duty() float64 {
	if s.Top == 0 {
		return 0
	}
	return float64(s.Compare) / float64(s.Top)
}

func (d *Device) Status() (*Status, error) {
	r, err := d.Request("get_status", nil, "status")
	if err != nil {
		return nil, err
	}
	u, err := r.uints(8)
	if err != nil {
		return nil, err
	}
	return &Status{
		Ticks:  u[0],
		Uptime: time.Duration(u[1]) * time.Millisecond,
		Scene:  d.Dictionary().EnumLabel("scene", int(u[2])),
		Step:   uint16(u[3]),
		Hue:    uint16(u[4]),
		Paused: u[5] != 0,
		LEDs:   int(u[6]),
		First:  color.RGB(u[7]),
	}, nil
}

func (d *Device) SetPixel(index int, c color.RGB) error {
	return d.Send("set_pixel", index, uint32(c))
}

// SetPixelHSL sends hue in degrees and saturation and lightness in [0,1].
func (d *Device) SetPixelHSL(index int, hue, sat, light float64) error {
	if hue < 0 || sat < 0 || sat > 1 || light < 0 || light > 1 {
		return fmt.Errorf("hsl(%g, %g, %g) out of range", hue, sat, light)
	}
	return d.Send("set_pixel_hsl", index,
		uint32(math.Round(hue*10)),
		uint32(math.Round(sat*1000)),
		uint32(math.Round(light*1000)))
}

func (d *Device) Fill(c color.RGB) error {
	return d.Send("fill", uint32(c))
}

// SetScene switches to a scene by its enumeration name. A step of 0 keeps
// the firmware default.
func (d *Device) SetScene(mode string, step uint16) error {
	dict, err := d.dictionary()
	if err != nil {
		return err
	}
	v, err := dict.Enum("scene", mode)
	if err != nil {
		return err
	}
	return d.Send("set_scene", v, step)
}

func (d *Device) PauseScene(paused bool) error {
	return d.Send("pause_scene", paused)
}

func (d *Device) SetPWM(pin uint8, value uint16) error {
	return d.Send("set_pwm", pin, value)
}

// SetPWMPercent sets the duty as a fraction of the counter top.
func (d *Device) SetPWMPercent(pin uint8, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("duty %g outside [0,1]", fraction)
	}
	return d.Send("set_pwm_percent", pin, uint32(math.Round(fraction*1000)))
}

func (d *Device) SetStatusLED(c color.RGB) error {
	return d.Send("set_status_led", uint32(c))
}

func (d *Device) PWM(pin uint8) (*PWMState, error) {
	r, err := d.Request("get_pwm", []any{pin}, "pwm_state")
	if err != nil {
		return nil, err
	}
	u, err := r.uints(4)
	if err != nil {
		return nil, err
	}
	return &PWMState{
		Pin:     uint8(u[0]),
		Top:     uint16(u[1]),
		Compare: uint16(u[2]),
		Running: u[3] != 0,
	}, nil
}

// SetPin drives a pin by its pin_mode name: low, high or pwm.
func (d *Device) SetPin(pin uint8, mode string) error {
	dict, err := d.dictionary()
	if err != nil {
		return err
	}
	v, err := dict.Enum("pin_mode", mode)
	if err != nil {
		return err
	}
	return d.Send("set_pin", pin, v)
}

func (d *Device) SetSPIDivider(bus uint8, prescale, postdiv uint8) error {
	return d.Send("set_spi_divider", bus, prescale, postdiv)
}

// DumpRegisters returns the header and register lines the firmware logs for
// one peripheral: kind is pwm, spi or gpio.
func (d *Device) DumpRegisters(kind string, index uint8) ([]string, error) {
	dict, err := d.dictionary()
	if err != nil {
		return nil, err
	}
	v, err := dict.Enum("dump_kind", kind)
	if err != nil {
		return nil, err
	}
	lines, err := d.Collect("dump_registers", v, index)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("dump %s %d: %w", kind, index, ErrNoResponse)
	}
	return lines, nil
}

// Reset reboots the controller. The link usually drops afterwards.
func (d *Device) Reset() error {
	if err := d.Send("reset"); err != nil {
		return err
	}
	d.tr.Reset()
	return nil
}

func (r *Response) uints(n int) ([]uint32, error) {
	if len(r.Args) != n {
		return nil, fmt.Errorf("%s: %d arguments, want %d", r.Name, len(r.Args), n)
	}
	out := make([]uint32, n)
	for i, a := range r.Args {
		v, ok := a.(uint32)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is %T", r.Name, i, a)
		}
		out[i] = v
	}
	return out, nil
}
