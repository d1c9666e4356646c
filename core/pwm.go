// PWM (Pulse Width Modulation) driver for the RP2040 PWM block
package core

import (
	"huepico/color"
)

// DefaultTop is the counter wrap value. With a 125 MHz system clock and the
// divider at 1 it gives ~3.8 kHz PWM at 15-bit resolution.
const DefaultTop uint16 = 0x8000

// PWMConfig is the counter wrap value and compare value of one slice.
type PWMConfig struct {
	Top     uint16
	Compare uint16
}

// RGBPins are the pins of a common-cathode RGB LED driven by PWM.
type RGBPins struct {
	Red, Green, Blue Pin
}

// PWMDriver programs PWM channels directly through their registers.
type PWMDriver struct {
	regs *PWMBlock
	top  uint16
}

// NewPWMDriver takes ownership of the PWM block. The block can only be
// claimed once.
func NewPWMDriver(regs *PWMBlock) (*PWMDriver, error) {
	if err := claim("pwm", regs); err != nil {
		return nil, err
	}
	return &PWMDriver{regs: regs, top: DefaultTop}, nil
}

// Top returns the counter wrap value written by Start.
func (d *PWMDriver) Top() uint16 {
	return d.top
}

// Start sets the wrap value, zeroes the pin's compare value and enables its
// channel. Calling it again on a running channel repeats the same writes.
func (d *PWMDriver) Start(pin Pin) error {
	b, err := PWMBindingFor(pin)
	if err != nil {
		return err
	}
	ch := &d.regs.Ch[b.Channel]
	ch.TOP.Set(uint32(d.top) & pwmTopMask)
	writeCompare(ch.CC, b.Slice, 0)
	ch.CSR.Set(ch.CSR.Get() | pwmCSREnable)
	return nil
}

// Running reports whether the pin's channel is enabled.
func (d *PWMDriver) Running(pin Pin) bool {
	b, err := PWMBindingFor(pin)
	if err != nil {
		return false
	}
	return d.regs.Ch[b.Channel].CSR.Get()&pwmCSREnable != 0
}

// SetValue writes raw into the pin's compare register. Values above Top are
// not rejected; the hardware holds the output high for the whole period.
func (d *PWMDriver) SetValue(pin Pin, raw uint16) error {
	b, err := PWMBindingFor(pin)
	if err != nil {
		return err
	}
	writeCompare(d.regs.Ch[b.Channel].CC, b.Slice, raw)
	return nil
}

// SetValuePercent sets the duty cycle from a fraction of Top. The fraction is
// not clamped to [0,1]; out-of-range values extrapolate and are then cut to
// the 16-bit register width.
func (d *PWMDriver) SetValuePercent(pin Pin, percent float32) error {
	v, err := color.Rescale(percent, 0, 1, 0, float32(d.top))
	if err != nil {
		return err
	}
	return d.SetValue(pin, color.TruncU16(v))
}

// SetRGB scales each channel of c onto [0, Top] and writes it to the matching pin.
func (d *PWMDriver) SetRGB(pins RGBPins, c color.RGB) error {
	r, g, b := c.Channels()
	for _, out := range []struct {
		pin Pin
		v   uint8
	}{{pins.Red, r}, {pins.Green, g}, {pins.Blue, b}} {
		raw, err := color.RescaleInt(int32(out.v), 0, 255, 0, int32(d.top))
		if err != nil {
			return err
		}
		if err := d.SetValue(out.pin, uint16(raw)); err != nil {
			return err
		}
	}
	return nil
}

// Compare reads back the pin's compare value.
func (d *PWMDriver) Compare(pin Pin) (uint16, error) {
	b, err := PWMBindingFor(pin)
	if err != nil {
		return 0, err
	}
	return readCompare(d.regs.Ch[b.Channel].CC, b.Slice), nil
}

// Config reads back the wrap and compare values of the pin's slice.
func (d *PWMDriver) Config(pin Pin) (PWMConfig, error) {
	b, err := PWMBindingFor(pin)
	if err != nil {
		return PWMConfig{}, err
	}
	ch := &d.regs.Ch[b.Channel]
	return PWMConfig{
		Top:     uint16(ch.TOP.Get() & pwmTopMask),
		Compare: readCompare(ch.CC, b.Slice),
	}, nil
}

// writeCompare updates one half of CC and keeps the other slice's value.
func writeCompare(cc Register, slice PWMSlice, v uint16) {
	if slice == SliceB {
		setField(cc, pwmCCBMask, pwmCCBShift, uint32(v))
	} else {
		setField(cc, pwmCCAMask, pwmCCAShift, uint32(v))
	}
}

func readCompare(cc Register, slice PWMSlice) uint16 {
	if slice == SliceB {
		return uint16((cc.Get() & pwmCCBMask) >> pwmCCBShift)
	}
	return uint16(cc.Get() & pwmCCAMask)
}
