//go:build rp2040

package main

import (
	"errors"
	imgcolor "image/color"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
	tgws2812 "tinygo.org/x/drivers/ws2812"

	"huepico/core"
	"huepico/ws2812"
)

var errUnknownBackend = errors.New("unknown strip backend")

// newStrip builds the backend named by stripBackend. Only the SPI backend
// uses the register-level SPI driver, so it alone is exposed to the
// set_spi_divider and dump_registers commands.
func newStrip(spi *core.SPIDriver, gpio *core.GPIODriver) (core.StripOutput, error) {
	switch stripBackend {
	case "spi":
		return newSPIStrip(spi, gpio)
	case "pio":
		return newPIOStrip()
	case "bitbang":
		return newBitbangStrip(), nil
	}
	return nil, errUnknownBackend
}

// newSPIStrip clocks SPI0 at the ws2812 symbol rate and sends one 8-bit
// word per protocol bit.
func newSPIStrip(spi *core.SPIDriver, gpio *core.GPIODriver) (core.StripOutput, error) {
	div, err := spi.SetBaudRate(sysClockHz, ws2812.Frequency, core.SPI0)
	if err != nil {
		return nil, err
	}
	for _, pin := range []core.Pin{stripSCK, stripTX} {
		if err := gpio.SetFunction(pin, core.FuncSPI); err != nil {
			return nil, err
		}
	}
	port, err := spi.Port(core.SPI0, core.DataSize8)
	if err != nil {
		return nil, err
	}
	core.SetSPIBus(spi)
	core.DebugPrintln("[strip] spi0 prescale=" + itoa(int(div.Prescale)) +
		" postdiv=" + itoa(int(div.Postdiv)) +
		" rate=" + itoa(int(div.Rate(sysClockHz))))
	return ws2812.NewStrip(port, ledCount), nil
}

// pioStrip runs the strip from a PIO state machine on the TX pin.
type pioStrip struct {
	ws  *piolib.WS2812B
	raw []uint32
}

func newPIOStrip() (*pioStrip, error) {
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	ws, err := piolib.NewWS2812B(sm, machine.Pin(stripTX))
	if err != nil {
		return nil, err
	}
	return &pioStrip{ws: ws, raw: make([]uint32, ledCount)}, nil
}

func (s *pioStrip) Show(frame ws2812.Frame) error {
	if len(s.raw) != len(frame) {
		s.raw = make([]uint32, len(frame))
	}
	for i, c := range frame {
		r, g, b := c.Channels()
		s.raw[i] = uint32(g)<<24 | uint32(r)<<16 | uint32(b)<<8
	}
	return s.ws.WriteRaw(s.raw)
}

// bitbangStrip toggles the TX pin from the CPU.
type bitbangStrip struct {
	dev tgws2812.Device
	buf []imgcolor.RGBA
}

func newBitbangStrip() *bitbangStrip {
	pin := machine.Pin(stripTX)
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &bitbangStrip{
		dev: tgws2812.New(pin),
		buf: make([]imgcolor.RGBA, ledCount),
	}
}

func (s *bitbangStrip) Show(frame ws2812.Frame) error {
	if len(s.buf) != len(frame) {
		s.buf = make([]imgcolor.RGBA, len(frame))
	}
	for i, c := range frame {
		s.buf[i] = c.RGBA()
	}
	return s.dev.WriteColors(s.buf)
}
