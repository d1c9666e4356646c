package core

import (
	"errors"

	"huepico/ws2812"
	"tinygo.org/x/drivers"
)

// ErrTxOnly is returned when a receive buffer is passed to a transmit-only port.
var ErrTxOnly = errors.New("SPI port is transmit-only")

// SPIPort is one SPI port with a fixed frame size, usable wherever a
// tinygo.org/x/drivers SPI bus or a ws2812 symbol sink is expected.
type SPIPort struct {
	drv *SPIDriver
	sel SPISelector
	dss uint8
}

var (
	_ drivers.SPI         = (*SPIPort)(nil)
	_ ws2812.SymbolWriter = (*SPIPort)(nil)
)

// Port returns a transmit-only handle on one port. dss is the CR0 DSS value.
func (d *SPIDriver) Port(sel SPISelector, dss uint8) (*SPIPort, error) {
	if _, err := d.port(sel); err != nil {
		return nil, err
	}
	if dss < DataSizeMin || dss > DataSizeMax {
		return nil, ErrInvalidDataSize
	}
	return &SPIPort{drv: d, sel: sel, dss: dss}, nil
}

// Tx sends w one byte per frame. r must be nil.
func (p *SPIPort) Tx(w, r []byte) error {
	if r != nil {
		return ErrTxOnly
	}
	words := make([]uint16, len(w))
	for i, b := range w {
		words[i] = uint16(b)
	}
	return p.drv.Send(p.dss, words, p.sel)
}

// Transfer sends b. Nothing is received, so the returned byte is always 0.
func (p *SPIPort) Transfer(b byte) (byte, error) {
	return 0, p.drv.Send(p.dss, []uint16{uint16(b)}, p.sel)
}

// WriteSymbols sends pre-encoded LED symbols.
func (p *SPIPort) WriteSymbols(symbols []uint16) error {
	return p.drv.Send(p.dss, symbols, p.sel)
}
