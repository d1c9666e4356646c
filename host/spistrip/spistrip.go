// Package spistrip drives a WS2812B chain from a Linux spidev port with the
// same symbol encoding the firmware uses.
package spistrip

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"huepico/ws2812"
)

// Frequency is the bus clock the ws2812 symbols are timed for.
const Frequency = ws2812.Frequency * physic.Hertz

var ErrClosed = errors.New("spistrip: closed")

// Strip sends frames over an SPI connection, one 8-bit word per symbol.
type Strip struct {
	port  spi.PortCloser
	conn  spi.Conn
	strip *ws2812.Strip
	buf   []byte
}

var _ ws2812.SymbolWriter = (*Strip)(nil)

// Open initialises periph, opens the named SPI port ("" picks the first one)
// and sizes the strip for count LEDs.
func Open(name string, count int) (*Strip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", name, err)
	}
	c, err := p.Connect(Frequency, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect %s at %s: %w", p, Frequency, err)
	}
	s, err := New(c, count)
	if err != nil {
		p.Close()
		return nil, err
	}
	s.port = p
	return s, nil
}

// New wraps an already connected port. The connection must be clocked at
// Frequency with 8 bits per word.
func New(c spi.Conn, count int) (*Strip, error) {
	if count <= 0 {
		return nil, fmt.Errorf("spistrip: invalid LED count %d", count)
	}
	if l, ok := c.(conn.Limits); ok {
		if limit := l.MaxTxSize(); limit > 0 && ws2812.BufferSize(count) > limit {
			return nil, fmt.Errorf("spistrip: %d LEDs need %d bytes per transfer, %s allows %d",
				count, ws2812.BufferSize(count), c, limit)
		}
	}
	s := &Strip{conn: c, buf: make([]byte, ws2812.BufferSize(count))}
	s.strip = ws2812.NewStrip(s, count)
	return s, nil
}

// Show encodes frame and transmits it in one transfer.
func (s *Strip) Show(frame ws2812.Frame) error {
	if s.conn == nil {
		return ErrClosed
	}
	return s.strip.Show(frame)
}

// WriteSymbols packs 8-bit symbols into bytes and sends them.
func (s *Strip) WriteSymbols(symbols []uint16) error {
	if s.conn == nil {
		return ErrClosed
	}
	if len(s.buf) != len(symbols) {
		s.buf = make([]byte, len(symbols))
	}
	for i, w := range symbols {
		s.buf[i] = byte(w)
	}
	return s.conn.Tx(s.buf, nil)
}

// Close blanks the chain and releases the port.
func (s *Strip) Close() error {
	if s.conn == nil {
		return nil
	}
	blank := make(ws2812.Frame, (len(s.buf)-ws2812.ResetSymbols)/ws2812.BitsPerLED)
	err := s.strip.Show(blank)
	s.conn = nil
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Strip) String() string {
	if s.conn == nil {
		return "spistrip(closed)"
	}
	return "spistrip(" + s.conn.String() + ")"
}
