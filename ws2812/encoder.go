// Package ws2812 encodes addressable-LED frames into SPI words.
//
// A WS2812B expects one pulse per data bit: a short high (~0.35us) for 0 and a
// long high (~0.7us) for 1, with a ~1.25us period. Clocking an SPI port at
// 8.5 MHz gives 117.6ns per bit, so an 8-bit word with three leading ones
// (0xE0) reproduces a 0 and one with six leading ones (0xFC) reproduces a 1.
package ws2812

import (
	"huepico/color"
)

const (
	// Frequency is the SPI bit rate the symbols are timed for.
	Frequency = 8_500_000

	// Logic0 and Logic1 are the SPI words standing in for one protocol bit.
	Logic0 uint16 = 0xE0
	Logic1 uint16 = 0xFC

	// ResetSymbol keeps the data line low; ResetSymbols of them lead each frame.
	ResetSymbol  uint16 = 0x00
	ResetSymbols        = 2

	// BitsPerLED is the number of symbols emitted per LED (G, R, B bytes).
	BitsPerLED = 24
)

// Frame is one color per LED, in chain order.
type Frame []color.RGB

// BufferSize returns the number of symbols needed for count LEDs.
func BufferSize(count int) int {
	return ResetSymbols + BitsPerLED*count
}

// BufferSizeError reports a destination buffer that does not match the frame.
type BufferSizeError struct {
	Have, Want int
}

func (e *BufferSizeError) Error() string {
	return "ws2812: buffer holds " + itoa(e.Have) + " symbols, frame needs " + itoa(e.Want)
}

// Encode allocates and returns the bitstream for frame.
func Encode(frame Frame) []uint16 {
	buf := make([]uint16, BufferSize(len(frame)))
	encode(buf, frame)
	return buf
}

// EncodeInto writes the bitstream for frame into dst, which must hold exactly
// BufferSize(len(frame)) symbols.
func EncodeInto(dst []uint16, frame Frame) error {
	if want := BufferSize(len(frame)); len(dst) != want {
		return &BufferSizeError{Have: len(dst), Want: want}
	}
	encode(dst, frame)
	return nil
}

func encode(dst []uint16, frame Frame) {
	for i := 0; i < ResetSymbols; i++ {
		dst[i] = ResetSymbol
	}
	for led, c := range frame {
		encodeLED(dst[ResetSymbols+BitsPerLED*led:ResetSymbols+BitsPerLED*(led+1)], c)
	}
}

// encodeLED expands one color in wire order: green, red, blue, each MSB first.
func encodeLED(dst []uint16, c color.RGB) {
	r, g, b := c.Channels()
	encodeByte(dst[0:8], g)
	encodeByte(dst[8:16], r)
	encodeByte(dst[16:24], b)
}

func encodeByte(dst []uint16, v uint8) {
	for i := range dst {
		if v&(0x80>>i) != 0 {
			dst[i] = Logic1
		} else {
			dst[i] = Logic0
		}
	}
}

// Decode recovers the colors from a bitstream produced by Encode. It returns
// false if the length is wrong or a word is not one of the protocol symbols.
func Decode(symbols []uint16) (Frame, bool) {
	n := len(symbols) - ResetSymbols
	if n < 0 || n%BitsPerLED != 0 {
		return nil, false
	}
	frame := make(Frame, n/BitsPerLED)
	for led := range frame {
		var grb uint32
		for _, s := range symbols[ResetSymbols+BitsPerLED*led : ResetSymbols+BitsPerLED*(led+1)] {
			grb <<= 1
			switch s {
			case Logic1:
				grb |= 1
			case Logic0:
			default:
				return nil, false
			}
		}
		frame[led] = color.FromChannels(uint8(grb>>8), uint8(grb>>16), uint8(grb))
	}
	return frame, true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
