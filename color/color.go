// Package color implements the color model shared by the PWM and LED strip paths.
//
// Colors travel as packed 24-bit values (red in bits 16-23, green in 8-15, blue
// in 0-7). All float math is done in float32 and every channel is truncated
// toward zero, so results are reproducible bit for bit on the MCU and on a host.
package color

import (
	imgcolor "image/color"
	"math"
)

// RGB is a packed 24-bit color: 0xRRGGBB.
type RGB uint32

// Common colors
const (
	Black RGB = 0x000000
	Red   RGB = 0xFF0000
	Green RGB = 0x00FF00
	Blue  RGB = 0x0000FF
	White RGB = 0xFFFFFF
)

// FromChannels packs three 8-bit channels.
func FromChannels(r, g, b uint8) RGB {
	return RGB(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Channels splits the packed value into red, green and blue.
func (c RGB) Channels() (r, g, b uint8) {
	r = uint8((c & 0xFF0000) >> 16)
	g = uint8((c & 0x00FF00) >> 8)
	b = uint8(c & 0xFF)
	return r, g, b
}

// RGBA converts to an opaque image/color value.
func (c RGB) RGBA() imgcolor.RGBA {
	r, g, b := c.Channels()
	return imgcolor.RGBA{R: r, G: g, B: b, A: 0xFF}
}

// FromColor packs any image/color value, dropping alpha.
func FromColor(c imgcolor.Color) RGB {
	r, g, b, _ := c.RGBA()
	return FromChannels(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// HSLToRGB converts hue [0,360), saturation [0,1] and lightness [0,1] to RGB.
//
// Hue values that fall outside every 60 degree sextant (negative, above 360
// or NaN) produce Black.
func HSLToRGB(hue, saturation, lightness float32) RGB {
	if saturation == 0 {
		v := truncU8(lightness * 255)
		return FromChannels(v, v, v)
	}

	chroma := (1 - abs32(2*lightness-1)) * saturation
	huePrime := hue / 60
	x := chroma * (1 - abs32(mod32(huePrime, 2)-1))

	r, g, b, ok := sextant(chroma, x, huePrime)
	if !ok {
		return Black
	}

	m := lightness - chroma/2
	return FromChannels(truncU8((r+m)*255), truncU8((g+m)*255), truncU8((b+m)*255))
}

// sextant picks the (r, g, b) tuple before the lightness match is added.
// Boundaries are closed on both sides for the first two sextants and
// half-open below for the rest.
func sextant(chroma, x, huePrime float32) (r, g, b float32, ok bool) {
	switch {
	case huePrime >= 0 && huePrime <= 1:
		return chroma, x, 0, true
	case huePrime >= 1 && huePrime <= 2:
		return x, chroma, 0, true
	case huePrime > 2 && huePrime <= 3:
		return 0, chroma, x, true
	case huePrime > 3 && huePrime <= 4:
		return 0, x, chroma, true
	case huePrime > 4 && huePrime <= 5:
		return x, 0, chroma, true
	case huePrime > 5 && huePrime <= 6:
		return chroma, 0, x, true
	}
	return 0, 0, 0, false
}

func abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}

// mod32 is a truncated remainder (sign follows the dividend). The remainder
// is exact, so computing it in float64 gives the float32 result.
func mod32(x, y float32) float32 {
	return float32(math.Mod(float64(x), float64(y)))
}

// truncU8 truncates toward zero and saturates to [0,255]; NaN maps to 0.
func truncU8(v float32) uint8 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
