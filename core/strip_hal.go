package core

import (
	"huepico/ws2812"
)

// StripOutput is an addressable LED chain. The SPI, PIO and bit-banged
// backends all implement it.
type StripOutput interface {
	Show(frame ws2812.Frame) error
}

// SPIBus is the part of the SPI driver exposed to commands.
type SPIBus interface {
	Apply(div SPIDivider, sel SPISelector) error
	Registers(sel SPISelector) ([]RegisterValue, error)
}

var _ SPIBus = (*SPIDriver)(nil)

var (
	stripOutput StripOutput
	spiBus      SPIBus
)

// SetStripOutput is called by target code to register its strip backend.
func SetStripOutput(s StripOutput) {
	stripOutput = s
}

// MustStrip returns the configured strip or panics if missing.
func MustStrip() StripOutput {
	if stripOutput == nil {
		panic("strip output not configured")
	}
	return stripOutput
}

// SetSPIBus registers the SPI driver. It stays nil when the strip runs on
// a non-SPI backend.
func SetSPIBus(b SPIBus) {
	spiBus = b
}
