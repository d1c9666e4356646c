//go:build rp2040

package main

import "huepico/core"

// Board wiring
const (
	ledCount = 12

	// SPI0 drives the strip; only the clock and TX pins are used.
	stripSCK core.Pin = 2
	stripTX  core.Pin = 3

	// Common-cathode RGB status LED
	ledRed   core.Pin = 13
	ledGreen core.Pin = 15
	ledBlue  core.Pin = 17

	sysClockHz = 125_000_000

	// The watchdog reboots the board if the main loop stalls this long.
	watchdogTimeoutMS = 2000
)

// stripBackend selects how the strip is driven: "spi", "pio" or "bitbang".
// Override at build time:
//
//	tinygo flash -target=pico -ldflags "-X main.stripBackend=pio" ./targets/rp2040
var stripBackend = "spi"

// debugOutput set to "uart" sends debug lines to UART0 (TX on GPIO0) at
// debugBaud. USB carries only the protocol.
var debugOutput = ""

const debugBaud = 115200
