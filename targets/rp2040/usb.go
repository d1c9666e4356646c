//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures the USB CDC serial port.
func InitUSB() {
	// machine.Serial is USB CDC on RP2040; the baud rate is ignored.
	machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes waiting in the receive buffer.
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte.
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data and returns how much was accepted.
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
