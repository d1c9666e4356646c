// Package serial opens the USB CDC link to the controller.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is ignored by USB CDC but required by the port API.
const DefaultBaud = 115200

// DefaultReadTimeout keeps reads from blocking forever so Close can stop
// the reader.
const DefaultReadTimeout = 100 * time.Millisecond

var ErrNoDevice = errors.New("serial: no device given")

// Port is the byte stream the protocol layer reads and writes.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config selects the device and line settings.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings used for the controller's CDC port.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

func (c *Config) validate() error {
	if c == nil || c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return fmt.Errorf("serial: invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("serial: negative read timeout %v", c.ReadTimeout)
	}
	return nil
}

// NativePort wraps a tarm/serial port.
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens the device described by cfg.
func Open(cfg *Config) (*NativePort, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &NativePort{port: p, cfg: *cfg}, nil
}

// Read returns 0, nil when the read timeout expires with no data.
func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// Flush discards unread input and unsent output.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the path the port was opened on.
func (p *NativePort) Device() string {
	return p.cfg.Device
}
