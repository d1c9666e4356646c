// SPI clock and transmit driver for the RP2040 PL022 ports
package core

import "errors"

// SPISelector picks one of the two SPI ports.
type SPISelector uint8

const (
	SPI0 SPISelector = iota
	SPI1
)

// DSS field values (frame width minus one)
const (
	DataSizeMin uint8 = 3  // 4-bit frames
	DataSize8   uint8 = 7  // 8-bit frames
	DataSizeMax uint8 = 15 // 16-bit frames
)

// Divider search ranges
const (
	prescaleMin = 2
	prescaleMax = 254
	postdivMax  = 255
)

var (
	// ErrUnreachableBaudRate matches every *UnreachableBaudRateError.
	ErrUnreachableBaudRate = errors.New("baud rate unreachable")
	ErrInvalidDataSize     = errors.New("invalid SPI data size")
	ErrInvalidSelector     = errors.New("invalid SPI selector")
	ErrInvalidDivider      = errors.New("invalid SPI divider")
)

// SPIDivider holds the two cascaded clock dividers of a port:
// CPSDVSR (Prescale, even) and the CR0 serial clock rate (Postdiv).
type SPIDivider struct {
	Prescale uint8
	Postdiv  uint8
}

// Valid reports whether Prescale is even and in [2,254], the range CPSDVSR
// accepts.
func (d SPIDivider) Valid() bool {
	return d.Prescale >= prescaleMin && d.Prescale <= prescaleMax && d.Prescale%2 == 0
}

// Rate returns the bit rate produced from clockHz.
func (d SPIDivider) Rate(clockHz uint32) uint32 {
	if d.Prescale == 0 || d.Postdiv == 0 {
		return 0
	}
	return clockHz / (uint32(d.Prescale) * uint32(d.Postdiv))
}

// UnreachableBaudRateError reports a target rate the dividers cannot produce
// from the given peripheral clock.
type UnreachableBaudRateError struct {
	ClockHz uint32
	BaudHz  uint32
}

func (e *UnreachableBaudRateError) Error() string {
	return "baud rate " + utoa(e.BaudHz) + " Hz unreachable from " + utoa(e.ClockHz) + " Hz"
}

func (e *UnreachableBaudRateError) Is(target error) bool {
	return target == ErrUnreachableBaudRate
}

// ComputeDivider finds the smallest even prescale that keeps the post-divide
// search inside 8 bits, then the largest post-divide whose output is still
// above baudHz.
func ComputeDivider(clockHz, baudHz uint32) (SPIDivider, error) {
	clk := uint64(clockHz)
	baud := uint64(baudHz)

	prescale := uint64(0)
	for p := uint64(prescaleMin); p <= prescaleMax; p += 2 {
		if clk < (p+2)*256*baud {
			prescale = p
			break
		}
	}
	if prescale == 0 {
		return SPIDivider{}, &UnreachableBaudRateError{ClockHz: clockHz, BaudHz: baudHz}
	}

	// postdiv 0 would divide by zero, so the scan stops at 1.
	for postdiv := uint64(postdivMax); postdiv >= 1; postdiv-- {
		if clk/(prescale*postdiv) > baud {
			return SPIDivider{Prescale: uint8(prescale), Postdiv: uint8(postdiv)}, nil
		}
	}
	return SPIDivider{}, &UnreachableBaudRateError{ClockHz: clockHz, BaudHz: baudHz}
}

// SPIDriver programs both SPI ports directly through their registers.
type SPIDriver struct {
	ports [2]*SPIBlock

	// Yield, if set, runs on every poll of a full transmit FIFO.
	// Send spins without it.
	Yield func()
}

// NewSPIDriver takes ownership of both SPI ports. Each block can only be
// claimed once.
func NewSPIDriver(spi0, spi1 *SPIBlock) (*SPIDriver, error) {
	var blocks []interface{}
	for _, b := range []*SPIBlock{spi0, spi1} {
		if b != nil {
			blocks = append(blocks, b)
		}
	}
	if err := claim("spi", blocks...); err != nil {
		return nil, err
	}
	return &SPIDriver{ports: [2]*SPIBlock{spi0, spi1}}, nil
}

func (d *SPIDriver) port(sel SPISelector) (*SPIBlock, error) {
	if int(sel) >= len(d.ports) || d.ports[sel] == nil {
		return nil, ErrInvalidSelector
	}
	return d.ports[sel], nil
}

// Apply writes the prescale into CPSDVSR and the post-divide into CR0.SCR.
// A divider with an odd or out-of-range prescale is rejected and nothing is
// written.
func (d *SPIDriver) Apply(div SPIDivider, sel SPISelector) error {
	p, err := d.port(sel)
	if err != nil {
		return err
	}
	if !div.Valid() {
		return ErrInvalidDivider
	}
	p.CPSR.Set(uint32(div.Prescale) & spiCPSRMask)
	setField(p.CR0, spiCR0SCRMask, spiCR0SCRShift, uint32(div.Postdiv))
	return nil
}

// SetBaudRate computes and applies the divider for baudHz.
func (d *SPIDriver) SetBaudRate(clockHz, baudHz uint32, sel SPISelector) (SPIDivider, error) {
	div, err := ComputeDivider(clockHz, baudHz)
	if err != nil {
		return SPIDivider{}, err
	}
	return div, d.Apply(div, sel)
}

// Send sets the frame size (dss is the CR0 DSS field, frame width dss+1),
// enables the port as master and pushes every word into the transmit FIFO.
//
// After each word Send waits for the FIFO to report not-full. There is no
// timeout: a port that never drains blocks the caller forever.
func (d *SPIDriver) Send(dss uint8, data []uint16, sel SPISelector) error {
	if dss < DataSizeMin || dss > DataSizeMax {
		return ErrInvalidDataSize
	}
	p, err := d.port(sel)
	if err != nil {
		return err
	}

	setField(p.CR0, spiCR0DSSMask, spiCR0DSSShift, uint32(dss))
	p.CR1.Set(spiCR1SSE) // MS=0: master

	mask := uint32(1)<<(dss+1) - 1
	for _, w := range data {
		p.DR.Set(uint32(w) & mask)
		for p.SR.Get()&spiSRTNF == 0 {
			if d.Yield != nil {
				d.Yield()
			}
		}
	}
	return nil
}

// Flush waits until the port has shifted out everything in its FIFO.
func (d *SPIDriver) Flush(sel SPISelector) error {
	p, err := d.port(sel)
	if err != nil {
		return err
	}
	for p.SR.Get()&spiSRBSY != 0 || p.SR.Get()&spiSRTFE == 0 {
		if d.Yield != nil {
			d.Yield()
		}
	}
	return nil
}
