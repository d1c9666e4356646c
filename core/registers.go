package core

// Register is a 32-bit memory-mapped hardware register.
// *volatile.Register32 satisfies it on TinyGo; MemRegister backs it on a host.
type Register interface {
	Get() uint32
	Set(value uint32)
}

// MemRegister is a plain memory cell standing in for a hardware register.
type MemRegister struct {
	Value uint32

	// OnSet, if non-nil, observes every write.
	OnSet func(value uint32)
}

func (r *MemRegister) Get() uint32 {
	return r.Value
}

func (r *MemRegister) Set(value uint32) {
	r.Value = value
	if r.OnSet != nil {
		r.OnSet(value)
	}
}

// setField replaces the bits selected by mask (already shifted) with value<<shift.
func setField(reg Register, mask uint32, shift uint, value uint32) {
	reg.Set(reg.Get()&^mask | (value<<shift)&mask)
}

// PWMChannelRegs is one PWM channel ("slice" in the RP2040 datasheet):
// CSR, DIV, CTR, CC and TOP at 0x14 byte stride.
type PWMChannelRegs struct {
	CSR Register
	DIV Register
	CTR Register
	CC  Register
	TOP Register
}

// PWMChannels is the number of PWM channels in the PWM block.
const PWMChannels = 8

// PWMBlock is the PWM peripheral register block.
type PWMBlock struct {
	Ch [PWMChannels]PWMChannelRegs
}

// PWM register fields
const (
	pwmCSREnable = 1 << 0

	pwmCCAMask  = 0x0000FFFF
	pwmCCAShift = 0
	pwmCCBMask  = 0xFFFF0000
	pwmCCBShift = 16

	pwmTopMask = 0xFFFF
)

// SPIBlock is one PL022 synchronous serial port.
type SPIBlock struct {
	CR0  Register // SSPCR0: DSS, FRF, SPO, SPH, SCR
	CR1  Register // SSPCR1: LBM, SSE, MS, SOD
	DR   Register // SSPDR: TX/RX FIFO
	SR   Register // SSPSR: TFE, TNF, RNE, RFF, BSY
	CPSR Register // SSPCPSR: CPSDVSR
}

// SPI register fields
const (
	spiCR0DSSMask  = 0x0F
	spiCR0DSSShift = 0
	spiCR0SCRMask  = 0xFF00
	spiCR0SCRShift = 8

	spiCR1SSE = 1 << 1
	spiCR1MS  = 1 << 2

	spiSRTFE = 1 << 0
	spiSRTNF = 1 << 1
	spiSRBSY = 1 << 4

	spiCPSRMask = 0xFF
)

// GPIORegs is the STATUS/CTRL pair of one pin in IO_BANK0.
type GPIORegs struct {
	Status Register
	Ctrl   Register
}

// GPIOBank is IO_BANK0: one STATUS/CTRL pair per user pin.
type GPIOBank struct {
	Pin [NumPins]GPIORegs
}

// GPIO CTRL fields
const (
	gpioFuncselShift = 0
	gpioOutoverShift = 8
	gpioOeoverShift  = 12

	gpioOutoverLow  = 0x2
	gpioOutoverHigh = 0x3
	gpioOeoverOn    = 0x3
)

// NewMemPWMBlock returns a PWM block backed by memory registers.
func NewMemPWMBlock() *PWMBlock {
	b := &PWMBlock{}
	for i := range b.Ch {
		b.Ch[i] = PWMChannelRegs{
			CSR: &MemRegister{},
			DIV: &MemRegister{Value: 1 << 4}, // integer divide 1 at reset
			CTR: &MemRegister{},
			CC:  &MemRegister{},
			TOP: &MemRegister{Value: 0xFFFF},
		}
	}
	return b
}

// NewMemSPIBlock returns an SPI block backed by memory registers. The status
// register reports an empty, not-full transmit FIFO.
func NewMemSPIBlock() *SPIBlock {
	return &SPIBlock{
		CR0:  &MemRegister{},
		CR1:  &MemRegister{},
		DR:   &MemRegister{},
		SR:   &MemRegister{Value: spiSRTFE | spiSRTNF},
		CPSR: &MemRegister{},
	}
}

// NewMemGPIOBank returns a GPIO bank backed by memory registers. CTRL resets
// to FUNCSEL=NULL (0x1f), as on the chip.
func NewMemGPIOBank() *GPIOBank {
	b := &GPIOBank{}
	for i := range b.Pin {
		b.Pin[i] = GPIORegs{
			Status: &MemRegister{},
			Ctrl:   &MemRegister{Value: uint32(FuncNull)},
		}
	}
	return b
}
