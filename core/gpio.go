// GPIO function-select driver for IO_BANK0
package core

import "errors"

// ErrInvalidMode is returned by SetPin for an unknown PinMode.
var ErrInvalidMode = errors.New("invalid pin mode")

// PinMode is the level or peripheral a pin is handed to by SetPin.
type PinMode uint8

const (
	ModeLow PinMode = iota
	ModeHigh
	ModePWM
)

func (m PinMode) String() string {
	switch m {
	case ModeLow:
		return "low"
	case ModeHigh:
		return "high"
	case ModePWM:
		return "pwm"
	}
	return "mode(" + utoa(uint32(m)) + ")"
}

// Function is a FUNCSEL value of GPIOn_CTRL.
type Function uint8

// RP2040 function select values
const (
	FuncXIP  Function = 0
	FuncSPI  Function = 1
	FuncUART Function = 2
	FuncI2C  Function = 3
	FuncPWM  Function = 4
	FuncSIO  Function = 5
	FuncPIO0 Function = 6
	FuncPIO1 Function = 7
	FuncGPCK Function = 8
	FuncUSB  Function = 9
	FuncNull Function = 0x1F
)

// GPIODriver writes pin function and override settings.
type GPIODriver struct {
	regs *GPIOBank
}

// NewGPIODriver takes ownership of IO_BANK0. The bank can only be claimed once.
func NewGPIODriver(regs *GPIOBank) (*GPIODriver, error) {
	if err := claim("gpio", regs); err != nil {
		return nil, err
	}
	return &GPIODriver{regs: regs}, nil
}

// SetPin drives pin low or high from software, or hands it to its PWM slice.
// Each call is a single full write of the CTRL register.
func (d *GPIODriver) SetPin(pin Pin, mode PinMode) error {
	if int(pin) >= NumPins {
		return ErrInvalidPin
	}
	var ctrl uint32
	switch mode {
	case ModeLow:
		ctrl = uint32(FuncSIO)<<gpioFuncselShift |
			gpioOeoverOn<<gpioOeoverShift |
			gpioOutoverLow<<gpioOutoverShift
	case ModeHigh:
		ctrl = uint32(FuncSIO)<<gpioFuncselShift |
			gpioOeoverOn<<gpioOeoverShift |
			gpioOutoverHigh<<gpioOutoverShift
	case ModePWM:
		ctrl = uint32(FuncPWM) << gpioFuncselShift
	default:
		return ErrInvalidMode
	}
	d.regs.Pin[pin].Ctrl.Set(ctrl)
	return nil
}

// SetFunction hands pin to a peripheral with all overrides cleared.
func (d *GPIODriver) SetFunction(pin Pin, fn Function) error {
	if int(pin) >= NumPins {
		return ErrInvalidPin
	}
	d.regs.Pin[pin].Ctrl.Set(uint32(fn) << gpioFuncselShift)
	return nil
}

// Ctrl reads back the CTRL register of pin.
func (d *GPIODriver) Ctrl(pin Pin) (uint32, error) {
	if int(pin) >= NumPins {
		return 0, ErrInvalidPin
	}
	return d.regs.Pin[pin].Ctrl.Get(), nil
}
