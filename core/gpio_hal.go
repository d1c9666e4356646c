package core

// PinMux is the pin function interface the command handlers use.
type PinMux interface {
	SetPin(pin Pin, mode PinMode) error
	SetFunction(pin Pin, fn Function) error
	Registers(pin Pin) ([]RegisterValue, error)
}

var _ PinMux = (*GPIODriver)(nil)

var pinMux PinMux

// SetPinMux is called by target code to register its GPIO driver.
func SetPinMux(m PinMux) {
	pinMux = m
}

// MustPinMux returns the configured driver or panics if missing.
func MustPinMux() PinMux {
	if pinMux == nil {
		panic("pin mux not configured")
	}
	return pinMux
}
