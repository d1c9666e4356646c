package core

import "huepico/color"

// PWMOutput is the PWM interface the command handlers use. *PWMDriver
// implements it; tests substitute their own.
type PWMOutput interface {
	Start(pin Pin) error
	SetValue(pin Pin, raw uint16) error
	SetValuePercent(pin Pin, percent float32) error
	SetRGB(pins RGBPins, c color.RGB) error
	Config(pin Pin) (PWMConfig, error)
	Running(pin Pin) bool
	Registers(channel uint8) ([]RegisterValue, error)
}

var _ PWMOutput = (*PWMDriver)(nil)

var (
	pwmOutput PWMOutput
	ledPins   RGBPins
	ledSet    bool
)

// SetPWMOutput is called by target code to register its PWM driver.
func SetPWMOutput(p PWMOutput) {
	pwmOutput = p
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMOutput {
	if pwmOutput == nil {
		panic("PWM output not configured")
	}
	return pwmOutput
}

// SetStatusLED names the pins of the on-board RGB LED and starts their
// PWM channels.
func SetStatusLED(pins RGBPins) error {
	p := MustPWM()
	for _, pin := range []Pin{pins.Red, pins.Green, pins.Blue} {
		if err := p.Start(pin); err != nil {
			return err
		}
	}
	ledPins = pins
	ledSet = true
	return nil
}

// StatusLED returns the pins set by SetStatusLED.
func StatusLED() (RGBPins, bool) {
	return ledPins, ledSet
}
