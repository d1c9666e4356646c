package core

import "errors"

// Pin identifies a user GPIO (GPIO0..GPIO29).
type Pin uint8

// NumPins is the number of user GPIOs in IO_BANK0.
const NumPins = 30

var (
	// ErrInvalidPin is returned for pins outside 0..NumPins-1.
	ErrInvalidPin     = errors.New("invalid pin")
	ErrInvalidChannel = errors.New("invalid PWM channel")
)

// PWMSlice selects one of the two compare outputs of a PWM channel.
type PWMSlice uint8

const (
	SliceA PWMSlice = iota
	SliceB
)

func (s PWMSlice) String() string {
	if s == SliceB {
		return "B"
	}
	return "A"
}

// PWMBinding is the PWM channel and slice wired to a pin.
type PWMBinding struct {
	Channel uint8
	Slice   PWMSlice
}

// pwmBindings is the fixed RP2040 pin mux: pins 2k and 2k+1 share channel k mod 8,
// even pins drive slice A and odd pins slice B.
var pwmBindings = [NumPins]PWMBinding{
	{0, SliceA}, {0, SliceB},
	{1, SliceA}, {1, SliceB},
	{2, SliceA}, {2, SliceB},
	{3, SliceA}, {3, SliceB},
	{4, SliceA}, {4, SliceB},
	{5, SliceA}, {5, SliceB},
	{6, SliceA}, {6, SliceB},
	{7, SliceA}, {7, SliceB},

	{0, SliceA}, {0, SliceB},
	{1, SliceA}, {1, SliceB},
	{2, SliceA}, {2, SliceB},
	{3, SliceA}, {3, SliceB},
	{4, SliceA}, {4, SliceB},
	{5, SliceA}, {5, SliceB},
	{6, SliceA}, {6, SliceB},
}

// PWMBindingFor returns the channel/slice for pin.
func PWMBindingFor(pin Pin) (PWMBinding, error) {
	if int(pin) >= NumPins {
		return PWMBinding{}, ErrInvalidPin
	}
	return pwmBindings[pin], nil
}
