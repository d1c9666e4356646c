package core

import "huepico/color"

// BlinkDelayMS is the on and off time of a marker blink.
const BlinkDelayMS = 250

const blinkCycles = 3

// Refresh runs one pass of the LED loop: it ticks the scene, shows the frame
// on the strip and mirrors the first pixel on the status LED.
func Refresh() (Frame, error) {
	s, err := currentScene()
	if err != nil {
		return Frame{}, err
	}
	f := s.Tick()
	if err := showFrame(MustStrip(), f); err != nil {
		return f, err
	}
	if len(f.Pixels) == 0 {
		return f, nil
	}
	if pins, ok := StatusLED(); ok {
		if err := MustPWM().SetRGB(pins, f.Pixels[0]); err != nil {
			return f, err
		}
	}
	if f.Marker {
		LogMessage(MarkerName(f.Hue) + ": " + hex24(uint32(f.Pixels[0])))
	}
	return f, nil
}

// showFrame pushes the frame with interrupts off. A stall longer than the
// latch time in the middle of a frame would latch a partial frame.
func showFrame(strip StripOutput, f Frame) error {
	irq := maskIRQ()
	defer unmaskIRQ(irq)
	return strip.Show(f.Pixels)
}

// BlinkStatusLED flashes c on the status LED: off then on, three times,
// sleeping BlinkDelayMS after each change.
func BlinkStatusLED(c color.RGB, sleep func(ms uint32)) error {
	pins, ok := StatusLED()
	if !ok {
		return ErrNoLEDPins
	}
	p := MustPWM()
	for i := 0; i < blinkCycles; i++ {
		for _, v := range []color.RGB{color.Black, c} {
			if err := p.SetRGB(pins, v); err != nil {
				return err
			}
			sleep(BlinkDelayMS)
		}
	}
	return nil
}
