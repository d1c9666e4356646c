package core

import (
	"errors"
	"sync"

	"huepico/color"
	"huepico/ws2812"
)

// SceneMode selects what the main loop draws on the strip.
type SceneMode uint8

const (
	// SceneRainbow spreads the hue circle over the strip and rotates it.
	SceneRainbow SceneMode = iota
	// SceneStatic shows pixels set by the host.
	SceneStatic
)

func (m SceneMode) String() string {
	switch m {
	case SceneRainbow:
		return "rainbow"
	case SceneStatic:
		return "static"
	}
	return "scene(" + utoa(uint32(m)) + ")"
}

const (
	DefaultHueStep = 1
	hueCircle      = 360
)

var (
	ErrInvalidScene = errors.New("invalid scene mode")
	ErrPixelRange   = errors.New("pixel index out of range")
)

// Frame is the output of one Scene tick.
type Frame struct {
	Pixels ws2812.Frame
	// Hue is the start hue the rainbow was drawn from.
	Hue uint16
	// Marker is set when the rainbow starts at red, green or blue.
	Marker bool
}

// Scene holds the LED pattern. It is shared by the main loop and the
// command handlers.
type Scene struct {
	mu     sync.Mutex
	mode   SceneMode
	step   uint16
	start  uint16
	paused bool
	pixels ws2812.Frame
}

// NewScene returns a rainbow scene for count LEDs.
func NewScene(count int) *Scene {
	return &Scene{
		mode:   SceneRainbow,
		step:   DefaultHueStep,
		pixels: make(ws2812.Frame, count),
	}
}

func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pixels)
}

// SetMode switches the pattern. Steps wrap modulo 360; a step that wraps to
// zero, including zero itself, becomes DefaultHueStep.
func (s *Scene) SetMode(mode SceneMode, step uint16) error {
	if mode != SceneRainbow && mode != SceneStatic {
		return ErrInvalidScene
	}
	step %= hueCircle
	if step == 0 {
		step = DefaultHueStep
	}
	s.mu.Lock()
	s.mode = mode
	s.step = step
	s.mu.Unlock()
	return nil
}

func (s *Scene) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// SetPixel stores c at index and switches to the static scene.
func (s *Scene) SetPixel(index int, c color.RGB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.pixels) {
		return ErrPixelRange
	}
	s.pixels[index] = c
	s.mode = SceneStatic
	return nil
}

// Fill sets every pixel to c and switches to the static scene.
func (s *Scene) Fill(c color.RGB) {
	s.mu.Lock()
	for i := range s.pixels {
		s.pixels[i] = c
	}
	s.mode = SceneStatic
	s.mu.Unlock()
}

// SceneStatus is a snapshot for the status response.
type SceneStatus struct {
	Mode   SceneMode
	Step   uint16
	Hue    uint16
	Paused bool
	LEDs   int
	First  color.RGB
}

func (s *Scene) Status() SceneStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SceneStatus{
		Mode:   s.mode,
		Step:   s.step,
		Hue:    s.start,
		Paused: s.paused,
		LEDs:   len(s.pixels),
	}
	if len(s.pixels) > 0 {
		st.First = s.pixels[0]
	}
	return st
}

// Tick draws the current frame and, unless paused, advances the rainbow by
// one step. The returned pixels are a copy.
func (s *Scene) Tick() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := Frame{Hue: s.start}
	if s.mode == SceneRainbow {
		rainbow(s.pixels, s.start)
		f.Marker = !s.paused && s.start%120 == 0
		if !s.paused {
			s.start = (s.start + s.step) % hueCircle
		}
	}
	f.Pixels = append(ws2812.Frame(nil), s.pixels...)
	return f
}

// rainbow gives LED i the hue start + i*(360/N), fully saturated at half
// lightness.
func rainbow(dst ws2812.Frame, start uint16) {
	if len(dst) == 0 {
		return
	}
	spread := hueCircle / len(dst)
	for i := range dst {
		hue := (int(start) + i*spread) % hueCircle
		dst[i] = color.HSLToRGB(float32(hue), 1, 0.5)
	}
}

// MarkerName names the primary a rainbow marker frame starts on.
func MarkerName(hue uint16) string {
	switch hue {
	case 0:
		return "Red"
	case 120:
		return "Green"
	case 240:
		return "Blue"
	}
	return "Hue " + utoa(uint32(hue))
}
