package ws2812

// SymbolWriter transmits encoded symbols, blocking until the last word is queued.
type SymbolWriter interface {
	WriteSymbols(symbols []uint16) error
}

// Strip encodes frames into a reusable buffer and hands them to a SymbolWriter.
type Strip struct {
	w   SymbolWriter
	buf []uint16
}

// NewStrip returns a strip sized for count LEDs. Frames of another length
// resize the buffer on the next Show.
func NewStrip(w SymbolWriter, count int) *Strip {
	return &Strip{
		w:   w,
		buf: make([]uint16, BufferSize(count)),
	}
}

// Show encodes frame and writes it out.
func (s *Strip) Show(frame Frame) error {
	if want := BufferSize(len(frame)); len(s.buf) != want {
		s.buf = make([]uint16, want)
	}
	if err := EncodeInto(s.buf, frame); err != nil {
		return err
	}
	return s.w.WriteSymbols(s.buf)
}

// Buffer returns the symbols of the last frame shown.
func (s *Strip) Buffer() []uint16 {
	return s.buf
}
