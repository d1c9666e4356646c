// Package tinycompress writes zlib streams made of stored deflate blocks.
// It does no compression; it exists so firmware can hand zlib framing to
// hosts without pulling compress/flate into a TinyGo image.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const (
	// maxStored is the largest payload of one stored deflate block.
	maxStored = 0xFFFF

	zlibCMF = 0x78 // deflate, 32K window
	zlibFLG = 0x01 // no dictionary, fastest; (0x78<<8|0x01) % 31 == 0
)

var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written and emits the stream on Close.
type Writer struct {
	out    io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer whose stream goes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Grow pre-allocates room for n more bytes.
func (w *Writer) Grow(n int) {
	if cap(w.buf)-len(w.buf) < n {
		nb := make([]byte, len(w.buf), len(w.buf)+n)
		copy(nb, w.buf)
		w.buf = nb
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the zlib header, the stored blocks and the Adler-32 trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.out.Write(Compress(w.buf))
	return err
}

// Compress returns data wrapped in a zlib stream.
func Compress(data []byte) []byte {
	blocks := (len(data) + maxStored - 1) / maxStored
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, 2+5*blocks+len(data)+4)
	out = append(out, zlibCMF, zlibFLG)

	rest := data
	for {
		n := min(len(rest), maxStored)
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		l := uint16(n)
		out = append(out, final, byte(l), byte(l>>8), byte(^l), byte(^l>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}
