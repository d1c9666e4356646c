package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func inflate(t *testing.T, stream []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestCompressReadableByZlib(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte(`{"version":"huepico"}`)},
		{"exactly one block", bytes.Repeat([]byte{0xA5}, maxStored)},
		{"two blocks", bytes.Repeat([]byte("rgb"), 30000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := inflate(t, Compress(tc.data))
			if !bytes.Equal(got, tc.data) {
				t.Errorf("inflated %d bytes, want %d", len(got), len(tc.data))
			}
		})
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Grow(64)
	w.Write([]byte("set_pixel "))
	w.Write([]byte("index=%hu rgb=%u"))
	if buf.Len() != 0 {
		t.Errorf("Writer emitted %d bytes before Close", buf.Len())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := inflate(t, buf.Bytes()); string(got) != "set_pixel index=%hu rgb=%u" {
		t.Errorf("inflated %q", got)
	}
	if _, err := w.Write([]byte("x")); err != ErrClosed {
		t.Errorf("Write after Close: %v, want ErrClosed", err)
	}
}
