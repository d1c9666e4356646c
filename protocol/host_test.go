package protocol

import (
	"errors"
	"net"
	"testing"
	"time"
)

// fakeDevice runs a device Transport on one end of a pipe. Command 1 echoes
// its argument back as command 100.
func fakeDevice(t *testing.T, conn net.Conn) {
	t.Helper()
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		if id != 1 {
			return errors.New("unknown command")
		}
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(100, func(o OutputBuffer) { EncodeVLQUint(o, v) })
		return nil
	})

	go func() {
		fifo := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			tr.Receive(fifo)
			if out.CurPosition() > 0 {
				if _, err := conn.Write(out.Result()); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()
}

func newPipe(t *testing.T) *HostTransport {
	host, dev := net.Pipe()
	fakeDevice(t, dev)
	ht := NewHostTransport(host)
	t.Cleanup(func() {
		ht.Close()
		dev.Close()
	})
	return ht
}

func TestHostTransportRoundTrip(t *testing.T) {
	ht := newPipe(t)

	for i, v := range []uint32{5, 300, 70000} {
		err := ht.SendCommand(1, func(o OutputBuffer) { EncodeVLQUint(o, v) })
		if err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
		m, err := ht.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d: %v", i, err)
		}
		id, args, err := m.Command()
		if err != nil || id != 100 {
			t.Fatalf("response id = %d, %v", id, err)
		}
		if got, _ := DecodeVLQUint(&args); got != v {
			t.Errorf("echo = %d, want %d", got, v)
		}
	}
	if got := ht.Sequence(); got != 0x13 {
		t.Errorf("sequence = 0x%02X, want 0x13", got)
	}
}

func TestHostTransportResponseHandler(t *testing.T) {
	ht := newPipe(t)
	seen := make(chan uint16, 1)
	ht.SetResponseHandler(func(id uint16, data *[]byte) { seen <- id })

	if err := ht.SendCommand(1, func(o OutputBuffer) { EncodeVLQUint(o, 1) }); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-seen:
		if id != 100 {
			t.Errorf("handler saw id %d, want 100", id)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	host, dev := net.Pipe()
	ht := NewHostTransport(host)
	defer ht.Close()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := dev.Read(buf); err != nil {
				return
			}
		}
	}()
	defer dev.Close()

	err := ht.SendCommandTimeout(1, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if ht.Sequence() != DestBit {
		t.Errorf("sequence advanced without an ACK")
	}
}

func TestHostTransportNak(t *testing.T) {
	host, dev := net.Pipe()
	ht := NewHostTransport(host)
	defer ht.Close()
	defer dev.Close()
	go func() {
		buf := make([]byte, 64)
		if _, err := dev.Read(buf); err != nil {
			return
		}
		nak, _ := AppendBlock(nil, 0x14, nil)
		dev.Write(nak)
	}()

	err := ht.SendCommand(1, nil)
	var seqErr *SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("err = %v, want *SequenceError", err)
	}
	if seqErr.Expected != 0x14 || ht.Sequence() != 0x14 {
		t.Errorf("expected = 0x%02X, sequence = 0x%02X, want 0x14", seqErr.Expected, ht.Sequence())
	}
}

func TestHostTransportClose(t *testing.T) {
	host, dev := net.Pipe()
	defer dev.Close()
	ht := NewHostTransport(host)
	if err := ht.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ht.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := ht.ReceiveResponse(time.Second); err == nil {
		t.Error("ReceiveResponse after Close succeeded")
	}
}
