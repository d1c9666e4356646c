package protocol

import (
	"bytes"
	"errors"
	"testing"
)

type call struct {
	id   uint16
	args []uint32
}

// recorder decodes every command as a list of uint VLQ arguments.
type recorder struct {
	calls []call
	argc  map[uint16]int
	err   error
}

func (r *recorder) handle(id uint16, data *[]byte) error {
	c := call{id: id}
	for i := 0; i < r.argc[id]; i++ {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		c.args = append(c.args, v)
	}
	r.calls = append(r.calls, c)
	return r.err
}

func hostBlock(t *testing.T, seq uint8, id uint16, args ...uint32) []byte {
	t.Helper()
	b, err := AppendBlock(nil, seq, EncodeCommand(id, func(out OutputBuffer) {
		for _, a := range args {
			EncodeVLQUint(out, a)
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func acks(t *testing.T, out []byte) []uint8 {
	t.Helper()
	var seqs []uint8
	for len(out) > 0 {
		blk, n, err := ParseBlock(out)
		if err != nil {
			t.Fatalf("device output not framed: % X (%v)", out, err)
		}
		if blk.IsAck() {
			seqs = append(seqs, blk.Seq)
		}
		out = out[n:]
	}
	return seqs
}

func TestTransportDispatchesInOrder(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 1, 3: 2}}
	out := NewScratchOutput()
	tr := NewTransport(out, rec.handle)

	data := append(hostBlock(t, 0x10, 2, 5), hostBlock(t, 0x11, 3, 7, 300)...)
	in := NewSliceInputBuffer(data)
	tr.Receive(in)

	if in.Available() != 0 {
		t.Errorf("%d bytes left unconsumed", in.Available())
	}
	want := []call{{2, []uint32{5}}, {3, []uint32{7, 300}}}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i].id != want[i].id || len(rec.calls[i].args) != len(want[i].args) {
			t.Errorf("call %d = %+v, want %+v", i, rec.calls[i], want[i])
		}
	}
	if got := acks(t, out.Result()); !bytes.Equal(got, []uint8{0x11, 0x12}) {
		t.Errorf("acks = % X, want 11 12", got)
	}
}

func TestTransportPartialBlock(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 1}}
	out := NewScratchOutput()
	tr := NewTransport(out, rec.handle)

	blk := hostBlock(t, 0x10, 2, 9)
	fifo := NewFifoBuffer(128)
	fifo.Write(blk[:3])
	tr.Receive(fifo)
	if len(rec.calls) != 0 || fifo.Available() != 3 {
		t.Fatalf("partial block: calls=%d buffered=%d", len(rec.calls), fifo.Available())
	}
	fifo.Write(blk[3:])
	tr.Receive(fifo)
	if len(rec.calls) != 1 || !fifo.IsEmpty() {
		t.Errorf("completed block: calls=%d buffered=%d", len(rec.calls), fifo.Available())
	}
}

func TestTransportStaleSequenceIsNaked(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 1}}
	out := NewScratchOutput()
	tr := NewTransport(out, rec.handle)

	tr.Receive(NewSliceInputBuffer(hostBlock(t, 0x10, 2, 1)))
	tr.Receive(NewSliceInputBuffer(hostBlock(t, 0x15, 2, 2)))

	if len(rec.calls) != 1 {
		t.Errorf("out-of-sequence block was dispatched")
	}
	if got := acks(t, out.Result()); !bytes.Equal(got, []uint8{0x11, 0x11}) {
		t.Errorf("acks = % X, want 11 11", got)
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 1}}
	out := NewScratchOutput()
	tr := NewTransport(out, rec.handle)

	bad := hostBlock(t, 0x10, 2, 1)
	bad[len(bad)-2] ^= 0xFF // break the CRC, keep the sync byte
	data := append(bad, hostBlock(t, 0x10, 2, 4)...)
	tr.Receive(NewSliceInputBuffer(data))

	if len(rec.calls) != 1 || rec.calls[0].args[0] != 4 {
		t.Fatalf("calls = %+v, want one call with arg 4", rec.calls)
	}
	if tr.NextSequence() != 0x11 {
		t.Errorf("next sequence = 0x%02X, want 0x11", tr.NextSequence())
	}
}

func TestTransportHostRestart(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 1}}
	tr := NewTransport(NewScratchOutput(), rec.handle)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(hostBlock(t, 0x10, 2, 1)))
	tr.Receive(NewSliceInputBuffer(hostBlock(t, 0x11, 2, 2)))
	tr.Receive(NewSliceInputBuffer(hostBlock(t, 0x10, 2, 3)))

	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	if len(rec.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(rec.calls))
	}
}

func TestTransportHandlerErrorStopsBlock(t *testing.T) {
	rec := &recorder{argc: map[uint16]int{2: 0}, err: errors.New("boom")}
	tr := NewTransport(NewScratchOutput(), rec.handle)

	payload := append(EncodeCommand(2, nil), EncodeCommand(2, nil)...)
	blk, _ := AppendBlock(nil, 0x10, payload)
	tr.Receive(NewSliceInputBuffer(blk))

	if len(rec.calls) != 1 {
		t.Errorf("calls = %d, want 1 (rest of block dropped)", len(rec.calls))
	}
	if tr.NextSequence() != 0x11 {
		t.Errorf("block not acknowledged")
	}
}

func TestTransportSendCommand(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	flushes := 0
	tr.SetFlushCallback(func() { flushes++ })

	tr.SendCommand(9, func(o OutputBuffer) { EncodeVLQUint(o, 42) })
	blk, n, err := ParseBlock(out.Result())
	if err != nil || n != out.CurPosition() {
		t.Fatalf("response not framed: %v", err)
	}
	m := Message{Seq: blk.Seq, Payload: blk.Payload}
	id, args, err := m.Command()
	if err != nil || id != 9 {
		t.Fatalf("id = %d, %v", id, err)
	}
	if v, _ := DecodeVLQUint(&args); v != 42 {
		t.Errorf("arg = %d, want 42", v)
	}
	if flushes != 0 {
		t.Errorf("responses must not trigger the ACK flush")
	}
}
