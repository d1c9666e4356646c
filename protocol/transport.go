package protocol

// CommandHandler runs one decoded command. It must consume its arguments
// from data.
type CommandHandler func(id uint16, data *[]byte) error

// Transport is the firmware end of the link. It parses host blocks, runs
// their commands in order and answers each block with an ACK naming the
// next expected sequence.
//
// Receive is meant to be called from a single loop; Transport does no locking.
type Transport struct {
	output  OutputBuffer
	handler CommandHandler

	synced  bool
	nextSeq uint8

	onReset func()
	onFlush func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		output:  output,
		handler: handler,
		synced:  true,
		nextSeq: DestBit,
	}
}

// Receive consumes every complete block in input.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for len(data) > 0 {
		if !t.synced {
			i := Resync(data)
			found := i > 0 && data[i-1] == SyncByte
			data = data[i:]
			if found {
				t.synced = true
				t.ack()
			}
			continue
		}
		if data[0] == SyncByte {
			data = data[1:]
			continue
		}
		blk, n, err := ParseBlock(data)
		if err == ErrNeedMore {
			break
		}
		if err != nil {
			t.synced = false
			continue
		}
		data = data[n:]

		if blk.Seq == DestBit && t.nextSeq != DestBit {
			t.nextSeq = DestBit
			if t.onReset != nil {
				t.onReset()
			}
		}
		if blk.Seq == t.nextSeq {
			t.nextSeq = NextSeq(blk.Seq)
			t.dispatch(blk.Payload)
		}
		// A stale sequence still gets an answer; it doubles as a NAK.
		t.ack()
	}
	input.Pop(input.Available() - len(data))
}

func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if recover() != nil {
			t.synced = false
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced = false
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			return
		}
	}
}

func (t *Transport) ack() {
	WriteBlock(t.output, t.nextSeq, nil)
	if t.onFlush != nil {
		t.onFlush()
	}
}

// SendCommand frames one outgoing response.
func (t *Transport) SendCommand(id uint16, args func(OutputBuffer)) {
	WriteBlock(t.output, t.nextSeq, func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(id))
		if args != nil {
			args(out)
		}
	})
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.synced = true
	t.nextSeq = DestBit
	if t.onReset != nil {
		t.onReset()
	}
}

// NextSequence returns the sequence the transport expects next.
func (t *Transport) NextSequence() uint8 { return t.nextSeq }

// SetResetCallback registers fn to run when the host restarts its sequence.
func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetFlushCallback registers fn to push ACKs out as soon as they are written.
func (t *Transport) SetFlushCallback(fn func()) { t.onFlush = fn }
