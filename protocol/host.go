package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the device.
const DefaultAckTimeout = 2 * time.Second

var ErrClosed = errors.New("transport closed")

// SequenceError is a NAK: the device discarded the block because it expected
// a different sequence. The transport adopts Expected for the next command.
type SequenceError struct {
	Sent, Expected uint8
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("device rejected block 0x%02x, expects 0x%02x", e.Sent, e.Expected)
}

// ResponseHandler sees every response block as it arrives.
type ResponseHandler func(id uint16, data *[]byte)

// Message is a response block received from the device.
type Message struct {
	Seq     uint8
	Payload []byte
}

// Command splits the payload into its command id and argument bytes.
func (m *Message) Command() (uint16, []byte, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	return uint16(id), data, err
}

// HostTransport is the host end of the link. A background goroutine reads
// the port, routing ACKs to SendCommand and responses to ReceiveResponse.
type HostTransport struct {
	port io.ReadWriteCloser

	mu  sync.Mutex // serialises commands
	seq uint8

	handlerMu sync.RWMutex
	handler   ResponseHandler

	acks      chan uint8
	responses chan *Message
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       DestBit,
		acks:      make(chan uint8, 1),
		responses: make(chan *Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command block and waits for its ACK.
func (t *HostTransport) SendCommand(id uint16, args func(OutputBuffer)) error {
	return t.SendCommandTimeout(id, args, DefaultAckTimeout)
}

func (t *HostTransport) SendCommandTimeout(id uint16, args func(OutputBuffer), timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	blk, err := AppendBlock(nil, t.seq, EncodeCommand(id, args))
	if err != nil {
		return err
	}
	// Drop any ACK left over from a previous timeout.
	select {
	case <-t.acks:
	default:
	}
	if _, err := t.port.Write(blk); err != nil {
		return fmt.Errorf("write block: %w", err)
	}

	want := NextSeq(t.seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case got := <-t.acks:
			if got != want {
				sent := t.seq
				t.seq = got
				return &SequenceError{Sent: sent, Expected: got}
			}
			t.seq = want
			return nil
		case <-timer.C:
			return fmt.Errorf("no ACK for block 0x%02x after %v", t.seq, timeout)
		case <-t.done:
			return t.closedErr()
		}
	}
}

// ReceiveResponse waits for the next response block.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.responses:
		return m, nil
	case <-timer.C:
		return nil, fmt.Errorf("no response after %v", timeout)
	case <-t.done:
		return nil, t.closedErr()
	}
}

// Responses exposes the response queue for callers that select on it.
func (t *HostTransport) Responses() <-chan *Message { return t.responses }

// Done is closed when the read loop exits.
func (t *HostTransport) Done() <-chan struct{} { return t.done }

func (t *HostTransport) SetResponseHandler(h ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// Sequence returns the sequence of the next command block.
func (t *HostTransport) Sequence() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Reset restarts the sequence. The device treats a block with the initial
// sequence as a host restart.
func (t *HostTransport) Reset() {
	t.mu.Lock()
	t.seq = DestBit
	t.mu.Unlock()
	for {
		select {
		case <-t.responses:
		default:
			return
		}
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) closedErr() error {
	if t.readErr != nil && !errors.Is(t.readErr, io.EOF) {
		return t.readErr
	}
	return ErrClosed
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	fifo := NewFifoBuffer(4 * BlockMax)
	buf := make([]byte, BlockMax)
	synced := true
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if err != nil {
			t.readErr = err
			return
		}
		for rest := buf[:n]; len(rest) > 0; {
			w := fifo.Write(rest)
			rest = rest[w:]
			synced = t.drain(fifo, synced)
			if w == 0 {
				// Full of garbage with no block boundary.
				fifo.Reset()
				synced = false
			}
		}
	}
}

func (t *HostTransport) drain(fifo *FifoBuffer, synced bool) bool {
	data := fifo.Data()
	for len(data) > 0 {
		if !synced {
			i := Resync(data)
			synced = i > 0 && data[i-1] == SyncByte
			data = data[i:]
			continue
		}
		if data[0] == SyncByte {
			data = data[1:]
			continue
		}
		blk, n, err := ParseBlock(data)
		if errors.Is(err, ErrNeedMore) {
			break
		}
		if err != nil {
			synced = false
			continue
		}
		data = data[n:]
		t.dispatch(blk)
	}
	fifo.Pop(fifo.Available() - len(data))
	return synced
}

func (t *HostTransport) dispatch(blk Block) {
	if blk.IsAck() {
		select {
		case t.acks <- blk.Seq:
		default:
			// Keep the newest ACK.
			select {
			case <-t.acks:
			default:
			}
			t.acks <- blk.Seq
		}
		return
	}

	m := &Message{Seq: blk.Seq, Payload: append([]byte(nil), blk.Payload...)}
	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()
	if h != nil {
		if id, args, err := m.Command(); err == nil {
			h(id, &args)
		}
	}

	select {
	case t.responses <- m:
	default:
		// Queue full: drop the oldest response.
		select {
		case <-t.responses:
		default:
		}
		t.responses <- m
	}
}
