// Package device talks to the LED controller firmware over its framed serial
// protocol.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"huepico/host/serial"
	"huepico/protocol"
)

// Ids fixed before the dictionary is known.
const (
	identifyResponseID uint16 = 0
	identifyID         uint16 = 1
)

const (
	// DefaultChunkSize is the number of dictionary bytes requested per identify.
	DefaultChunkSize = 40

	// DefaultTimeout bounds each wait for a response.
	DefaultTimeout = time.Second

	maxDictionarySize = 64 * 1024
)

var (
	ErrNoDictionary = errors.New("dictionary not loaded")
	ErrNoResponse   = errors.New("device sent no response")
)

// Response is a decoded response block.
type Response struct {
	Name string
	Args []any
}

// Device is a connected controller.
type Device struct {
	tr  *protocol.HostTransport
	log *zap.SugaredLogger

	// Timeout bounds each wait for a response.
	Timeout time.Duration
	// ChunkSize is the identify request size.
	ChunkSize uint8

	reqMu sync.Mutex // one request/response exchange at a time

	mu      sync.RWMutex
	dict    *Dictionary
	rawDict []byte
	onLog   []func(string)
}

// Open opens the serial device and wraps it.
func Open(cfg *serial.Config, log *zap.SugaredLogger) (*Device, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, log), nil
}

// New starts the protocol on port. Call Identify before anything else.
func New(port io.ReadWriteCloser, log *zap.SugaredLogger) *Device {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Device{
		tr:        protocol.NewHostTransport(port),
		log:       log,
		Timeout:   DefaultTimeout,
		ChunkSize: DefaultChunkSize,
	}
	d.tr.SetResponseHandler(d.handleResponse)
	return d
}

// Close stops the reader and closes the port.
func (d *Device) Close() error {
	return d.tr.Close()
}

// Done is closed when the link drops.
func (d *Device) Done() <-chan struct{} {
	return d.tr.Done()
}

// OnLog registers fn for every log message the firmware sends. fn runs on
// the reader goroutine and must not block.
func (d *Device) OnLog(fn func(msg string)) {
	d.mu.Lock()
	d.onLog = append(d.onLog, fn)
	d.mu.Unlock()
}

// Dictionary returns the dictionary loaded by Identify, or nil.
func (d *Device) Dictionary() *Dictionary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dict
}

// RawDictionary returns the dictionary bytes as received.
func (d *Device) RawDictionary() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rawDict
}

// Identify downloads and parses the dictionary.
func (d *Device) Identify(ctx context.Context) (*Dictionary, error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	var data []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := d.identifyChunk(uint32(len(data)))
		if err != nil {
			return nil, fmt.Errorf("dictionary chunk at %d: %w", len(data), err)
		}
		data = append(data, chunk...)
		if len(chunk) < int(d.ChunkSize) {
			break
		}
		if len(data) > maxDictionarySize {
			return nil, fmt.Errorf("dictionary larger than %d bytes", maxDictionarySize)
		}
	}
	d.log.Debugw("dictionary received", "bytes", len(data))

	dict, err := ParseDictionary(data)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dict = dict
	d.rawDict = data
	d.mu.Unlock()
	d.log.Infow("identified", "version", dict.Version, "build", dict.BuildVersions,
		"commands", len(dict.commands), "responses", len(dict.responses))
	return dict, nil
}

func (d *Device) identifyChunk(offset uint32) ([]byte, error) {
	d.drain()
	err := d.tr.SendCommand(identifyID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, uint32(d.ChunkSize))
	})
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(d.Timeout)
	for {
		m, err := d.tr.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		id, args, err := m.Command()
		if err != nil || id != identifyResponseID {
			continue
		}
		got, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return nil, err
		}
		if got != offset {
			return nil, fmt.Errorf("offset mismatch: asked %d, got %d", offset, got)
		}
		return protocol.DecodeVLQBytes(&args)
	}
}

// Send runs a command that has no response.
func (d *Device) Send(name string, args ...any) error {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()
	d.drain()
	return d.send(name, args)
}

// Request runs a command and waits for the named response.
func (d *Device) Request(name string, args []any, response string) (*Response, error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	dict, err := d.dictionary()
	if err != nil {
		return nil, err
	}
	want, ok := dict.Response(response)
	if !ok {
		return nil, fmt.Errorf("unknown response %q", response)
	}

	d.drain()
	if err := d.send(name, args); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(d.Timeout)
	for {
		m, err := d.tr.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", name, ErrNoResponse, err)
		}
		id, data, err := m.Command()
		if err != nil || id != want.ID {
			continue
		}
		vals, err := want.Decode(data)
		if err != nil {
			return nil, err
		}
		return &Response{Name: want.Name, Args: vals}, nil
	}
}

// Collect runs a command and returns every log line it produced. The
// firmware answers a block only after running it, so everything it sent
// is queued once the ACK is in.
func (d *Device) Collect(name string, args ...any) ([]string, error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()
	d.drain()
	if err := d.send(name, args); err != nil {
		return nil, err
	}
	var lines []string
	for _, r := range d.drain() {
		if r.Name == "log" && len(r.Args) == 1 {
			lines = append(lines, string(r.Args[0].([]byte)))
		}
	}
	return lines, nil
}

func (d *Device) send(name string, args []any) error {
	dict, err := d.dictionary()
	if err != nil {
		return err
	}
	cmd, ok := dict.Command(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if len(args) != len(cmd.Params) {
		return fmt.Errorf("%s takes %d arguments, got %d", name, len(cmd.Params), len(args))
	}
	var encErr error
	err = d.tr.SendCommandTimeout(cmd.ID, func(out protocol.OutputBuffer) {
		for i, a := range args {
			if err := encodeArg(out, cmd.Params[i], a); err != nil && encErr == nil {
				encErr = fmt.Errorf("%s.%s: %w", name, cmd.Params[i].Name, err)
			}
		}
	}, d.ackTimeout())
	if encErr != nil {
		return encErr
	}
	var seqErr *protocol.SequenceError
	if errors.As(err, &seqErr) {
		// The transport has adopted the device's sequence; one retry.
		d.log.Debugw("resending after NAK", "command", name, "expected", seqErr.Expected)
		return d.tr.SendCommandTimeout(cmd.ID, func(out protocol.OutputBuffer) {
			for i, a := range args {
				_ = encodeArg(out, cmd.Params[i], a)
			}
		}, d.ackTimeout())
	}
	return err
}

func (d *Device) ackTimeout() time.Duration {
	if d.Timeout > protocol.DefaultAckTimeout {
		return d.Timeout
	}
	return protocol.DefaultAckTimeout
}

func encodeArg(out protocol.OutputBuffer, p Param, a any) error {
	switch p.Kind() {
	case KindBytes:
		switch v := a.(type) {
		case string:
			protocol.EncodeVLQString(out, v)
		case []byte:
			protocol.EncodeVLQBytes(out, v)
		default:
			return fmt.Errorf("want string, got %T", a)
		}
		return nil
	case KindInt:
		v, ok := toInt64(a)
		if !ok {
			return fmt.Errorf("want integer, got %T", a)
		}
		protocol.EncodeVLQInt(out, int32(v))
		return nil
	}
	v, ok := toInt64(a)
	if !ok {
		return fmt.Errorf("want integer, got %T", a)
	}
	if v < 0 {
		return fmt.Errorf("negative value %d", v)
	}
	protocol.EncodeVLQUint(out, uint32(v))
	return nil
}

func toInt64(a any) (int64, bool) {
	switch v := a.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (d *Device) dictionary() (*Dictionary, error) {
	dict := d.Dictionary()
	if dict == nil {
		return nil, ErrNoDictionary
	}
	return dict, nil
}

// drain empties the response queue and returns what was in it.
func (d *Device) drain() []*Response {
	dict := d.Dictionary()
	var out []*Response
	for {
		select {
		case m := <-d.tr.Responses():
			if dict == nil {
				continue
			}
			if r, err := decodeResponse(dict, m); err == nil {
				out = append(out, r)
			}
		default:
			return out
		}
	}
}

func decodeResponse(dict *Dictionary, m *protocol.Message) (*Response, error) {
	id, data, err := m.Command()
	if err != nil {
		return nil, err
	}
	f, ok := dict.ByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown response id %d", id)
	}
	args, err := f.Decode(data)
	if err != nil {
		return nil, err
	}
	return &Response{Name: f.Name, Args: args}, nil
}

// handleResponse runs on the reader goroutine for every response.
func (d *Device) handleResponse(id uint16, data *[]byte) {
	d.mu.RLock()
	dict := d.dict
	hooks := d.onLog
	d.mu.RUnlock()
	if dict == nil {
		return
	}
	f, ok := dict.ByID(id)
	if !ok || f.Name != "log" {
		return
	}
	args, err := f.Decode(*data)
	if err != nil || len(args) != 1 {
		return
	}
	msg := string(args[0].([]byte))
	d.log.Debugw("device log", "msg", msg)
	for _, fn := range hooks {
		fn(msg)
	}
}
