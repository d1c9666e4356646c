package core

// DebugWriter receives one line of debug output.
type DebugWriter func(string)

var (
	debugPrintln DebugWriter = func(string) {}

	// Off by default; the strip refresh is timing sensitive on some backends.
	debugEnabled bool

	debugChan chan string
)

// SetDebugWriter redirects debug output to UART, USB or a test buffer.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts a goroutine that drains DebugAsync messages.
// Call it after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go func() {
		for msg := range debugChan {
			if debugPrintln != nil {
				debugPrintln(msg)
			}
		}
	}()
}

// DebugPrintln writes msg if debug output is enabled.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues msg without blocking. Messages are dropped when the
// queue is full or InitAsyncDebug was never called.
func DebugAsync(msg string) {
	if debugChan == nil {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RegisterValue is one named register read back for a dump.
type RegisterValue struct {
	Name  string
	Value uint32
}

func (r RegisterValue) String() string {
	name := r.Name
	for len(name) < 8 {
		name += " "
	}
	return name + hex32(r.Value)
}

// Registers reads the TOP, CC and CSR registers of a PWM channel.
func (d *PWMDriver) Registers(channel uint8) ([]RegisterValue, error) {
	if int(channel) >= PWMChannels {
		return nil, ErrInvalidChannel
	}
	ch := &d.regs.Ch[channel]
	return []RegisterValue{
		{"TOP", ch.TOP.Get()},
		{"CC", ch.CC.Get()},
		{"CSR", ch.CSR.Get()},
	}, nil
}

// Registers reads the control and prescale registers of a port. SSPDR is
// left out: reading it pops the receive FIFO.
func (d *SPIDriver) Registers(sel SPISelector) ([]RegisterValue, error) {
	p, err := d.port(sel)
	if err != nil {
		return nil, err
	}
	return []RegisterValue{
		{"SSPCR0", p.CR0.Get()},
		{"SSPCR1", p.CR1.Get()},
		{"SSPSR", p.SR.Get()},
		{"SSPCPSR", p.CPSR.Get()},
	}, nil
}

// Registers reads the STATUS and CTRL registers of pin.
func (d *GPIODriver) Registers(pin Pin) ([]RegisterValue, error) {
	if int(pin) >= NumPins {
		return nil, ErrInvalidPin
	}
	r := &d.regs.Pin[pin]
	return []RegisterValue{
		{"STATUS", r.Status.Get()},
		{"CTRL", r.Ctrl.Get()},
	}, nil
}

// DumpRegisters writes a header and one line per register to the debug
// writer, whether or not debug output is enabled.
func DumpRegisters(header string, regs []RegisterValue) {
	if debugPrintln == nil {
		return
	}
	debugPrintln(header)
	for _, r := range regs {
		debugPrintln("    " + r.String())
	}
}
