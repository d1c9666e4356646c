package core

import (
	"errors"
	"sync/atomic"

	"huepico/color"
	"huepico/protocol"
)

var (
	ErrNoScene   = errors.New("scene not configured")
	ErrNoSPI     = errors.New("SPI bus not configured")
	ErrDumpKind  = errors.New("unknown register dump kind")
	ErrPercent   = errors.New("permille above 1000")
	ErrNoLEDPins = errors.New("status LED not configured")
)

// Register dump kinds for dump_registers.
const (
	DumpPWM uint8 = iota
	DumpSPI
	DumpGPIO
)

// InitCoreCommands registers every command and response. identify_response
// and identify must stay at ids 0 and 1: hosts use them before they have a
// dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%.*s")
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_status", "", handleGetStatus)
	RegisterCommand("set_pixel", "index=%hu rgb=%u", handleSetPixel)
	RegisterCommand("set_pixel_hsl", "index=%hu hue=%hu sat=%hu light=%hu", handleSetPixelHSL)
	RegisterCommand("fill", "rgb=%u", handleFill)
	RegisterCommand("set_scene", "mode=%c step=%hu", handleSetScene)
	RegisterCommand("pause_scene", "paused=%c", handlePauseScene)
	RegisterCommand("set_pwm", "pin=%c value=%hu", handleSetPWM)
	RegisterCommand("set_pwm_percent", "pin=%c permille=%hu", handleSetPWMPercent)
	RegisterCommand("set_status_led", "rgb=%u", handleSetStatusLED)
	RegisterCommand("get_pwm", "pin=%c", handleGetPWM)
	RegisterCommand("set_pin", "pin=%c mode=%c", handleSetPin)
	RegisterCommand("set_spi_divider", "bus=%c prescale=%c postdiv=%c", handleSetSPIDivider)
	RegisterCommand("dump_registers", "kind=%c index=%c", handleDumpRegisters)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("status", "ticks=%u uptime=%u scene=%c step=%hu hue=%hu paused=%c leds=%hu rgb=%u")
	RegisterResponse("pwm_state", "pin=%c top=%hu compare=%hu running=%c")
	RegisterResponse("log", "msg=%s")

	RegisterEnumeration("scene", []string{"rainbow", "static"})
	RegisterEnumeration("pin_mode", []string{"low", "high", "pwm"})
	RegisterEnumeration("dump_kind", []string{"pwm", "spi", "gpio"})
	RegisterConstant("PWM_TOP", DefaultTop)
	RegisterConstant("TICK_MS", TickPeriodMS)
}

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

func SetGlobalTransport(t *protocol.Transport) {
	globalTransport = t
}

// SendResponse encodes a registered response through the global transport.
// It is a no-op until a transport is set.
func SendResponse(name string, args func(out protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// LogMessage sends msg to the host as a log response and to the debug writer.
func LogMessage(msg string) {
	DebugPrintln(msg)
	SendResponse("log", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQString(out, msg)
	})
}

var scene *Scene

// SetScene installs the scene the LED commands act on.
func SetScene(s *Scene) {
	scene = s
}

func currentScene() (*Scene, error) {
	if scene == nil {
		return nil, ErrNoScene
	}
	return scene, nil
}

// decodeArgs reads len(dst) unsigned VLQ arguments.
func decodeArgs(data *[]byte, dst ...*uint32) error {
	for _, p := range dst {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

func handleIdentify(data *[]byte) error {
	var offset, count uint32
	if err := decodeArgs(data, &offset, &count); err != nil {
		return err
	}
	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func handleGetStatus(data *[]byte) error {
	s, err := currentScene()
	if err != nil {
		return err
	}
	st := s.Status()
	SendResponse("status", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, Ticks())
		protocol.EncodeVLQUint(out, uint32(UptimeMS()))
		protocol.EncodeVLQUint(out, uint32(st.Mode))
		protocol.EncodeVLQUint(out, uint32(st.Step))
		protocol.EncodeVLQUint(out, uint32(st.Hue))
		protocol.EncodeVLQUint(out, boolArg(st.Paused))
		protocol.EncodeVLQUint(out, uint32(st.LEDs))
		protocol.EncodeVLQUint(out, uint32(st.First))
	})
	return nil
}

func handleSetPixel(data *[]byte) error {
	var index, rgb uint32
	if err := decodeArgs(data, &index, &rgb); err != nil {
		return err
	}
	s, err := currentScene()
	if err != nil {
		return err
	}
	return s.SetPixel(int(index), color.RGB(rgb&0xFFFFFF))
}

// handleSetPixelHSL takes hue in tenths of a degree and saturation and
// lightness in thousandths.
func handleSetPixelHSL(data *[]byte) error {
	var index, hue, sat, light uint32
	if err := decodeArgs(data, &index, &hue, &sat, &light); err != nil {
		return err
	}
	s, err := currentScene()
	if err != nil {
		return err
	}
	c := color.HSLToRGB(float32(hue)/10, float32(sat)/1000, float32(light)/1000)
	return s.SetPixel(int(index), c)
}

func handleFill(data *[]byte) error {
	var rgb uint32
	if err := decodeArgs(data, &rgb); err != nil {
		return err
	}
	s, err := currentScene()
	if err != nil {
		return err
	}
	s.Fill(color.RGB(rgb & 0xFFFFFF))
	return nil
}

func handleSetScene(data *[]byte) error {
	var mode, step uint32
	if err := decodeArgs(data, &mode, &step); err != nil {
		return err
	}
	s, err := currentScene()
	if err != nil {
		return err
	}
	return s.SetMode(SceneMode(mode), uint16(step))
}

func handlePauseScene(data *[]byte) error {
	var paused uint32
	if err := decodeArgs(data, &paused); err != nil {
		return err
	}
	s, err := currentScene()
	if err != nil {
		return err
	}
	s.SetPaused(paused != 0)
	return nil
}

func handleSetPWM(data *[]byte) error {
	var pin, value uint32
	if err := decodeArgs(data, &pin, &value); err != nil {
		return err
	}
	return withStartedPWM(pin, func(p PWMOutput, pin Pin) error {
		return p.SetValue(pin, uint16(value))
	})
}

func handleSetPWMPercent(data *[]byte) error {
	var pin, permille uint32
	if err := decodeArgs(data, &pin, &permille); err != nil {
		return err
	}
	if permille > 1000 {
		return ErrPercent
	}
	return withStartedPWM(pin, func(p PWMOutput, pin Pin) error {
		return p.SetValuePercent(pin, float32(permille)/1000)
	})
}

// withStartedPWM starts the pin's channel on first use, then runs fn.
func withStartedPWM(v uint32, fn func(PWMOutput, Pin) error) error {
	pin, err := pinArg(v)
	if err != nil {
		return err
	}
	p := MustPWM()
	if !p.Running(pin) {
		if err := p.Start(pin); err != nil {
			return err
		}
	}
	return fn(p, pin)
}

func handleSetStatusLED(data *[]byte) error {
	var rgb uint32
	if err := decodeArgs(data, &rgb); err != nil {
		return err
	}
	pins, ok := StatusLED()
	if !ok {
		return ErrNoLEDPins
	}
	return MustPWM().SetRGB(pins, color.RGB(rgb&0xFFFFFF))
}

func handleGetPWM(data *[]byte) error {
	var v uint32
	if err := decodeArgs(data, &v); err != nil {
		return err
	}
	pin, err := pinArg(v)
	if err != nil {
		return err
	}
	p := MustPWM()
	cfg, err := p.Config(pin)
	if err != nil {
		return err
	}
	running := p.Running(pin)
	SendResponse("pwm_state", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(pin))
		protocol.EncodeVLQUint(out, uint32(cfg.Top))
		protocol.EncodeVLQUint(out, uint32(cfg.Compare))
		protocol.EncodeVLQUint(out, boolArg(running))
	})
	return nil
}

func handleSetPin(data *[]byte) error {
	var v, mode uint32
	if err := decodeArgs(data, &v, &mode); err != nil {
		return err
	}
	pin, err := pinArg(v)
	if err != nil {
		return err
	}
	if mode > uint32(ModePWM) {
		return ErrInvalidMode
	}
	return MustPinMux().SetPin(pin, PinMode(mode))
}

func handleSetSPIDivider(data *[]byte) error {
	var bus, prescale, postdiv uint32
	if err := decodeArgs(data, &bus, &prescale, &postdiv); err != nil {
		return err
	}
	if spiBus == nil {
		return ErrNoSPI
	}
	return spiBus.Apply(SPIDivider{Prescale: uint8(prescale), Postdiv: uint8(postdiv)}, SPISelector(bus))
}

func handleDumpRegisters(data *[]byte) error {
	var kind, index uint32
	if err := decodeArgs(data, &kind, &index); err != nil {
		return err
	}
	var (
		header string
		regs   []RegisterValue
		err    error
	)
	switch uint8(kind) {
	case DumpPWM:
		if index >= PWMChannels {
			return ErrInvalidChannel
		}
		header = "PWM CH" + utoa(index)
		regs, err = MustPWM().Registers(uint8(index))
	case DumpSPI:
		if spiBus == nil {
			return ErrNoSPI
		}
		header = "SPI" + utoa(index)
		regs, err = spiBus.Registers(SPISelector(index))
	case DumpGPIO:
		var pin Pin
		if pin, err = pinArg(index); err != nil {
			return err
		}
		header = "GPIO" + utoa(index)
		regs, err = MustPinMux().Registers(pin)
	default:
		return ErrDumpKind
	}
	if err != nil {
		return err
	}
	DumpRegisters(header, regs)
	SendResponse("log", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQString(out, header)
	})
	for _, r := range regs {
		line := r.String()
		SendResponse("log", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQString(out, line)
		})
	}
	return nil
}

var (
	resetHandler func()
	resetPending atomic.Bool
)

// SetResetHandler installs the platform reset (the watchdog on RP2040).
func SetResetHandler(fn func()) {
	resetHandler = fn
}

// handleReset only flags the reset; the ACK has to go out first.
func handleReset(_ *[]byte) error {
	resetPending.Store(true)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested. Call it
// from the main loop after output has been flushed.
func CheckPendingReset() {
	if resetPending.Load() && resetHandler != nil {
		resetPending.Store(false)
		resetHandler()
	}
}

func pinArg(v uint32) (Pin, error) {
	if v >= NumPins {
		return 0, ErrInvalidPin
	}
	return Pin(v), nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
