package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"

	"huepico/color"
	"huepico/protocol"
	"huepico/ws2812"
)

type recordingStrip struct {
	frames []ws2812.Frame
}

func (s *recordingStrip) Show(f ws2812.Frame) error {
	s.frames = append(s.frames, append(ws2812.Frame(nil), f...))
	return nil
}

type harness struct {
	pwm   *PWMBlock
	gpio  *GPIOBank
	spi0  *SPIBlock
	scene *Scene
	strip *recordingStrip
	out   *protocol.ScratchOutput
	tr    *protocol.Transport
}

func newHarness(t *testing.T, leds int) *harness {
	t.Helper()
	InitCoreCommands()
	ResetClock()
	h := &harness{
		pwm:   NewMemPWMBlock(),
		gpio:  NewMemGPIOBank(),
		spi0:  NewMemSPIBlock(),
		scene: NewScene(leds),
		strip: &recordingStrip{},
		out:   protocol.NewScratchOutput(),
	}
	pwm, err := NewPWMDriver(h.pwm)
	if err != nil {
		t.Fatal(err)
	}
	gpio, err := NewGPIODriver(h.gpio)
	if err != nil {
		t.Fatal(err)
	}
	spi, err := NewSPIDriver(h.spi0, nil)
	if err != nil {
		t.Fatal(err)
	}
	SetPWMOutput(pwm)
	SetPinMux(gpio)
	SetSPIBus(spi)
	SetStripOutput(h.strip)
	SetScene(h.scene)
	h.tr = protocol.NewTransport(h.out, DispatchCommand)
	SetGlobalTransport(h.tr)

	t.Cleanup(func() {
		SetGlobalTransport(nil)
		SetScene(nil)
		SetPWMOutput(nil)
		SetPinMux(nil)
		SetSPIBus(nil)
		SetStripOutput(nil)
		ledSet = false
		SetDebugWriter(func(string) {})
		ResetClock()
	})
	return h
}

func (h *harness) call(t *testing.T, name string, args ...uint32) error {
	t.Helper()
	cmd, ok := GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("command %s not registered", name)
	}
	out := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQUint(out, a)
	}
	data := out.Result()
	return cmd.Handler(&data)
}

type response struct {
	name string
	args []byte
}

// responses returns every non-ACK block written since the last call.
func (h *harness) responses(t *testing.T) []response {
	t.Helper()
	var rs []response
	data := h.out.Result()
	for len(data) > 0 {
		blk, n, err := protocol.ParseBlock(data)
		if err != nil {
			t.Fatalf("bad output block: %v", err)
		}
		data = data[n:]
		if blk.IsAck() {
			continue
		}
		m := protocol.Message{Seq: blk.Seq, Payload: blk.Payload}
		id, args, err := m.Command()
		if err != nil {
			t.Fatal(err)
		}
		cmd, ok := GetGlobalRegistry().GetCommand(id)
		if !ok {
			t.Fatalf("unknown response id %d", id)
		}
		rs = append(rs, response{cmd.Name, append([]byte(nil), args...)})
	}
	h.out.Reset()
	return rs
}

func uints(t *testing.T, data []byte, n int) []uint32 {
	t.Helper()
	vs := make([]uint32, n)
	for i := range vs {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			t.Fatalf("arg %d: %v", i, err)
		}
		vs[i] = v
	}
	return vs
}

func TestSetPixelCommands(t *testing.T) {
	h := newHarness(t, 4)
	if err := h.call(t, "set_pixel", 2, 0xAB123456); err != nil {
		t.Fatal(err)
	}
	if err := h.call(t, "set_pixel_hsl", 0, 1200, 1000, 500); err != nil {
		t.Fatal(err)
	}
	f := h.scene.Tick()
	if f.Pixels[2] != 0x123456 {
		t.Errorf("pixel 2 = %06X, upper byte must be dropped", uint32(f.Pixels[2]))
	}
	if f.Pixels[0] != color.Green {
		t.Errorf("pixel 0 = %06X, want green", uint32(f.Pixels[0]))
	}
	if err := h.call(t, "set_pixel", 4, 1); err != ErrPixelRange {
		t.Errorf("set_pixel out of range = %v", err)
	}
	if err := h.call(t, "set_pixel", 1); err != protocol.ErrShortData {
		t.Errorf("missing argument = %v", err)
	}
}

func TestSceneCommands(t *testing.T) {
	h := newHarness(t, 4)
	if err := h.call(t, "fill", 0x0000FF); err != nil {
		t.Fatal(err)
	}
	if h.scene.Status().Mode != SceneStatic {
		t.Error("fill did not switch to static")
	}
	if err := h.call(t, "set_scene", uint32(SceneRainbow), 10); err != nil {
		t.Fatal(err)
	}
	if err := h.call(t, "pause_scene", 1); err != nil {
		t.Fatal(err)
	}
	st := h.scene.Status()
	if st.Mode != SceneRainbow || st.Step != 10 || !st.Paused {
		t.Errorf("status = %+v", st)
	}
	if err := h.call(t, "set_scene", 9, 1); err != ErrInvalidScene {
		t.Errorf("set_scene 9 = %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t, 3)
	AdvanceClock(TickPeriodMS)
	AdvanceClock(TickPeriodMS)
	h.scene.SetPixel(0, 0x010203)
	if err := h.call(t, "get_status"); err != nil {
		t.Fatal(err)
	}
	rs := h.responses(t)
	if len(rs) != 1 || rs[0].name != "status" {
		t.Fatalf("responses = %+v", rs)
	}
	got := uints(t, rs[0].args, 8)
	want := []uint32{2, 50, uint32(SceneStatic), DefaultHueStep, 0, 0, 3, 0x010203}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status = %v, want %v", got, want)
			break
		}
	}
}

func TestPWMCommands(t *testing.T) {
	h := newHarness(t, 1)
	if err := h.call(t, "set_pwm", 13, 0x1234); err != nil {
		t.Fatal(err)
	}
	ch := h.pwm.Ch[6]
	if ch.CSR.Get()&pwmCSREnable == 0 || ch.TOP.Get() != uint32(DefaultTop) {
		t.Error("set_pwm did not start the channel")
	}
	if got := ch.CC.Get() >> 16; got != 0x1234 {
		t.Errorf("CC B = 0x%X", got)
	}

	if err := h.call(t, "set_pwm_percent", 13, 250); err != nil {
		t.Fatal(err)
	}
	if err := h.call(t, "get_pwm", 13); err != nil {
		t.Fatal(err)
	}
	rs := h.responses(t)
	if len(rs) != 1 || rs[0].name != "pwm_state" {
		t.Fatalf("responses = %+v", rs)
	}
	got := uints(t, rs[0].args, 4)
	if got[0] != 13 || got[1] != uint32(DefaultTop) || got[2] != 0x2000 || got[3] != 1 {
		t.Errorf("pwm_state = %v", got)
	}

	if err := h.call(t, "set_pwm_percent", 13, 1001); err != ErrPercent {
		t.Errorf("permille 1001 = %v", err)
	}
	if err := h.call(t, "set_pwm", 30, 1); err != ErrInvalidPin {
		t.Errorf("set_pwm pin 30 = %v", err)
	}
	if err := h.call(t, "set_pwm", 286, 1); err != ErrInvalidPin {
		t.Errorf("set_pwm pin 286 (wraps to 30 as a byte) = %v", err)
	}
}

func TestStatusLEDCommand(t *testing.T) {
	h := newHarness(t, 1)
	if err := h.call(t, "set_status_led", 0xFF0000); err != ErrNoLEDPins {
		t.Errorf("before SetStatusLED = %v", err)
	}
	if err := SetStatusLED(RGBPins{Red: 13, Green: 15, Blue: 17}); err != nil {
		t.Fatal(err)
	}
	if err := h.call(t, "set_status_led", 0x00FF00); err != nil {
		t.Fatal(err)
	}
	if got := h.pwm.Ch[7].CC.Get() >> 16; got != uint32(DefaultTop) {
		t.Errorf("green compare = 0x%X", got)
	}
	if got := h.pwm.Ch[6].CC.Get() >> 16; got != 0 {
		t.Errorf("red compare = 0x%X", got)
	}
}

func TestSetPinCommand(t *testing.T) {
	h := newHarness(t, 1)
	if err := h.call(t, "set_pin", 25, uint32(ModeHigh)); err != nil {
		t.Fatal(err)
	}
	if got := h.gpio.Pin[25].Ctrl.Get(); got != 0x3305 {
		t.Errorf("CTRL = 0x%X", got)
	}
	if err := h.call(t, "set_pin", 25, 3); err != ErrInvalidMode {
		t.Errorf("mode 3 = %v", err)
	}
	if err := h.call(t, "set_pin", 260, 0); err != ErrInvalidPin {
		t.Errorf("pin 260 = %v", err)
	}
}

func TestSetSPIDividerCommand(t *testing.T) {
	h := newHarness(t, 1)
	if err := h.call(t, "set_spi_divider", 0, 2, 7); err != nil {
		t.Fatal(err)
	}
	if h.spi0.CPSR.Get() != 2 || h.spi0.CR0.Get()>>8 != 7 {
		t.Errorf("CPSR %d CR0 0x%X", h.spi0.CPSR.Get(), h.spi0.CR0.Get())
	}
	if err := h.call(t, "set_spi_divider", 1, 2, 7); err != ErrInvalidSelector {
		t.Errorf("SPI1 = %v", err)
	}
	if err := h.call(t, "set_spi_divider", 0, 0, 0); err != ErrInvalidDivider {
		t.Errorf("prescale 0 = %v", err)
	}
	if err := h.call(t, "set_spi_divider", 0, 3, 1); err != ErrInvalidDivider {
		t.Errorf("prescale 3 = %v", err)
	}
	if h.spi0.CPSR.Get() != 2 || h.spi0.CR0.Get()>>8 != 7 {
		t.Errorf("rejected divider written: CPSR %d CR0 0x%X", h.spi0.CPSR.Get(), h.spi0.CR0.Get())
	}
}

func TestDumpRegistersCommand(t *testing.T) {
	h := newHarness(t, 1)
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	h.call(t, "set_pwm", 13, 0x1234)

	if err := h.call(t, "dump_registers", uint32(DumpPWM), 6); err != nil {
		t.Fatal(err)
	}
	rs := h.responses(t)
	var logs []string
	for _, r := range rs {
		data := r.args
		s, err := protocol.DecodeVLQString(&data)
		if err != nil || r.name != "log" {
			t.Fatalf("response %s: %v", r.name, err)
		}
		logs = append(logs, s)
	}
	want := []string{"PWM CH6", "TOP     0x00008000", "CC      0x12340000", "CSR     0x00000001"}
	if len(logs) != len(want) {
		t.Fatalf("logs = %q", logs)
	}
	for i := range want {
		if logs[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, logs[i], want[i])
		}
	}
	if len(lines) != 4 || lines[1] != "    "+want[1] {
		t.Errorf("debug lines = %q", lines)
	}

	for _, tc := range []struct {
		kind, index uint32
		want        error
	}{
		{uint32(DumpPWM), 8, ErrInvalidChannel},
		{uint32(DumpSPI), 1, ErrInvalidSelector},
		{uint32(DumpGPIO), 30, ErrInvalidPin},
		{7, 0, ErrDumpKind},
	} {
		if err := h.call(t, "dump_registers", tc.kind, tc.index); err != tc.want {
			t.Errorf("dump %d/%d = %v, want %v", tc.kind, tc.index, err, tc.want)
		}
	}
	if err := h.call(t, "dump_registers", uint32(DumpGPIO), 4); err != nil {
		t.Errorf("gpio dump: %v", err)
	}
	if err := h.call(t, "dump_registers", uint32(DumpSPI), 0); err != nil {
		t.Errorf("spi dump: %v", err)
	}
}

func TestResetCommand(t *testing.T) {
	h := newHarness(t, 1)
	resets := 0
	SetResetHandler(func() { resets++ })
	defer SetResetHandler(nil)

	CheckPendingReset()
	if resets != 0 {
		t.Fatal("reset without a request")
	}
	h.call(t, "reset")
	CheckPendingReset()
	CheckPendingReset()
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestIdentifyOverTransport(t *testing.T) {
	h := newHarness(t, 1)
	dict := GetGlobalDictionary().Data()

	var assembled []byte
	seq := uint8(protocol.DestBit)
	for offset := uint32(0); ; offset += 40 {
		blk, err := protocol.AppendBlock(nil, seq, protocol.EncodeCommand(1, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, offset)
			protocol.EncodeVLQUint(out, 40)
		}))
		if err != nil {
			t.Fatal(err)
		}
		seq = protocol.NextSeq(seq)
		h.tr.Receive(protocol.NewSliceInputBuffer(blk))

		rs := h.responses(t)
		if len(rs) != 1 || rs[0].name != "identify_response" {
			t.Fatalf("offset %d: responses %+v", offset, rs)
		}
		data := rs[0].args
		got, _ := protocol.DecodeVLQUint(&data)
		chunk, err := protocol.DecodeVLQBytes(&data)
		if err != nil || got != offset {
			t.Fatalf("offset %d: echoed %d, %v", offset, got, err)
		}
		if len(chunk) == 0 {
			break
		}
		assembled = append(assembled, chunk...)
	}
	if !bytes.Equal(assembled, dict) {
		t.Fatalf("assembled %d bytes, dictionary has %d", len(assembled), len(dict))
	}

	r, err := zlib.NewReader(bytes.NewReader(assembled))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Version      string                    `json:"version"`
		Config       map[string]string         `json:"config"`
		Commands     map[string]int            `json:"commands"`
		Responses    map[string]int            `json:"responses"`
		Enumerations map[string]map[string]int `json:"enumerations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("dictionary is not JSON: %v\n%s", err, raw)
	}
	if parsed.Commands["identify offset=%u count=%c"] != 1 {
		t.Errorf("identify id = %d", parsed.Commands["identify offset=%u count=%c"])
	}
	if id, ok := parsed.Responses["identify_response offset=%u data=%.*s"]; !ok || id != 0 {
		t.Errorf("identify_response id = %d, %v", id, ok)
	}
	if parsed.Enumerations["scene"]["static"] != 1 || parsed.Config["PWM_TOP"] != "32768" {
		t.Errorf("enumerations %v config %v", parsed.Enumerations, parsed.Config)
	}
	if parsed.Version != protocol.Version {
		t.Errorf("version = %q", parsed.Version)
	}
}
