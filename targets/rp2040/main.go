//go:build rp2040

package main

import (
	"machine"
	"time"

	"huepico/core"
	"huepico/protocol"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors                uint32
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left over from the reset that started us.
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	initDebug()
	unresetBlocks(resetIOBank0 | resetPWM | resetSPI0 | resetSPI1)

	pwm, err := core.NewPWMDriver(pwmBlock())
	if err != nil {
		fatal("pwm", err)
	}
	gpio, err := core.NewGPIODriver(gpioBank())
	if err != nil {
		fatal("gpio", err)
	}
	spi, err := core.NewSPIDriver(spiBlock(spi0Base), spiBlock(spi1Base))
	if err != nil {
		fatal("spi", err)
	}
	core.SetPWMOutput(pwm)
	core.SetPinMux(gpio)

	for _, pin := range []core.Pin{ledRed, ledGreen, ledBlue} {
		if err := gpio.SetPin(pin, core.ModePWM); err != nil {
			fatal("status led", err)
		}
	}
	if err := core.SetStatusLED(core.RGBPins{Red: ledRed, Green: ledGreen, Blue: ledBlue}); err != nil {
		fatal("status led", err)
	}

	strip, err := newStrip(spi, gpio)
	if err != nil {
		fatal("strip "+stripBackend, err)
	}
	core.SetStripOutput(strip)
	core.SetScene(core.NewScene(ledCount))

	core.InitCoreCommands()
	registerClockConstants()
	core.RegisterConstant("LED_COUNT", ledCount)
	core.RegisterConstant("STRIP_BACKEND", stripBackend)
	core.GetGlobalDictionary().SetBuildVersions("tinygo rp2040 " + stripBackend)
	core.GetGlobalDictionary().Build()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// ACKs go out as soon as they are written.
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		machine.Watchdog.Start()
		for {
			time.Sleep(time.Millisecond)
		}
	})

	go usbReaderLoop()

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMS})
	machine.Watchdog.Start()

	clock := newTickClock()
	for {
		serviceHost()
		if clock.due() {
			refresh()
		}
		machine.Watchdog.Update()
		time.Sleep(100 * time.Microsecond)
	}
}

// refresh draws one frame and blinks the status LED when the rainbow passes
// red, green or blue.
func refresh() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
		}
	}()
	f, err := core.Refresh()
	if err != nil {
		core.DebugPrintln("[refresh] " + err.Error())
		return
	}
	if f.Marker && len(f.Pixels) > 0 {
		core.BlinkStatusLED(f.Pixels[0], sleepServicing)
	}
}

// sleepServicing waits ms milliseconds while still answering the host and
// feeding the watchdog.
func sleepServicing(ms uint32) {
	deadline := hardwareMicros() + uint64(ms)*1000
	for hardwareMicros() < deadline {
		serviceHost()
		machine.Watchdog.Update()
		time.Sleep(time.Millisecond)
	}
}

// serviceHost runs every complete command block and sends the replies.
func serviceHost() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			inputBuffer.Reset()
			outputBuffer.Reset()
		}
	}()

	if inputBuffer.Available() > 0 {
		in := protocol.NewSliceInputBuffer(inputBuffer.Data())
		before := in.Available()
		transport.Receive(in)
		if consumed := before - in.Available(); consumed > 0 {
			inputBuffer.Pop(consumed)
		}
	}
	if len(outputBuffer.Result()) > 0 {
		writeUSB()
	}
	// Only after the ACK for the reset command is out.
	core.CheckPendingReset()
}

// usbReaderLoop moves bytes from the USB CDC buffer into inputBuffer.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				core.DebugAsync("[usb] read: " + err.Error())
				time.Sleep(time.Millisecond)
				continue
			}
			if usbWasDisconnected {
				// A host is back: start from a clean link.
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				consecutiveWriteFailures = 0
			}
			if inputBuffer.Write([]byte{b}) == 0 {
				msgerrors++
				core.DebugAsync("[usb] input full, errors=" + itoa(int(msgerrors)))
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB sends everything in outputBuffer. Repeated failures mean the
// host went away; pending data is dropped and the link is reset on the
// next byte received.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

func initDebug() {
	if debugOutput != "uart" {
		return
	}
	machine.UART0.Configure(machine.UARTConfig{
		BaudRate: debugBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	core.SetDebugWriter(func(s string) {
		machine.UART0.Write([]byte(s))
		machine.UART0.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

// fatal reports a setup failure on the debug port and blinks the on-board
// LED forever.
func fatal(what string, err error) {
	core.DebugPrintln("[fatal] " + what + ": " + err.Error())
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

// itoa converts int to string without strconv.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	negative := i < 0
	if negative {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
