//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"huepico/core"
)

// RP2040 timer: a free-running 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

func registerClockConstants() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(sysClockHz))
}

// hardwareMicros reads the full 64-bit timer.
func hardwareMicros() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		// A changed high word means the low word rolled over mid-read.
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// tickClock paces the scene refresh off the hardware timer.
type tickClock struct {
	last uint64 // microseconds at the previous tick
}

func newTickClock() *tickClock {
	return &tickClock{last: hardwareMicros()}
}

// due reports whether a tick period has passed. When it has, it records the
// tick with core.AdvanceClock.
func (c *tickClock) due() bool {
	now := hardwareMicros()
	elapsed := now - c.last
	if elapsed < core.TickPeriodMS*1000 {
		return false
	}
	c.last = now
	core.AdvanceClock(uint32(elapsed / 1000))
	return true
}
