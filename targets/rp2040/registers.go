//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"huepico/core"
)

// RP2040 peripheral base addresses
const (
	resetsBase  = 0x4000C000
	ioBank0Base = 0x40014000
	spi0Base    = 0x4003C000
	spi1Base    = 0x40040000
	pwmBase     = 0x40050000

	// Writing a mask here clears those bits atomically.
	clearAlias = 0x3000

	resetOffset     = 0x0
	resetDoneOffset = 0x8

	pwmChannelStride = 0x14
)

// RESETS bits of the blocks this firmware programs directly
const (
	resetIOBank0 = 1 << 5
	resetPWM     = 1 << 14
	resetSPI0    = 1 << 16
	resetSPI1    = 1 << 17
)

func reg(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// unresetBlocks takes the blocks in mask out of reset and waits until they
// report ready.
func unresetBlocks(mask uint32) {
	reg(resetsBase + clearAlias + resetOffset).Set(mask)
	done := reg(resetsBase + resetDoneOffset)
	for done.Get()&mask != mask {
	}
}

func pwmBlock() *core.PWMBlock {
	b := &core.PWMBlock{}
	for i := range b.Ch {
		base := uintptr(pwmBase + i*pwmChannelStride)
		b.Ch[i] = core.PWMChannelRegs{
			CSR: reg(base + 0x00),
			DIV: reg(base + 0x04),
			CTR: reg(base + 0x08),
			CC:  reg(base + 0x0C),
			TOP: reg(base + 0x10),
		}
	}
	return b
}

func spiBlock(base uintptr) *core.SPIBlock {
	return &core.SPIBlock{
		CR0:  reg(base + 0x00),
		CR1:  reg(base + 0x04),
		DR:   reg(base + 0x08),
		SR:   reg(base + 0x0C),
		CPSR: reg(base + 0x10),
	}
}

func gpioBank() *core.GPIOBank {
	b := &core.GPIOBank{}
	for i := range b.Pin {
		base := uintptr(ioBank0Base + i*8)
		b.Pin[i] = core.GPIORegs{
			Status: reg(base),
			Ctrl:   reg(base + 4),
		}
	}
	return b
}
