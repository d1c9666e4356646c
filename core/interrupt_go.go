//go:build !tinygo

package core

// irqState is a placeholder; a host has no interrupts to mask.
type irqState uintptr

func maskIRQ() irqState {
	return 0
}

func unmaskIRQ(irqState) {}
