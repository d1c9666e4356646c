//go:build tinygo

package core

import "runtime/interrupt"

// irqState is the interrupt mask saved while a strip frame is written.
type irqState = interrupt.State

func maskIRQ() irqState {
	return interrupt.Disable()
}

func unmaskIRQ(s irqState) {
	interrupt.Restore(s)
}
