package core

import (
	"errors"
	"sync"
)

// ErrPeripheralClaimed is returned when a driver is constructed twice for the
// same register block.
var ErrPeripheralClaimed = errors.New("peripheral already claimed")

// Peripheral ownership: each register block may back at most one driver for
// the lifetime of the process. The block pointer is the capability token.
var (
	claimMu sync.Mutex
	claimed = make(map[interface{}]string)
)

// claim records every block as owned by name. It fails, claiming none of
// them, if any block is already owned or appears twice.
func claim(name string, blocks ...interface{}) error {
	claimMu.Lock()
	defer claimMu.Unlock()
	for i, b := range blocks {
		if _, ok := claimed[b]; ok {
			return ErrPeripheralClaimed
		}
		for _, prev := range blocks[:i] {
			if prev == b {
				return ErrPeripheralClaimed
			}
		}
	}
	for _, b := range blocks {
		claimed[b] = name
	}
	return nil
}

// ClaimedBy returns the driver name owning block, or "" if it is free.
func ClaimedBy(block interface{}) string {
	claimMu.Lock()
	defer claimMu.Unlock()
	return claimed[block]
}
