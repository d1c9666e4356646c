package core

import "sync/atomic"

// TickPeriodMS is the scene refresh period of the main loop.
const TickPeriodMS = 25

var (
	tickCount atomic.Uint32
	uptimeMS  atomic.Uint64
)

// AdvanceClock records one main-loop pass that took elapsedMS.
func AdvanceClock(elapsedMS uint32) {
	tickCount.Add(1)
	uptimeMS.Add(uint64(elapsedMS))
}

// Ticks returns the number of main-loop passes since boot.
func Ticks() uint32 {
	return tickCount.Load()
}

// UptimeMS returns the time accumulated by AdvanceClock.
func UptimeMS() uint64 {
	return uptimeMS.Load()
}

// ResetClock zeroes the tick counter and uptime.
func ResetClock() {
	tickCount.Store(0)
	uptimeMS.Store(0)
}
