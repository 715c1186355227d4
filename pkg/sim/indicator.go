package sim

import "sync/atomic"

// LED records the state of a simulated indicator output.
type LED struct {
	on      atomic.Bool
	changes atomic.Uint64
}

// Set implements sensor.Indicator.
func (l *LED) Set(on bool) {
	if l.on.Swap(on) != on {
		l.changes.Add(1)
	}
}

// On reports the current state.
func (l *LED) On() bool {
	return l.on.Load()
}

// Changes counts state transitions.
func (l *LED) Changes() uint64 {
	return l.changes.Load()
}
