package sensor

import "sync/atomic"

// State is the acquisition state.
type State uint32

const (
	Idle State = iota
	Sensing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Sensing:
		return "SENSING"
	default:
		return "UNKNOWN"
	}
}

// stateCell holds the process-wide state. It is written by the main loop and
// by the receive event source (which may only force Idle).
type stateCell struct {
	v atomic.Uint32
}

func (c *stateCell) Load() State {
	return State(c.v.Load())
}

func (c *stateCell) Store(s State) {
	c.v.Store(uint32(s))
}
