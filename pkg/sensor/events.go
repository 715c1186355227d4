package sensor

import "sync/atomic"

// Flag is a single-producer/single-consumer event flag. Raising an already
// raised flag is a no-op, so occurrences arriving before the consumer takes
// the flag are coalesced into one.
type Flag struct {
	v atomic.Bool
}

// Raise marks the event pending. Safe to call from event-source context.
func (f *Flag) Raise() {
	f.v.Store(true)
}

// Take clears the flag and reports whether it was pending.
func (f *Flag) Take() bool {
	return f.v.CompareAndSwap(true, false)
}

// Pending reports the flag without consuming it.
func (f *Flag) Pending() bool {
	return f.v.Load()
}

// Clear drops a pending occurrence.
func (f *Flag) Clear() {
	f.v.Store(false)
}

// Events is the set of pending-event flags shared between event sources and
// the main loop.
type Events struct {
	ByteReceived Flag
	TickElapsed  Flag
	SampleDue    Flag
}

// Reset clears every flag.
func (e *Events) Reset() {
	e.ByteReceived.Clear()
	e.TickElapsed.Clear()
	e.SampleDue.Clear()
}
