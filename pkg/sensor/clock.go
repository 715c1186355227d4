package sensor

import (
	"fmt"
	"sync/atomic"
	"time"
)

// SampleClock divides the periodic timer tick down to the sampling rate.
// Every ratio ticks it raises SampleDue and wraps back to zero.
type SampleClock struct {
	ratio  uint32
	count  atomic.Uint32
	events *Events
}

// NewSampleClock returns a clock raising events.SampleDue once per ratio
// ticks. Ratios below 1 are treated as 1.
func NewSampleClock(ratio int, events *Events) *SampleClock {
	if ratio < 1 {
		ratio = 1
	}
	return &SampleClock{ratio: uint32(ratio), events: events}
}

// Ratio returns the number of ticks per sample for the given tick period and
// sampling rate in Hz.
func Ratio(tick time.Duration, sampleRate int) (int, error) {
	if tick <= 0 || sampleRate <= 0 {
		return 0, fmt.Errorf("tick %v and sample rate %d must be positive", tick, sampleRate)
	}
	sample := time.Second / time.Duration(sampleRate)
	if sample%tick != 0 {
		return 0, fmt.Errorf("sample period %v is not a multiple of tick %v", sample, tick)
	}
	return int(sample / tick), nil
}

// Tick is called from timer context on every hardware period.
func (c *SampleClock) Tick() {
	c.events.TickElapsed.Raise()
	for {
		cur := c.count.Load()
		next := (cur + 1) % c.ratio
		if c.count.CompareAndSwap(cur, next) {
			if next == 0 {
				c.events.SampleDue.Raise()
			}
			return
		}
	}
}

// Arm restarts the count and drops stale tick and sample events, so the
// first sample after arming is a full period away.
func (c *SampleClock) Arm() {
	c.count.Store(0)
	c.events.TickElapsed.Clear()
	c.events.SampleDue.Clear()
}

// Count returns the current position within the period, 0..ratio-1.
func (c *SampleClock) Count() uint32 {
	return c.count.Load()
}

// Period returns the configured ratio.
func (c *SampleClock) Period() int {
	return int(c.ratio)
}
