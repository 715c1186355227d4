package meter

import (
	"math"
	"sync"
	"time"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/gsense"
)

var _ ResistanceMeter = (*Meter)(nil)

// Event is a detected exposure: a stretch of readings whose resistance
// departs from the baseline by at least the response threshold.
type Event struct {
	StartIndex int       // First reading of the event in the buffer
	EndIndex   int       // Last reading of the event (updated while active)
	StartTime  time.Time // Start timestamp
	EndTime    time.Time // End timestamp (updated while active)
	Baseline   float64   // Baseline in Ohm when the event started
	Peak       float64   // Resistance furthest from the baseline
	Response   float64   // (Peak - Baseline) / Baseline
	Active     bool
}

// Duration of the event so far.
func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// ResistanceMeter processes readings, maintains buffers, and detects exposures.
type ResistanceMeter interface {
	Process(input <-chan gsense.Reading)
	Readings() []gsense.Reading                                                    // Current readings buffer, oldest first
	Derivatives() []float64                                                        // dR/dt in Ohm/s, n-1 values for n readings
	Events() []Event                                                               // Events within the window
	Baseline() float64                                                             // Current baseline in Ohm, 0 before the first reading
	OnUpdate(func(readings []gsense.Reading, derivatives []float64, events []Event)) // Called after every reading
	OnEvent(func(Event))                                                           // Called when an event completes
}

// Meter implements ResistanceMeter.
//
// Readings and derivatives are FIFO buffers trimmed by timestamp, not count.
// derivative[i] = (reading[i+1] - reading[i]) / dt, so n readings carry
// n-1 derivatives. Event indices refer to the readings buffer and shift as
// old readings leave the window.
type Meter struct {
	readings    []gsense.Reading
	derivatives []float64
	events      []Event
	baseline    float64

	mu sync.RWMutex

	callbacks []func(readings []gsense.Reading, derivatives []float64, events []Event)
	onEvent   []func(Event)
	cbMu      sync.RWMutex

	windowDuration   time.Duration
	threshold        float64
	minEventDuration time.Duration
	alpha            float64

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// New creates a Meter from the analysis settings.
func New(cfg config.AnalysisConfig) *Meter {
	return &Meter{
		windowDuration:   time.Duration(cfg.WindowSeconds * float64(time.Second)),
		threshold:        cfg.ResponseThreshold,
		minEventDuration: time.Duration(cfg.MinEventDuration * float64(time.Second)),
		alpha:            cfg.BaselineAlpha,
	}
}

// Process consumes readings until input is closed. Callbacks stop once it
// returns.
func (m *Meter) Process(input <-chan gsense.Reading) {
	for r := range input {
		m.processReading(r)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

func (m *Meter) processReading(r gsense.Reading) {
	m.mu.Lock()

	m.readings = append(m.readings, r)
	m.trim(r.Timestamp)

	if n := len(m.readings); n >= 2 {
		prev := m.readings[n-2]
		var d float64
		if dt := r.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			d = (r.Resistance - prev.Resistance) / dt
		}
		m.derivatives = append(m.derivatives, d)
		if len(m.derivatives) > n-1 {
			m.derivatives = m.derivatives[len(m.derivatives)-(n-1):]
		}
	}

	finished, ok := m.updateEvents(r)
	notify := !m.shutdown
	m.mu.Unlock()

	if !notify {
		return
	}
	if ok {
		m.notifyEvent(finished)
	}
	m.notifyCallbacks()
}

// trim drops readings older than the window and shifts event indices.
func (m *Meter) trim(now time.Time) {
	if m.windowDuration <= 0 {
		return
	}
	cutoff := now.Add(-m.windowDuration)
	cut := 0
	for cut < len(m.readings)-1 && m.readings[cut].Timestamp.Before(cutoff) {
		cut++
	}
	if cut == 0 {
		return
	}

	m.readings = m.readings[cut:]
	if cut <= len(m.derivatives) {
		m.derivatives = m.derivatives[cut:]
	} else {
		m.derivatives = m.derivatives[:0]
	}

	valid := m.events[:0]
	for _, e := range m.events {
		e.StartIndex -= cut
		e.EndIndex -= cut
		if e.EndIndex < 0 && !e.Active {
			continue
		}
		e.StartIndex = max(e.StartIndex, 0)
		e.EndIndex = max(e.EndIndex, 0)
		valid = append(valid, e)
	}
	m.events = valid
}

// updateEvents tracks the baseline and the active event. It returns the
// event that completed with this reading, if any.
func (m *Meter) updateEvents(r gsense.Reading) (Event, bool) {
	last := len(m.readings) - 1

	if m.baseline == 0 {
		m.baseline = r.Resistance
		return Event{}, false
	}
	response := (r.Resistance - m.baseline) / m.baseline

	if n := len(m.events); n > 0 && m.events[n-1].Active {
		e := &m.events[n-1]
		e.EndIndex = last
		e.EndTime = r.Timestamp
		if math.Abs(response) > math.Abs(e.Response) {
			e.Peak = r.Resistance
			e.Response = response
		}
		if math.Abs(response) >= m.threshold/2 {
			return Event{}, false
		}

		e.Active = false
		done := *e
		if done.Duration() < m.minEventDuration {
			// Too short, noise
			m.events = m.events[:n-1]
			return Event{}, false
		}
		return done, true
	}

	if m.threshold > 0 && math.Abs(response) >= m.threshold {
		m.events = append(m.events, Event{
			StartIndex: last,
			EndIndex:   last,
			StartTime:  r.Timestamp,
			EndTime:    r.Timestamp,
			Baseline:   m.baseline,
			Peak:       r.Resistance,
			Response:   response,
			Active:     true,
		})
		return Event{}, false
	}

	// The baseline only follows the sensor outside exposures
	m.baseline += m.alpha * (r.Resistance - m.baseline)
	return Event{}, false
}

// Readings returns a copy of the current readings buffer.
func (m *Meter) Readings() []gsense.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]gsense.Reading, len(m.readings))
	copy(result, m.readings)
	return result
}

// Derivatives returns a copy of the current derivatives buffer.
func (m *Meter) Derivatives() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]float64, len(m.derivatives))
	copy(result, m.derivatives)
	return result
}

// Events returns a copy of the events within the window.
func (m *Meter) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Event, len(m.events))
	copy(result, m.events)
	return result
}

func (m *Meter) Baseline() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseline
}

// OnUpdate registers a callback invoked after every reading with copies
// of the buffers. Callbacks should return quickly.
func (m *Meter) OnUpdate(callback func(readings []gsense.Reading, derivatives []float64, events []Event)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// OnEvent registers a callback invoked once per completed event.
func (m *Meter) OnEvent(callback func(Event)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onEvent = append(m.onEvent, callback)
}

// Reset clears all buffers and the baseline and re-enables callbacks.
// Call it before starting a new measurement chain.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = nil
	m.derivatives = nil
	m.events = nil
	m.baseline = 0
	m.shutdown = false
}

func (m *Meter) notifyEvent(e Event) {
	m.cbMu.RLock()
	callbacks := make([]func(Event), len(m.onEvent))
	copy(callbacks, m.onEvent)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(e)
		}
	}
}

// notifyCallbacks copies the buffers under the read lock and invokes the
// callbacks without holding any locks.
func (m *Meter) notifyCallbacks() {
	m.cbMu.RLock()
	callbacks := make([]func(readings []gsense.Reading, derivatives []float64, events []Event), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()
	if len(callbacks) == 0 {
		return
	}

	readings, derivatives, events := m.Readings(), m.Derivatives(), m.Events()
	for _, cb := range callbacks {
		if cb != nil {
			cb(readings, derivatives, events)
		}
	}
}
