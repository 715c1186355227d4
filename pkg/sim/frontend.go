package sim

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/sensor"
)

// FrontEnd simulates the analog measurement circuit: a reference resistor
// and a gas sensor on a two-channel multiplexer, a programmable current
// source, and an ADC with offset, gain and noise.
type FrontEnd struct {
	cfg           config.MockConfig
	referenceOhms float64

	mu        sync.Mutex
	channel   sensor.Channel
	sourceOn  bool
	microamps uint8
	result    int32
	ready     bool
	sensor    float64 // fixed sensor resistance, 0 follows the exposure profile
	start     time.Time
	rng       *rand.Rand

	now     func() time.Time
	stalled atomic.Bool
	convs   atomic.Uint64
}

var (
	_ sensor.Multiplexer   = (*FrontEnd)(nil)
	_ sensor.CurrentSource = (*FrontEnd)(nil)
	_ sensor.Converter     = (*FrontEnd)(nil)
)

// NewFrontEnd creates a simulated front end with the given reference
// resistor value in ohms.
func NewFrontEnd(cfg config.MockConfig, referenceOhms float64) *FrontEnd {
	if cfg.CountsPerVolt == 0 {
		cfg.CountsPerVolt = 1 << 20
	}
	if cfg.BaselineOhms == 0 {
		cfg.BaselineOhms = 22000
	}
	return &FrontEnd{
		cfg:           cfg,
		referenceOhms: referenceOhms,
		start:         time.Now(),
		rng:           rand.New(rand.NewSource(1)),
		now:           time.Now,
	}
}

// Peripherals returns the front end as the sensor's peripheral set.
func (f *FrontEnd) Peripherals() sensor.FrontEnd {
	return sensor.FrontEnd{Mux: f, Source: f, ADC: f}
}

// SetSensorOhms pins the sensor resistance. 0 restores the exposure profile.
func (f *FrontEnd) SetSensorOhms(ohms float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensor = ohms
}

// SetReferenceOhms changes the reference resistor, e.g. 0 for an open or
// shorted reference.
func (f *FrontEnd) SetReferenceOhms(ohms float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referenceOhms = ohms
}

// Stall makes every following conversion hang until Unstall.
func (f *FrontEnd) Stall() { f.stalled.Store(true) }

// Unstall releases a stalled converter.
func (f *FrontEnd) Unstall() { f.stalled.Store(false) }

// Conversions returns how many conversions were started.
func (f *FrontEnd) Conversions() uint64 {
	return f.convs.Load()
}

// SourceOn reports whether the current source is powered.
func (f *FrontEnd) SourceOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceOn
}

// Restart resets the exposure profile time origin.
func (f *FrontEnd) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.start = f.now()
}

// Select implements sensor.Multiplexer.
func (f *FrontEnd) Select(ch sensor.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = ch
}

// Start implements sensor.CurrentSource.
func (f *FrontEnd) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourceOn = true
}

// SetMicroamps implements sensor.CurrentSource.
func (f *FrontEnd) SetMicroamps(ua uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.microamps = ua
}

// Stop implements sensor.CurrentSource.
func (f *FrontEnd) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourceOn = false
	f.microamps = 0
}

// StartConvert implements sensor.Converter.
func (f *FrontEnd) StartConvert() {
	f.convs.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	ohms := f.referenceOhms
	if f.channel == sensor.SenseChannel {
		ohms = f.sensorOhms(f.now().Sub(f.start))
	}

	amps := 0.0
	if f.sourceOn {
		amps = float64(f.microamps) * 1e-6
	}
	volts := amps * ohms

	counts := float64(f.cfg.OffsetCounts) + volts*f.cfg.CountsPerVolt
	if f.cfg.NoiseCounts > 0 {
		counts += f.rng.NormFloat64() * f.cfg.NoiseCounts
	}
	f.result = int32(math.Round(counts))
	f.ready = true
}

// Ready implements sensor.Converter.
func (f *FrontEnd) Ready() bool {
	if f.stalled.Load() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Result implements sensor.Converter.
func (f *FrontEnd) Result() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = false
	return f.result
}

// SensorOhms returns the simulated sensor resistance elapsed after start.
func (f *FrontEnd) SensorOhms(elapsed time.Duration) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sensorOhms(elapsed)
}

func (f *FrontEnd) sensorOhms(elapsed time.Duration) float64 {
	if f.sensor != 0 {
		return f.sensor
	}
	c := f.cfg
	if c.ExposureTime <= 0 || elapsed < c.ExposureStart {
		return c.BaselineOhms
	}
	phase := elapsed - c.ExposureStart
	if c.ExposurePeriod > 0 {
		phase %= c.ExposurePeriod
	}
	if phase < c.ExposureTime {
		return c.BaselineOhms + c.ResponseOhms
	}
	return c.BaselineOhms
}
