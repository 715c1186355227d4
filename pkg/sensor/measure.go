package sensor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chewxy/math32"
)

// Defaults for the measurement pipeline.
const (
	DefaultMicroamps         = 50
	DefaultReferenceOhms     = 10010
	DefaultConversionTimeout = 100 * time.Millisecond
)

var (
	// ErrConversionTimeout is returned when the ADC does not finish in time.
	ErrConversionTimeout = errors.New("adc conversion timeout")
	// ErrInterrupted is returned when a received byte aborts a conversion.
	ErrInterrupted = errors.New("measurement interrupted by host")
	// ErrReferenceFault is returned when the reference voltage is too small
	// to divide by, e.g. an open or shorted reference resistor.
	ErrReferenceFault = errors.New("reference voltage out of range")
)

// Reading is one ratiometric measurement.
type Reading struct {
	Vref       int32   // offset-corrected reference channel counts
	Vsense     int32   // offset-corrected sense channel counts
	Resistance float32 // ohms
}

// PipelineConfig parameterizes a Pipeline.
type PipelineConfig struct {
	Microamps          uint8
	ReferenceOhms      float32
	ConversionTimeout  time.Duration // 0 waits forever
	MinReferenceCounts int32
}

// Pipeline performs offset-calibrated, ratiometric resistance measurement.
type Pipeline struct {
	fe        FrontEnd
	cfg       PipelineConfig
	interrupt func() bool
}

// NewPipeline returns a pipeline over fe. interrupt, if not nil, is polled
// while waiting for a conversion; returning true abandons the measurement.
func NewPipeline(fe FrontEnd, cfg PipelineConfig, interrupt func() bool) *Pipeline {
	if cfg.Microamps == 0 {
		cfg.Microamps = DefaultMicroamps
	}
	if cfg.ReferenceOhms == 0 {
		cfg.ReferenceOhms = DefaultReferenceOhms
	}
	if cfg.MinReferenceCounts <= 0 {
		cfg.MinReferenceCounts = 1
	}
	if interrupt == nil {
		interrupt = func() bool { return false }
	}
	return &Pipeline{fe: fe, cfg: cfg, interrupt: interrupt}
}

// MeasureVoltage returns the offset-corrected voltage across the resistor
// on ch. The current source is stopped on every return path.
func (p *Pipeline) MeasureVoltage(ctx context.Context, ch Channel) (int32, error) {
	p.fe.Source.Start()
	defer p.fe.Source.Stop()

	p.fe.Mux.Select(ch)

	p.fe.Source.SetMicroamps(0)
	offset, err := p.convert(ctx)
	if err != nil {
		return 0, err
	}

	p.fe.Source.SetMicroamps(p.cfg.Microamps)
	v, err := p.convert(ctx)
	if err != nil {
		return 0, err
	}

	return v - offset, nil
}

// Measure reads both channels and computes the sensor resistance.
func (p *Pipeline) Measure(ctx context.Context) (Reading, error) {
	vref, err := p.MeasureVoltage(ctx, ReferenceChannel)
	if err != nil {
		return Reading{}, err
	}
	vsense, err := p.MeasureVoltage(ctx, SenseChannel)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{Vref: vref, Vsense: vsense}
	if abs32(vref) < p.cfg.MinReferenceCounts {
		return r, ErrReferenceFault
	}
	r.Resistance = Ratiometric(vsense, vref, p.cfg.ReferenceOhms)
	return r, nil
}

func (p *Pipeline) convert(ctx context.Context) (int32, error) {
	adc := p.fe.ADC
	adc.StartConvert()

	var deadline time.Time
	if p.cfg.ConversionTimeout > 0 {
		deadline = time.Now().Add(p.cfg.ConversionTimeout)
	}
	for !adc.Ready() {
		if p.interrupt() {
			return 0, ErrInterrupted
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, ErrConversionTimeout
		}
	}
	return adc.Result(), nil
}

// Ratiometric computes R_sense = (Vsense / Vref) * R_reference. Gain errors
// common to both channels cancel in the ratio.
func Ratiometric(vsense, vref int32, referenceOhms float32) float32 {
	return float32(vsense) / float32(vref) * referenceOhms
}

// Split separates ohms into an integer part and a three-digit fractional
// part, both truncated. Negative and non-finite values saturate.
func Split(ohms float32) (uint32, uint16) {
	switch {
	case math32.IsNaN(ohms) || ohms <= 0:
		return 0, 0
	case math32.IsInf(ohms, 1) || float64(ohms) >= math.MaxUint32+1:
		return math.MaxUint32, 999
	}

	whole := math32.Trunc(ohms)
	frac := math32.Trunc((ohms - whole) * 1000)
	if frac > 999 {
		frac = 999
	}
	return uint32(whole), uint16(frac)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
