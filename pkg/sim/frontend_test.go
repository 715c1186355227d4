package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/sensor"
)

func exactMock() config.MockConfig {
	return config.MockConfig{
		BaselineOhms:  5005,
		OffsetCounts:  1200,
		CountsPerVolt: 1e6,
	}
}

func newPipeline(f *FrontEnd, timeout time.Duration) *sensor.Pipeline {
	return sensor.NewPipeline(f.Peripherals(), sensor.PipelineConfig{
		Microamps:         50,
		ReferenceOhms:     10010,
		ConversionTimeout: timeout,
	}, nil)
}

func TestFrontEnd_MeasuresSensor(t *testing.T) {
	f := NewFrontEnd(exactMock(), 10010)
	p := newPipeline(f, 10*time.Millisecond)

	r, err := p.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(500500), r.Vref)
	assert.Equal(t, int32(250250), r.Vsense)
	assert.Equal(t, float32(5005), r.Resistance)
	assert.False(t, f.SourceOn())
	assert.Equal(t, uint64(4), f.Conversions())
}

func TestFrontEnd_NoCurrentWhenOff(t *testing.T) {
	f := NewFrontEnd(exactMock(), 10010)
	f.SetMicroamps(50)
	f.StartConvert()
	require.True(t, f.Ready())
	assert.Equal(t, int32(1200), f.Result(), "offset only")
	assert.False(t, f.Ready(), "result consumed")
}

func TestFrontEnd_Stall(t *testing.T) {
	f := NewFrontEnd(exactMock(), 10010)
	f.Stall()
	p := newPipeline(f, 5*time.Millisecond)

	_, err := p.Measure(context.Background())
	assert.ErrorIs(t, err, sensor.ErrConversionTimeout)

	f.Unstall()
	_, err = p.Measure(context.Background())
	assert.NoError(t, err)
}

func TestFrontEnd_OpenReference(t *testing.T) {
	f := NewFrontEnd(exactMock(), 10010)
	f.SetReferenceOhms(0)
	p := newPipeline(f, 10*time.Millisecond)

	_, err := p.Measure(context.Background())
	assert.ErrorIs(t, err, sensor.ErrReferenceFault)
}

func TestFrontEnd_FixedSensor(t *testing.T) {
	f := NewFrontEnd(exactMock(), 10010)
	f.SetSensorOhms(20020)
	p := newPipeline(f, 10*time.Millisecond)

	r, err := p.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float32(20020), r.Resistance)
}

func TestFrontEnd_ExposureProfile(t *testing.T) {
	f := NewFrontEnd(config.MockConfig{
		BaselineOhms:   22000,
		ResponseOhms:   3500,
		ExposureStart:  10 * time.Second,
		ExposureTime:   20 * time.Second,
		ExposurePeriod: 60 * time.Second,
	}, 10010)

	tests := []struct {
		at   time.Duration
		want float64
	}{
		{0, 22000},
		{9 * time.Second, 22000},
		{10 * time.Second, 25500},
		{29 * time.Second, 25500},
		{30 * time.Second, 22000},
		{70 * time.Second, 25500},
		{95 * time.Second, 22000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.SensorOhms(tt.at), "at %v", tt.at)
	}
}

func TestFrontEnd_Restart(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFrontEnd(config.MockConfig{
		BaselineOhms:  22000,
		ResponseOhms:  3500,
		ExposureTime:  time.Second,
		CountsPerVolt: 1e6,
	}, 10010)
	f.now = func() time.Time { return now }
	f.Restart()

	p := newPipeline(f, 10*time.Millisecond)
	r, err := p.Measure(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25500, r.Resistance, 0.5)

	now = now.Add(2 * time.Second)
	r, err = p.Measure(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 22000, r.Resistance, 0.5)
}

func TestLED(t *testing.T) {
	var l LED
	l.Set(true)
	l.Set(true)
	l.Set(false)
	assert.False(t, l.On())
	assert.Equal(t, uint64(2), l.Changes())
}
