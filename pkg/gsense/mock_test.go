package gsense

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/sensor"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Mock.ExposureTime = 0 // constant baseline
	return cfg
}

func TestNewMock(t *testing.T) {
	mock, err := NewMock(nil, nil)
	require.NoError(t, err)
	assert.False(t, mock.IsConnected())
	assert.Equal(t, DefaultSampleRate, mock.SampleRate())
	assert.NotNil(t, mock.Readings())
}

func TestNewMock_BadVariant(t *testing.T) {
	cfg := config.Default()
	cfg.Commands.Variant = "nope"
	_, err := NewMock(cfg, nil)
	assert.Error(t, err)
}

func TestMock_ConnectTwice(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	assert.True(t, mock.IsConnected())
	assert.Error(t, mock.Connect())
}

func TestMock_SendWhenDisconnected(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, mock.Start())
	assert.Error(t, mock.Stop())
	assert.Error(t, mock.RequestInfo())
}

func TestMock_ReportsSampleRate(t *testing.T) {
	cfg := mockConfig()
	cfg.Acquisition.SampleRate = 20

	mock, err := NewMock(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	assert.Eventually(t, func() bool {
		return mock.SampleRate() == 20
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMock_StreamsReadings(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	require.NoError(t, mock.Start())

	for i := 0; i < 3; i++ {
		select {
		case r := <-mock.Readings():
			assert.InDelta(t, 22000, r.Resistance, 1.0)
			assert.InDelta(t, float64(r.Integer)+float64(r.Fraction)/1000, r.Resistance, 1e-9)
			assert.False(t, r.Timestamp.IsZero())
		case <-time.After(2 * time.Second):
			t.Fatalf("no reading %d", i)
		}
	}

	dev := mock.Instrument()
	require.NotNil(t, dev)
	assert.Equal(t, sensor.Sensing, dev.Instrument.State())
	assert.Eventually(t, dev.Status.On, time.Second, 5*time.Millisecond)
}

func TestMock_StopHaltsReadings(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	require.NoError(t, mock.Start())
	select {
	case <-mock.Readings():
	case <-time.After(2 * time.Second):
		t.Fatal("no reading after start")
	}

	require.NoError(t, mock.Stop())
	dev := mock.Instrument()
	assert.Eventually(t, func() bool {
		return dev.Instrument.State() == sensor.Idle
	}, time.Second, 5*time.Millisecond)

	// Drain whatever was in flight, then expect silence.
	time.Sleep(100 * time.Millisecond)
	for len(mock.Readings()) > 0 {
		<-mock.Readings()
	}
	select {
	case r := <-mock.Readings():
		t.Fatalf("unexpected reading after stop: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMock_TestFrame(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	require.NoError(t, mock.Start())
	select {
	case <-mock.Readings():
	case <-time.After(2 * time.Second):
		t.Fatal("no reading after start")
	}
	require.NoError(t, mock.Stop())
	require.NoError(t, mock.RequestTest())

	assert.Eventually(t, func() bool {
		return mock.LastTestValue() > 21999
	}, time.Second, 5*time.Millisecond)
}

func TestMock_ThesisVariantHasNoReset(t *testing.T) {
	cfg := mockConfig()
	cfg.Commands.Variant = sensor.VariantThesis

	mock, err := NewMock(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	defer mock.Close()

	assert.Error(t, mock.RequestInfo())
	require.NoError(t, mock.Start())
	select {
	case r := <-mock.Readings():
		assert.InDelta(t, 22000, r.Resistance, 1.0)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading after start")
	}
}

func TestMock_CloseIdempotent(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())

	assert.NoError(t, mock.Close())
	assert.NoError(t, mock.Close())
	assert.False(t, mock.IsConnected())
}

func TestMock_Reconnect(t *testing.T) {
	mock, err := NewMock(mockConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.Connect())
	first := mock.Readings()
	require.NoError(t, mock.Close())

	_, ok := <-first
	assert.False(t, ok, "readings channel is closed by Close")

	require.NoError(t, mock.Connect())
	defer mock.Close()
	require.NoError(t, mock.Start())

	select {
	case r, ok := <-mock.Readings():
		require.True(t, ok)
		assert.InDelta(t, 22000, r.Resistance, 1.0)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading after reconnect")
	}
}

func TestCommandsFromTable(t *testing.T) {
	c := DefaultCommands()
	assert.Equal(t, Commands{Connect: 'c', Start: 'm', Stop: 's', Reset: 'r', Test: 'u'}, c)

	c = CommandsFromTable(sensor.ThesisTable())
	assert.Equal(t, Commands{Connect: 'v', Start: 'r', Stop: 's'}, c)
}

func TestRoundMilli(t *testing.T) {
	assert.Equal(t, 5005.0, roundMilli(5005.0000001))
	assert.Equal(t, 1.235, roundMilli(1.2345001))
}
