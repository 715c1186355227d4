package sim

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/sensor"
	"github.com/itohio/glutensense/pkg/sensor/setup"
)

// Device is a complete simulated instrument: the acquisition core wired to
// a simulated front end and indicators, talking over a byte stream.
type Device struct {
	Instrument *sensor.Instrument
	FrontEnd   *FrontEnd
	Status     *LED
	UserLED    *LED

	port *sensor.StreamPort
	tick time.Duration
	log  *zap.Logger
}

// NewDevice builds a simulated instrument on rw from cfg.
func NewDevice(cfg *config.Config, rw io.ReadWriter, log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := setup.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	fe := NewFrontEnd(cfg.Mock, cfg.Measurement.ReferenceResistor)
	d := &Device{
		FrontEnd: fe,
		Status:   &LED{},
		UserLED:  &LED{},
		port:     sensor.NewStreamPort(rw, cfg.Acquisition.RxFIFO),
		tick:     cfg.Acquisition.TickPeriod,
		log:      log,
	}

	opts.Port = d.port
	opts.FrontEnd = fe.Peripherals()
	opts.Status = d.Status
	opts.UserLED = d.UserLED
	opts.Logger = log.Named("instrument")
	d.Instrument = sensor.New(opts)
	return d, nil
}

// Run starts the timer and receive event sources and runs the main loop
// until ctx is cancelled or the stream fails. The receive source stays
// blocked in Read until the caller closes the stream. A stream closed by
// the peer (io.EOF) ends the run without error.
func (d *Device) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sensor.RunTimer(runCtx, d.tick, d.Instrument.OnTimer)
	}()

	errc := make(chan error, 1)
	go func() {
		defer cancel()
		errc <- d.port.Listen(runCtx, d.Instrument.OnReceive)
	}()

	d.Instrument.Run(runCtx)
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}

	// The run context was cancelled by the receive source.
	err := <-errc
	if err != nil && !errors.Is(err, io.EOF) {
		d.log.Debug("stream failed", zap.Error(err))
		return err
	}
	return nil
}
