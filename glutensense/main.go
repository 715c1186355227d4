package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/gsense"
	"github.com/itohio/glutensense/pkg/logging"
	"github.com/itohio/glutensense/pkg/meter"
	"github.com/itohio/glutensense/pkg/monitor"
	"github.com/itohio/glutensense/pkg/recorder"
	"github.com/itohio/glutensense/pkg/sample"
	"github.com/itohio/glutensense/pkg/sensor/setup"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated instrument instead of serial port")
		scanFlag     = flag.Bool("scan", false, "Find the instrument by probing every serial port")
		csvFlag      = flag.Bool("csv", false, "Export the session to CSV on exit")
		idFlag       = flag.String("id", "", "Session identifier written into the CSV file")
		listenFlag   = flag.String("listen", "", "Serve live readings over websocket (e.g. :8080)")
		durationFlag = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
		averageFlag  = flag.Int("average", 0, "Moving average window in readings (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *csvFlag {
		cfg.Recorder.Enabled = true
	}
	if *idFlag != "" {
		cfg.Recorder.Identifier = *idFlag
	}
	if *listenFlag != "" {
		cfg.Monitor.ListenAddr = *listenFlag
	}
	if *averageFlag > 0 {
		cfg.Analysis.AverageSamples = *averageFlag
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *durationFlag > 0 {
		ctx, cancel = context.WithTimeout(ctx, *durationFlag)
		defer cancel()
	}

	if err := run(ctx, cfg, *mockFlag, *scanFlag, log); err != nil {
		log.Error("session failed", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func openDevice(cfg *config.Config, mock, scan bool, log *zap.Logger) (gsense.Device, error) {
	if mock {
		return gsense.NewMock(cfg, log.Named("mock"))
	}

	table, err := setup.TableFromConfig(cfg.Commands)
	if err != nil {
		return nil, err
	}
	cmds := gsense.CommandsFromTable(table)

	if scan {
		port, err := gsense.Scan(cfg.Serial.BaudRate, cfg.Serial.ReadTimeout, cmds.Connect, log)
		if err != nil {
			return nil, err
		}
		cfg.Serial.Port = port.Name
	}
	return gsense.New(cfg.Serial.Port, cfg.Serial.BaudRate, gsense.DefaultBufferSize, cmds, log.Named("serial")), nil
}

func run(ctx context.Context, cfg *config.Config, mock, scan bool, log *zap.Logger) error {
	dev, err := openDevice(cfg, mock, scan, log)
	if err != nil {
		return fmt.Errorf("open instrument: %w", err)
	}
	if err := dev.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer dev.Close()

	m := meter.New(cfg.Analysis)
	m.OnEvent(func(e meter.Event) {
		log.Info("exposure detected",
			zap.Time("start", e.StartTime),
			zap.Duration("duration", e.Duration()),
			zap.Float64("baseline", e.Baseline),
			zap.Float64("peak", e.Peak),
			zap.Float64("response", e.Response),
		)
	})

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec = recorder.New(cfg.Recorder, log.Named("recorder"))
	}

	var mon *monitor.Server
	if cfg.Monitor.ListenAddr != "" {
		mon = monitor.New(log.Named("monitor"))
		mon.SetHistory(m)
		go func() {
			if err := mon.Run(ctx, cfg.Monitor.ListenAddr); err != nil {
				log.Error("monitor stopped", zap.Error(err))
			}
		}()
	}

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start measurement: %w", err)
	}
	log.Info("measuring",
		zap.Bool("mock", mock),
		zap.String("port", cfg.Serial.Port),
		zap.Int("average", cfg.Analysis.AverageSamples),
	)

	// instrument -> average -> tee -> meter and sinks
	branches := sample.Tee(sample.NewAverager(cfg.Analysis.AverageSamples, 0)(forward(ctx, dev.Readings(), log)), 2, 0)
	meterDone := make(chan struct{})
	go func() {
		defer close(meterDone)
		m.Process(branches[0])
	}()

	count := 0
	for r := range branches[1] {
		count++
		rate := dev.SampleRate()
		if rec != nil {
			rec.SetSampleRate(rate)
			rec.Add(r.Timestamp, r.Resistance)
		}
		if mon != nil {
			mon.SetSampleRate(rate)
			mon.Publish(r)
		}
		log.Debug("reading", zap.Float64("ohm", r.Resistance))
	}
	<-meterDone

	if dev.IsConnected() {
		if err := dev.Stop(); err != nil {
			log.Warn("stop measurement", zap.Error(err))
		}
	}
	log.Info("session finished",
		zap.Int("readings", count),
		zap.Int("exposures", len(m.Events())),
		zap.Float64("baseline", m.Baseline()),
	)

	if rec != nil && rec.Len() > 0 {
		if _, err := rec.Export(time.Now()); err != nil {
			return fmt.Errorf("export session: %w", err)
		}
	}
	return nil
}

// forward copies instrument readings until ctx is done or the instrument
// stream closes, then closes the returned channel.
func forward(ctx context.Context, in <-chan gsense.Reading, log *zap.Logger) <-chan gsense.Reading {
	out := make(chan gsense.Reading, sample.DefaultBufSize)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-in:
				if !ok {
					log.Warn("instrument stream closed")
					return
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
