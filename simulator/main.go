package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/logging"
	"github.com/itohio/glutensense/pkg/sim"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port the host connects to through a null-modem pair")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		ohmsFlag   = flag.Float64("ohms", 0, "Fixed sensor resistance (0 = exposure profile)")
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

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	port, err := serial.Open(cfg.Serial.Port, &serial.Mode{BaudRate: cfg.Serial.BaudRate})
	if err != nil {
		log.Fatal("open serial port", zap.String("port", cfg.Serial.Port), zap.Error(err))
	}

	dev, err := sim.NewDevice(cfg, port, log)
	if err != nil {
		port.Close()
		log.Fatal("create simulated instrument", zap.Error(err))
	}
	if *ohmsFlag > 0 {
		dev.FrontEnd.SetSensorOhms(*ohmsFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Closing the port unblocks the receive source.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	log.Info("simulated instrument running", zap.String("port", cfg.Serial.Port))
	if err := dev.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("simulator stopped", zap.Error(err))
	}
	st := dev.Instrument.Stats()
	log.Info("simulator finished",
		zap.Uint64("samples", st.Samples),
		zap.Uint64("frames", st.Frames),
		zap.Uint64("faults", st.Faults))
}
