package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/itohio/glutensense/pkg/config"
)

// New builds a logger writing to stderr and, when cfg.File is set, to that
// file as well. The returned func flushes the logger and closes the file;
// call it once on exit.
func New(cfg config.LogConfig) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	closeFile := func() {}
	if cfg.File != "" {
		sink, closeSink, err := zap.Open(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFile = closeSink
		cores = append(cores, zapcore.NewCore(encoder, sink, level))
	}

	log := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return log, func() {
		_ = log.Sync() // stderr sync fails on some terminals
		closeFile()
	}, nil
}
