package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/itohio/glutensense/pkg/config"
)

func TestNew_Level(t *testing.T) {
	log, closeLog, err := New(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	defer closeLog()
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsense.log")

	log, closeLog, err := New(config.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)
	log.Info("hello")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	// The file is released, so it can be removed and recreated.
	require.NoError(t, os.Remove(path))
	log, closeLog, err = New(config.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)
	log.Debug("again")
	closeLog()

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "again")
	assert.NotContains(t, string(data), "hello")
}

func TestNew_BadFile(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "info", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
