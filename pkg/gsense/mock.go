package gsense

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/sensor/setup"
	"github.com/itohio/glutensense/pkg/sim"
)

// Mock runs a simulated instrument in-process and talks to it over a pipe
// using the same wire protocol as a real device.
type Mock struct {
	*session

	cfg    *config.Config
	device *sim.Device
	remote net.Conn
	stop   context.CancelFunc
	exited chan error
}

// NewMock creates a mocked device. A nil cfg uses config.Default().
func NewMock(cfg *config.Config, log *zap.Logger) (*Mock, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	table, err := setup.TableFromConfig(cfg.Commands)
	if err != nil {
		return nil, err
	}
	return &Mock{
		session: newSession(CommandsFromTable(table), DefaultBufferSize, log),
		cfg:     cfg,
	}, nil
}

// Instrument returns the simulated device once connected.
func (m *Mock) Instrument() *sim.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// Connect starts the simulated instrument and asks it for its sample rate.
func (m *Mock) Connect() error {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return fmt.Errorf("already connected")
	}

	host, remote := net.Pipe()
	dev, err := sim.NewDevice(m.cfg, remote, m.log.Named("sim"))
	if err != nil {
		m.mu.Unlock()
		host.Close()
		remote.Close()
		return fmt.Errorf("create simulated device: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	m.device = dev
	m.remote = remote
	m.stop = stop
	m.exited = make(chan error, 1)
	go func() {
		m.exited <- dev.Run(ctx)
	}()

	m.attach(host)
	m.mu.Unlock()

	if m.cmds.Reset != 0 {
		return m.RequestInfo()
	}
	return nil
}

// Close stops the simulated instrument and closes the readings channel.
func (m *Mock) Close() error {
	if !m.IsConnected() {
		return nil
	}
	err := m.detach()

	m.stop()
	m.remote.Close()
	if runErr := <-m.exited; runErr != nil {
		m.log.Debug("simulated device stopped", zap.Error(runErr))
	}
	return err
}
