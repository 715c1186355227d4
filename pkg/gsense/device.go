package gsense

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/protocol"
)

// ErrNoInstrument is returned by Scan when no port answers the handshake.
var ErrNoInstrument = errors.New("no instrument found")

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to a GlutenSense instrument.
type Serial struct {
	*session

	port     string
	baudRate int
}

// New creates a new Serial device on the given port. Zero values select
// the defaults.
func New(port string, baudRate int, bufSize int, cmds Commands, log *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		session:  newSession(cmds, bufSize, log),
		port:     port,
		baudRate: baudRate,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Probe opens name, sends the connect command and waits up to timeout for
// the handshake line. It returns the handshake text on success.
func Probe(name string, baudRate int, timeout time.Duration, connect byte) (string, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return "", fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(timeout); err != nil {
		return "", fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	_ = port.ResetInputBuffer()
	if _, err := port.Write([]byte{connect}); err != nil {
		return "", fmt.Errorf("failed to send connect command: %w", err)
	}

	line, err := bufio.NewReader(port).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no handshake from %s: %w", name, err)
	}
	if !protocol.IsHandshake(line) {
		return "", fmt.Errorf("unexpected handshake from %s: %q", name, strings.TrimSpace(line))
	}
	return strings.TrimSpace(line), nil
}

// Scan probes every available port and returns the first one that answers
// with a handshake.
func Scan(baudRate int, timeout time.Duration, connect byte, log *zap.Logger) (Port, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ports, err := Ports()
	if err != nil {
		return Port{}, err
	}
	for _, p := range ports {
		hs, err := Probe(p.Name, baudRate, timeout, connect)
		if err != nil {
			log.Debug("probe failed", zap.String("port", p.Name), zap.Error(err))
			continue
		}
		log.Info("instrument found", zap.String("port", p.Name), zap.String("handshake", hs))
		p.Description = hs
		return p, nil
	}
	return Port{}, ErrNoInstrument
}

// Connect opens the serial port, starts reading frames and asks the
// instrument for its sample rate.
func (d *Serial) Connect() error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	d.attach(conn)
	d.mu.Unlock()

	d.log.Info("connected", zap.String("port", d.port), zap.Int("baud", d.baudRate))
	if d.cmds.Reset != 0 {
		return d.RequestInfo()
	}
	return nil
}

// Close stops reading and closes the serial port and the readings channel.
func (d *Serial) Close() error {
	return d.detach()
}
