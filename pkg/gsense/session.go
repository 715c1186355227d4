package gsense

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/protocol"
	"github.com/itohio/glutensense/pkg/sensor"
)

const (
	// DefaultBaudRate is the instrument UART rate.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the readings channel buffer.
	DefaultBufferSize = 100
	// DefaultSampleRate is assumed until the instrument reports its own.
	DefaultSampleRate = 40
)

// Reading is one resistance measurement received from the instrument.
type Reading struct {
	Timestamp  time.Time
	Resistance float64 // ohm, 3 decimals
	Integer    uint32
	Fraction   uint16
}

// Commands holds the trigger bytes the host sends.
type Commands struct {
	Connect byte
	Start   byte
	Stop    byte
	Reset   byte
	Test    byte
}

// DefaultCommands matches the GUI command variant.
func DefaultCommands() Commands {
	return CommandsFromTable(sensor.GUITable())
}

// CommandsFromTable picks the trigger for every host-side action in t.
// Actions missing from t map to 0, which Send refuses.
func CommandsFromTable(t *sensor.Table) Commands {
	var c Commands
	c.Connect, _ = t.Trigger(sensor.ActionConnect)
	c.Start, _ = t.Trigger(sensor.ActionStart)
	c.Stop, _ = t.Trigger(sensor.ActionStop)
	c.Reset, _ = t.Trigger(sensor.ActionReset)
	c.Test, _ = t.Trigger(sensor.ActionTest)
	return c
}

// session is the state shared by every Device implementation: the stream,
// the reading channel, and the frame reader goroutine.
type session struct {
	cmds     Commands
	bufSize  int
	readings chan Reading
	log      *zap.Logger

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool // readings was closed by detach
	done      chan struct{}

	rate     atomic.Int32
	lastTest atomic.Uint32
	dropped  atomic.Uint64
}

func newSession(cmds Commands, bufSize int, log *zap.Logger) *session {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &session{
		cmds:     cmds,
		bufSize:  bufSize,
		readings: make(chan Reading, bufSize),
		log:      log,
	}
	s.rate.Store(DefaultSampleRate)
	return s
}

// attach starts reading frames from conn. Caller holds s.mu. After a
// detach the session gets a fresh readings channel.
func (s *session) attach(conn io.ReadWriteCloser) {
	if s.closed {
		s.readings = make(chan Reading, s.bufSize)
		s.closed = false
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	go s.readFrames(s.ctx, conn, s.readings, s.done)
}

// detach stops the reader and closes the stream and the readings channel.
func (s *session) detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.cancel()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	s.connected = false

	// The reader may be mid-send; wait for it before closing the channel.
	<-s.done
	close(s.readings)
	s.closed = true

	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Readings returns the channel of received measurements. It is closed by
// Close; a later Connect starts a new one.
func (s *session) Readings() <-chan Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings
}

// IsConnected returns whether the device is currently connected.
func (s *session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SampleRate returns the last rate reported by a reset frame.
func (s *session) SampleRate() int {
	return int(s.rate.Load())
}

// LastTestValue returns the payload of the last diagnostic frame.
func (s *session) LastTestValue() float32 {
	return math32.Float32frombits(s.lastTest.Load())
}

// Dropped counts readings discarded because the channel was full.
func (s *session) Dropped() uint64 {
	return s.dropped.Load()
}

// Send writes a single command byte.
func (s *session) Send(cmd byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return fmt.Errorf("not connected")
	}
	if cmd == 0 {
		return fmt.Errorf("command not available in this command set")
	}
	if _, err := s.conn.Write([]byte{cmd}); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	s.log.Debug("sent command", zap.String("cmd", string(rune(cmd))))
	return nil
}

// Start asks the instrument to start measuring.
func (s *session) Start() error { return s.Send(s.cmds.Start) }

// Stop asks the instrument to stop measuring.
func (s *session) Stop() error { return s.Send(s.cmds.Stop) }

// RequestInfo asks for a reset frame carrying the sample rate.
func (s *session) RequestInfo() error { return s.Send(s.cmds.Reset) }

// RequestTest asks for a diagnostic frame.
func (s *session) RequestTest() error { return s.Send(s.cmds.Test) }

func (s *session) readFrames(ctx context.Context, r io.Reader, readings chan<- Reading, done chan struct{}) {
	defer close(done)

	err := protocol.ReadFrames(r, func(f protocol.Frame) {
		switch f.Kind {
		case protocol.KindReset:
			s.rate.Store(int32(f.SampleRate))
			s.log.Info("instrument sample rate", zap.Uint8("hz", f.SampleRate))
		case protocol.KindTest:
			s.lastTest.Store(math32.Float32bits(f.Value))
		case protocol.KindResistance:
			reading := Reading{
				Timestamp:  time.Now(),
				Resistance: roundMilli(f.Resistance()),
				Integer:    f.Integer,
				Fraction:   f.Fraction,
			}
			select {
			case readings <- reading:
			case <-ctx.Done():
			default:
				s.dropped.Add(1)
				s.log.Warn("readings channel full, dropping reading")
			}
		}
	})
	if err != nil && ctx.Err() == nil && !errors.Is(err, io.ErrClosedPipe) {
		s.log.Error("error reading from instrument", zap.Error(err))
	}
}

func roundMilli(v float64) float64 {
	return math.Round(v*1000) / 1000
}
