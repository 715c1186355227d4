package sensor

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// DefaultTickPeriod is the base timer period.
const DefaultTickPeriod = 5 * time.Millisecond

// ErrRxEmpty is returned by ReadByte when no received byte is buffered.
var ErrRxEmpty = errors.New("rx fifo empty")

// StreamPort adapts a blocking io.ReadWriter (a serial port, a pipe) to a
// Port with a small receive FIFO, emulating a UART with an RX interrupt.
// Bytes that arrive while the FIFO is full are dropped. Queueing a byte and
// running its receive handler happen under rmu, so the main loop cannot
// read a byte before its handler ran, as with a hardware RX interrupt.
type StreamPort struct {
	rw  io.ReadWriter
	rx  chan byte
	rmu sync.Mutex
	wmu sync.Mutex
}

// DefaultRxFIFO is the receive FIFO depth.
const DefaultRxFIFO = 4

// NewStreamPort wraps rw. depth <= 0 uses DefaultRxFIFO.
func NewStreamPort(rw io.ReadWriter, depth int) *StreamPort {
	if depth <= 0 {
		depth = DefaultRxFIFO
	}
	return &StreamPort{
		rw: rw,
		rx: make(chan byte, depth),
	}
}

// Listen reads rw until it fails or ctx is done, pushing bytes into the
// FIFO and calling onReceive after each one. It returns the read error.
func (p *StreamPort) Listen(ctx context.Context, onReceive func()) error {
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.rw.Read(buf)
		if n == 1 {
			p.rmu.Lock()
			select {
			case p.rx <- buf[0]:
			default:
			}
			onReceive()
			p.rmu.Unlock()
		}
		if err != nil {
			return err
		}
	}
}

// ReadByte pops the oldest received byte. It waits only for a receive
// handler in progress, never for data.
func (p *StreamPort) ReadByte() (byte, error) {
	p.rmu.Lock()
	defer p.rmu.Unlock()
	select {
	case b := <-p.rx:
		return b, nil
	default:
		return 0, ErrRxEmpty
	}
}

// Write sends p to the stream.
func (p *StreamPort) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.rw.Write(b)
}

// RunTimer calls onTick every period until ctx is cancelled.
func RunTimer(ctx context.Context, period time.Duration, onTick func()) {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onTick()
		}
	}
}
