package sensor

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/itohio/glutensense/pkg/protocol"
)

// DefaultHandshakeName identifies the instrument in its connection string.
const DefaultHandshakeName = "Gluten"

// maxBytesPerEvent bounds command intake per loop iteration.
const maxBytesPerEvent = 16

// Options configures an Instrument.
type Options struct {
	Port       Port
	FrontEnd   FrontEnd
	Status     Indicator // on while sensing
	UserLED    Indicator // toggled by ActionLED
	Table      *Table
	Pipeline   PipelineConfig
	Ratio      int   // timer ticks per sample
	SampleRate uint8 // Hz, reported in the reset frame
	Handshake  string
	Logger     *zap.Logger
}

// Stats are counters maintained by the main loop.
type Stats struct {
	Ticks      uint64
	Samples    uint64
	Frames     uint64
	Ignored    uint64
	Interrupts uint64
	Faults     uint64
}

// Instrument is the acquisition controller. OnReceive and OnTimer are the
// event-source entry points and may run concurrently with the main loop;
// every other method belongs to the main loop.
type Instrument struct {
	port      Port
	status    Indicator
	userLED   Indicator
	table     *Table
	pipeline  *Pipeline
	handshake string
	rate      uint8
	log       *zap.Logger

	events Events
	clock  *SampleClock
	state  stateCell

	ledOn bool
	last  float32
	out   []byte

	ticks, samples, frames, ignored, interrupts, faults atomic.Uint64
}

// New returns an Instrument in the Idle state.
func New(opts Options) *Instrument {
	if opts.Status == nil {
		opts.Status = noIndicator{}
	}
	if opts.UserLED == nil {
		opts.UserLED = noIndicator{}
	}
	if opts.Table == nil {
		opts.Table = GUITable()
	}
	if opts.Handshake == "" {
		opts.Handshake = protocol.Handshake(DefaultHandshakeName)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	in := &Instrument{
		port:      opts.Port,
		status:    opts.Status,
		userLED:   opts.UserLED,
		table:     opts.Table,
		handshake: opts.Handshake,
		rate:      opts.SampleRate,
		log:       opts.Logger,
		out:       make([]byte, 0, 64),
	}
	in.clock = NewSampleClock(opts.Ratio, &in.events)
	in.pipeline = NewPipeline(opts.FrontEnd, opts.Pipeline, in.events.ByteReceived.Pending)
	in.events.Reset()
	in.state.Store(Idle)
	return in
}

// OnReceive is the receive event handler. A byte from the host always
// returns control to it, so any receive forces Idle.
func (in *Instrument) OnReceive() {
	in.events.ByteReceived.Raise()
	in.state.Store(Idle)
}

// OnTimer is the periodic timer event handler.
func (in *Instrument) OnTimer() {
	in.clock.Tick()
}

// State returns the current acquisition state.
func (in *Instrument) State() State {
	return in.state.Load()
}

// Clock exposes the sampling clock.
func (in *Instrument) Clock() *SampleClock {
	return in.clock
}

// Table returns the command table.
func (in *Instrument) Table() *Table {
	return in.table
}

// Stats returns a snapshot of the loop counters.
func (in *Instrument) Stats() Stats {
	return Stats{
		Ticks:      in.ticks.Load(),
		Samples:    in.samples.Load(),
		Frames:     in.frames.Load(),
		Ignored:    in.ignored.Load(),
		Interrupts: in.interrupts.Load(),
		Faults:     in.faults.Load(),
	}
}

// Run executes the main loop until ctx is cancelled.
func (in *Instrument) Run(ctx context.Context) error {
	in.log.Info("instrument running",
		zap.Int("ratio", in.clock.Period()),
		zap.Uint8("sampleRate", in.rate),
		zap.Int("commands", in.table.Len()))
	for {
		if err := ctx.Err(); err != nil {
			in.status.Set(false)
			return err
		}
		in.Step(ctx)
		runtime.Gosched()
	}
}

// Step runs one main-loop iteration: command intake, then the state-gated
// measurement.
func (in *Instrument) Step(ctx context.Context) {
	if in.events.ByteReceived.Take() {
		in.receive()
	}

	if in.events.TickElapsed.Take() {
		in.ticks.Add(1)
	}

	if in.state.Load() != Sensing {
		in.status.Set(false)
		return
	}

	in.status.Set(true)
	if in.events.SampleDue.Take() {
		in.sample(ctx)
	}
}

// receive drains the bytes behind a (possibly coalesced) receive event.
// An event may find the FIFO already drained by the previous one.
func (in *Instrument) receive() {
	for i := 0; i < maxBytesPerEvent; i++ {
		b, err := in.port.ReadByte()
		switch {
		case errors.Is(err, ErrRxEmpty):
			return
		case err != nil:
			in.log.Warn("read command byte", zap.Error(err))
			return
		}
		in.Dispatch(b)
	}
}

// Dispatch executes the first command bound to b. Unknown bytes are ignored.
func (in *Instrument) Dispatch(b byte) bool {
	cmd, ok := in.table.Lookup(b)
	if !ok {
		in.ignored.Add(1)
		return false
	}
	in.log.Debug("command", zap.String("trigger", string(rune(b))), zap.Stringer("action", cmd.Action))
	in.execute(cmd.Action)
	return true
}

func (in *Instrument) execute(a Action) {
	switch a {
	case ActionConnect:
		in.send([]byte(in.handshake))
	case ActionStart:
		in.clock.Arm()
		in.state.Store(Sensing)
	case ActionStop:
		in.state.Store(Idle)
	case ActionReset:
		in.send(protocol.AppendReset(in.out[:0], in.rate))
	case ActionTest:
		in.send(protocol.AppendTest(in.out[:0], in.last))
	case ActionHelp:
		for _, c := range in.table.entries {
			in.send([]byte(protocol.HelpLine(c.Trigger, c.Action.Description())))
		}
	case ActionLED:
		in.ledOn = !in.ledOn
		in.userLED.Set(in.ledOn)
	}
}

func (in *Instrument) sample(ctx context.Context) {
	r, err := in.pipeline.Measure(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrInterrupted):
		in.interrupts.Add(1)
		return
	case errors.Is(err, ErrReferenceFault):
		in.faults.Add(1)
		in.log.Warn("reference fault, sample dropped", zap.Int32("vref", r.Vref), zap.Int32("vsense", r.Vsense))
		return
	case errors.Is(err, ErrConversionTimeout):
		in.faults.Add(1)
		in.state.Store(Idle)
		in.log.Error("adc stalled, acquisition stopped", zap.Error(err))
		return
	default:
		in.log.Debug("measurement aborted", zap.Error(err))
		return
	}

	in.samples.Add(1)
	in.last = r.Resistance
	integer, fraction := Split(r.Resistance)
	in.send(protocol.AppendResistance(in.out[:0], integer, fraction))
}

func (in *Instrument) send(b []byte) {
	if _, err := in.port.Write(b); err != nil {
		in.log.Warn("write frame", zap.Error(err))
		return
	}
	in.frames.Add(1)
}
