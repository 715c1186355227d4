package sensor

import (
	"fmt"
	"sync"
)

// fakeFrontEnd models the analog chain: counts = offset + microamps*gain[ch]
// while the source is on, offset otherwise.
type fakeFrontEnd struct {
	mu     sync.Mutex
	calls  []string
	ch     Channel
	on     bool
	ua     uint8
	offset int32
	gain   [2]int32 // counts per microamp
	stall  bool
	ready  bool
	result int32
}

func newFakeFrontEnd(offset, refGain, senseGain int32) *fakeFrontEnd {
	return &fakeFrontEnd{offset: offset, gain: [2]int32{refGain, senseGain}}
}

func (f *fakeFrontEnd) peripherals() FrontEnd {
	return FrontEnd{Mux: f, Source: f, ADC: f}
}

func (f *fakeFrontEnd) record(s string) {
	f.calls = append(f.calls, s)
}

func (f *fakeFrontEnd) Select(ch Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = ch
	f.record("select " + ch.String())
}

func (f *fakeFrontEnd) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = true
	f.record("start")
}

func (f *fakeFrontEnd) SetMicroamps(ua uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ua = ua
	f.record(fmt.Sprintf("current %d", ua))
}

func (f *fakeFrontEnd) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.ua = 0
	f.record("stop")
}

func (f *fakeFrontEnd) StartConvert() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = f.offset
	if f.on {
		f.result += int32(f.ua) * f.gain[f.ch]
	}
	f.ready = true
	f.record("convert")
}

func (f *fakeFrontEnd) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready && !f.stall
}

func (f *fakeFrontEnd) Result() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = false
	return f.result
}

func (f *fakeFrontEnd) sourceOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

func (f *fakeFrontEnd) setStall(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stall = v
}

// fakePort is an in-memory UART.
type fakePort struct {
	mu     sync.Mutex
	rx     []byte
	tx     []byte
	writes int
	fail   error
}

func (p *fakePort) push(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, b...)
}

func (p *fakePort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, ErrRxEmpty
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return 0, p.fail
	}
	p.tx = append(p.tx, b...)
	p.writes++
	return len(b), nil
}

// take returns and clears everything written so far.
func (p *fakePort) take() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.tx
	p.tx = nil
	return out
}

type fakeLED struct {
	mu  sync.Mutex
	on  bool
	set int
}

func (l *fakeLED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = on
	l.set++
}

func (l *fakeLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
