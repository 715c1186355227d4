package sensor

// Channel selects the resistor measured by the analog multiplexer.
type Channel uint8

const (
	ReferenceChannel Channel = 0 // reference resistor
	SenseChannel     Channel = 1 // gas-sensitive element
)

func (c Channel) String() string {
	if c == ReferenceChannel {
		return "reference"
	}
	return "sense"
}

// Multiplexer routes one resistor to the ADC input.
type Multiplexer interface {
	Select(ch Channel)
}

// CurrentSource drives a programmable current (IDAC) through the selected
// resistor.
type CurrentSource interface {
	Start()
	SetMicroamps(ua uint8)
	Stop()
}

// Converter is a single-shot ADC. Ready reports conversion complete.
type Converter interface {
	StartConvert()
	Ready() bool
	Result() int32
}

// FrontEnd groups the analog peripherals used by the measurement pipeline.
type FrontEnd struct {
	Mux    Multiplexer
	Source CurrentSource
	ADC    Converter
}

// Port is the device side of the serial link. ReadByte is called only after
// a receive event and must not block.
type Port interface {
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
}

// Indicator is a single on/off output such as a status LED.
type Indicator interface {
	Set(on bool)
}

type noIndicator struct{}

func (noIndicator) Set(bool) {}
