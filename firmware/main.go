//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/glutensense/pkg/protocol"
	"github.com/itohio/glutensense/pkg/sensor"
)

var uart = machine.UART0

// pinLED drives an indicator output.
type pinLED struct{ pin machine.Pin }

func (l pinLED) Set(on bool) { l.pin.Set(on) }

// mux selects the ADC input through the analog switch.
type mux struct{ sel machine.Pin }

func (m mux) Select(ch sensor.Channel) { m.sel.Set(ch == sensor.SenseChannel) }

// currentSource is a DAC-driven V-to-I stage gated by an enable pin.
type currentSource struct {
	en  machine.Pin
	dac machine.DAC
}

func (c currentSource) Start() { c.en.High() }

func (c currentSource) SetMicroamps(ua uint8) {
	c.dac.Set(uint16(uint32(ua) * 0xFFFF / DAC_UA_FULL))
}

func (c currentSource) Stop() {
	c.dac.Set(0)
	c.en.Low()
}

// converter wraps the blocking SAMD21 ADC; a conversion completes inside
// StartConvert.
type converter struct {
	adc    machine.ADC
	result int32
	ready  bool
}

func (c *converter) StartConvert() {
	c.result = int32(c.adc.Get() >> (16 - ADC_RESOLUTION))
	c.ready = true
}

func (c *converter) Ready() bool { return c.ready }

func (c *converter) Result() int32 {
	c.ready = false
	return c.result
}

func main() {
	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	PIN_ISRC_EN.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_MUX_SEL.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_STATUS_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_USER_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	machine.InitADC()
	adc := machine.ADC{Pin: PIN_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	dac := machine.DAC0
	dac.Configure(machine.DACConfig{})

	ratio, err := sensor.Ratio(TICK_PERIOD, SAMPLE_RATE)
	if err != nil {
		panic(err)
	}

	in := sensor.New(sensor.Options{
		Port: uart,
		FrontEnd: sensor.FrontEnd{
			Mux:    mux{sel: PIN_MUX_SEL},
			Source: currentSource{en: PIN_ISRC_EN, dac: dac},
			ADC:    &converter{adc: adc},
		},
		Status:  pinLED{PIN_STATUS_LED},
		UserLED: pinLED{PIN_USER_LED},
		Table:   sensor.GUITable(),
		Pipeline: sensor.PipelineConfig{
			Microamps:          CURRENT_UA,
			ReferenceOhms:      REFERENCE_OHMS,
			ConversionTimeout:  CONV_TIMEOUT,
			MinReferenceCounts: MIN_REF_COUNTS,
		},
		Ratio:      ratio,
		SampleRate: SAMPLE_RATE,
		Handshake:  protocol.Handshake(sensor.DefaultHandshakeName),
	})

	ctx := context.Background()

	go sensor.RunTimer(ctx, TICK_PERIOD, in.OnTimer)

	// The UART interrupt fills the driver ring buffer; raise the receive
	// event while bytes are waiting. Goroutines are cooperative here, so
	// the check and the raise are not split by the main loop.
	go func() {
		for {
			if uart.Buffered() > 0 {
				in.OnReceive()
			}
			time.Sleep(RX_POLL)
		}
	}()

	in.Run(ctx)
}
