//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Timing
	TICK_PERIOD  = 5 * time.Millisecond // base timer period
	SAMPLE_RATE  = 40                   // Hz, 5 ticks per sample
	RX_POLL      = time.Millisecond
	CONV_TIMEOUT = 100 * time.Millisecond

	// Measurement
	REFERENCE_OHMS   = 10010 // reference resistor
	CURRENT_UA       = 50    // excitation current
	DAC_UA_FULL      = 255   // current at full-scale DAC output
	MIN_REF_COUNTS   = 16    // below this the reference path is open
	ADC_REFERENCE_MV = 3300
	ADC_RESOLUTION   = 12

	// Current source: DAC drives a V-to-I stage, enable gates it.
	PIN_ISRC_EN = machine.D7

	// Analog switch select: low = reference, high = sensor.
	PIN_MUX_SEL = machine.D8

	// ADC input after the switch.
	PIN_ADC = machine.A1

	// Indicators
	PIN_STATUS_LED = machine.LED
	PIN_USER_LED   = machine.D9

	UART_BAUD_RATE = 115200
)
