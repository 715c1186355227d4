package gsense

// Device defines the interface for GlutenSense instruments (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Readings() <-chan Reading
	Start() error
	Stop() error
	RequestInfo() error
	Send(cmd byte) error
	SampleRate() int
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
