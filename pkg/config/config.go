package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Commands    CommandsConfig    `yaml:"commands"`
	Log         LogConfig         `yaml:"log"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // handshake wait during scan
}

// AcquisitionConfig contains the event timing of the instrument.
type AcquisitionConfig struct {
	TickPeriod        time.Duration `yaml:"tick_period"`        // base timer period
	SampleRate        int           `yaml:"sample_rate"`        // Hz
	ConversionTimeout time.Duration `yaml:"conversion_timeout"` // 0 waits forever
	RxFIFO            int           `yaml:"rx_fifo"`
}

// MeasurementConfig contains the analog front end parameters.
type MeasurementConfig struct {
	ReferenceResistor  float64 `yaml:"reference_resistor"` // ohm
	CurrentMicroamps   int     `yaml:"current_microamps"`
	MinReferenceCounts int32   `yaml:"min_reference_counts"`
}

// CommandsConfig selects the host command letters.
type CommandsConfig struct {
	Variant   string         `yaml:"variant"`   // "gui" or "thesis"
	Handshake string         `yaml:"handshake"` // device name in the connection string, empty uses the variant's
	Table     []CommandEntry `yaml:"table"`     // overrides Variant when set
}

// CommandEntry binds a one-character trigger to an action name.
type CommandEntry struct {
	Trigger string `yaml:"trigger"`
	Action  string `yaml:"action"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RecorderConfig controls CSV export of measurement sessions.
type RecorderConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	Identifier string `yaml:"identifier"`
}

// MonitorConfig controls the websocket reading stream.
type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables
}

// AnalysisConfig controls host-side processing of the reading stream.
type AnalysisConfig struct {
	AverageSamples    int     `yaml:"average_samples"`    // moving average window, 1 disables
	WindowSeconds     float64 `yaml:"window_seconds"`     // history kept for analysis and display
	ResponseThreshold float64 `yaml:"response_threshold"` // relative change from baseline that marks an exposure
	MinEventDuration  float64 `yaml:"min_event_duration"` // seconds
	BaselineAlpha     float64 `yaml:"baseline_alpha"`     // baseline tracking weight outside exposures
}

// MockConfig contains simulated instrument configuration.
type MockConfig struct {
	BaselineOhms   float64       `yaml:"baseline_ohms"`   // sensor resistance in clean air
	ResponseOhms   float64       `yaml:"response_ohms"`   // added during exposure
	ExposureStart  time.Duration `yaml:"exposure_start"`  // first exposure after start
	ExposureTime   time.Duration `yaml:"exposure_time"`   // exposure length, 0 disables
	ExposurePeriod time.Duration `yaml:"exposure_period"` // time between exposure starts
	OffsetCounts   int32         `yaml:"offset_counts"`   // ADC offset
	CountsPerVolt  float64       `yaml:"counts_per_volt"` // ADC gain
	NoiseCounts    float64       `yaml:"noise_counts"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "COM3", // Default for Windows, "/dev/ttyACM0" on Linux
			BaudRate:    115200,
			ReadTimeout: 2 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			TickPeriod:        5 * time.Millisecond,
			SampleRate:        40,
			ConversionTimeout: 100 * time.Millisecond,
			RxFIFO:            4,
		},
		Measurement: MeasurementConfig{
			ReferenceResistor:  10010,
			CurrentMicroamps:   50,
			MinReferenceCounts: 1,
		},
		Commands: CommandsConfig{
			Variant: "gui",
		},
		Log: LogConfig{
			Level: "info",
		},
		Recorder: RecorderConfig{
			Enabled: false,
			Dir:     "Data",
		},
		Analysis: AnalysisConfig{
			AverageSamples:    1,
			WindowSeconds:     120,
			ResponseThreshold: 0.05,
			MinEventDuration:  1,
			BaselineAlpha:     0.02,
		},
		Mock: MockConfig{
			BaselineOhms:   22000,
			ResponseOhms:   3500,
			ExposureStart:  10 * time.Second,
			ExposureTime:   20 * time.Second,
			ExposurePeriod: 60 * time.Second,
			OffsetCounts:   1200,
			CountsPerVolt:  1 << 20,
			NoiseCounts:    0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	a := c.Acquisition
	if a.TickPeriod <= 0 || a.SampleRate <= 0 {
		return fmt.Errorf("%w: tick period and sample rate must be positive", ErrInvalid)
	}
	if a.SampleRate > 255 {
		return fmt.Errorf("%w: sample rate %d does not fit the reset frame", ErrInvalid, a.SampleRate)
	}
	if (time.Second/time.Duration(a.SampleRate))%a.TickPeriod != 0 {
		return fmt.Errorf("%w: sample rate %d Hz is not a whole number of %v ticks", ErrInvalid, a.SampleRate, a.TickPeriod)
	}
	if c.Measurement.CurrentMicroamps <= 0 || c.Measurement.CurrentMicroamps > 255 {
		return fmt.Errorf("%w: current %d uA out of range", ErrInvalid, c.Measurement.CurrentMicroamps)
	}
	if c.Measurement.ReferenceResistor <= 0 {
		return fmt.Errorf("%w: reference resistor must be positive", ErrInvalid)
	}
	if c.Analysis.BaselineAlpha < 0 || c.Analysis.BaselineAlpha > 1 {
		return fmt.Errorf("%w: baseline alpha %g must be within 0..1", ErrInvalid, c.Analysis.BaselineAlpha)
	}
	for i, e := range c.Commands.Table {
		if len(e.Trigger) != 1 || e.Trigger == " " {
			return fmt.Errorf("%w: command %d trigger %q must be one non-space byte", ErrInvalid, i, e.Trigger)
		}
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if c.Acquisition.TickPeriod == 0 {
		c.Acquisition.TickPeriod = def.Acquisition.TickPeriod
	}
	if c.Acquisition.SampleRate == 0 {
		c.Acquisition.SampleRate = def.Acquisition.SampleRate
	}
	if c.Acquisition.RxFIFO == 0 {
		c.Acquisition.RxFIFO = def.Acquisition.RxFIFO
	}

	if c.Measurement.ReferenceResistor == 0 {
		c.Measurement.ReferenceResistor = def.Measurement.ReferenceResistor
	}
	if c.Measurement.CurrentMicroamps == 0 {
		c.Measurement.CurrentMicroamps = def.Measurement.CurrentMicroamps
	}
	if c.Measurement.MinReferenceCounts == 0 {
		c.Measurement.MinReferenceCounts = def.Measurement.MinReferenceCounts
	}

	if c.Commands.Variant == "" {
		c.Commands.Variant = def.Commands.Variant
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Recorder.Dir == "" {
		c.Recorder.Dir = def.Recorder.Dir
	}

	if c.Analysis.AverageSamples == 0 {
		c.Analysis.AverageSamples = def.Analysis.AverageSamples
	}
	if c.Analysis.WindowSeconds == 0 {
		c.Analysis.WindowSeconds = def.Analysis.WindowSeconds
	}
	if c.Analysis.ResponseThreshold == 0 {
		c.Analysis.ResponseThreshold = def.Analysis.ResponseThreshold
	}
	if c.Analysis.BaselineAlpha == 0 {
		c.Analysis.BaselineAlpha = def.Analysis.BaselineAlpha
	}

	if c.Mock.BaselineOhms == 0 {
		c.Mock.BaselineOhms = def.Mock.BaselineOhms
	}
	if c.Mock.CountsPerVolt == 0 {
		c.Mock.CountsPerVolt = def.Mock.CountsPerVolt
	}
	if c.Mock.ExposurePeriod == 0 {
		c.Mock.ExposurePeriod = def.Mock.ExposurePeriod
	}
}
