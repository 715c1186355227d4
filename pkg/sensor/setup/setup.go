// Package setup builds instrument options from the YAML configuration. It
// is kept out of package sensor so firmware builds do not link the config
// stack.
package setup

import (
	"fmt"

	"github.com/itohio/glutensense/pkg/config"
	"github.com/itohio/glutensense/pkg/protocol"
	"github.com/itohio/glutensense/pkg/sensor"
)

// TableFromConfig builds the command table: the explicit table when one is
// configured, the variant preset otherwise.
func TableFromConfig(cfg config.CommandsConfig) (*sensor.Table, error) {
	if len(cfg.Table) == 0 {
		return sensor.VariantTable(cfg.Variant)
	}

	cmds := make([]sensor.Command, 0, len(cfg.Table))
	for i, e := range cfg.Table {
		if len(e.Trigger) != 1 {
			return nil, fmt.Errorf("command %d: trigger %q must be a single byte", i, e.Trigger)
		}
		a, err := sensor.ParseAction(e.Action)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, sensor.Command{Trigger: e.Trigger[0], Action: a})
	}
	return sensor.NewTable(cmds...), nil
}

// OptionsFromConfig fills the configuration-derived fields of
// sensor.Options. The caller supplies the port, front end, indicators and
// logger.
func OptionsFromConfig(cfg *config.Config) (sensor.Options, error) {
	ratio, err := sensor.Ratio(cfg.Acquisition.TickPeriod, cfg.Acquisition.SampleRate)
	if err != nil {
		return sensor.Options{}, err
	}
	table, err := TableFromConfig(cfg.Commands)
	if err != nil {
		return sensor.Options{}, err
	}

	return sensor.Options{
		Table: table,
		Pipeline: sensor.PipelineConfig{
			Microamps:          uint8(cfg.Measurement.CurrentMicroamps),
			ReferenceOhms:      float32(cfg.Measurement.ReferenceResistor),
			ConversionTimeout:  cfg.Acquisition.ConversionTimeout,
			MinReferenceCounts: cfg.Measurement.MinReferenceCounts,
		},
		Ratio:      ratio,
		SampleRate: uint8(cfg.Acquisition.SampleRate),
		Handshake:  protocol.Handshake(HandshakeName(cfg.Commands)),
	}, nil
}

// HandshakeName returns the device name sent in reply to the connect command.
func HandshakeName(cfg config.CommandsConfig) string {
	switch {
	case cfg.Handshake != "":
		return cfg.Handshake
	case cfg.Variant == sensor.VariantThesis:
		return "Thesis"
	default:
		return sensor.DefaultHandshakeName
	}
}
