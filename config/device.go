package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/model"
)

// DeviceConfig describes one eddi or zappi on the hub.
type DeviceConfig struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Serial string `json:"serial"`
	// Relay is the eddi heater (1 or 2) driven by charge schedules.
	Relay int `json:"relay"`
	// RateKW is the power drawn while running, used for cost estimates.
	RateKW float64 `json:"rate_kw"`
	// EcoPlus switches a zappi to Eco+ before a schedule is pushed.
	EcoPlus bool `json:"eco_plus"`
	// MergeTolerance overrides the scheduler-wide value for this device.
	MergeTolerance time.Duration `json:"merge_tolerance"`
}

// DeviceKind returns the parsed kind.
func (c DeviceConfig) DeviceKind() model.DeviceKind {
	return model.DeviceKind(c.Kind)
}

// SetDefaults applies sane defaults.
func (c *DeviceConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = c.Kind
	}
	if c.Kind == string(model.KindEddi) && c.Relay == 0 {
		c.Relay = 1
	}
	if c.RateKW == 0 {
		switch c.DeviceKind() {
		case model.KindZappi:
			c.RateKW = 7
		case model.KindEddi:
			c.RateKW = 3
		}
	}
}

// Validate checks mandatory fields.
func (c DeviceConfig) Validate() error {
	switch c.DeviceKind() {
	case model.KindEddi:
		if c.Relay != 1 && c.Relay != 2 {
			return fmt.Errorf("device %s: relay must be 1 or 2", c.Name)
		}
	case model.KindZappi:
		if c.Relay != 0 {
			return fmt.Errorf("device %s: relay applies to an eddi only", c.Name)
		}
	default:
		return fmt.Errorf("device %s: unknown kind %q (eddi or zappi)", c.Name, c.Kind)
	}
	if c.Serial == "" {
		return fmt.Errorf("device %s: serial is required", c.Name)
	}
	if c.RateKW <= 0 {
		return fmt.Errorf("device %s: rate_kw must be positive", c.Name)
	}
	if c.MergeTolerance < 0 {
		return fmt.Errorf("device %s: merge_tolerance must not be negative", c.Name)
	}
	return nil
}
