package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/tariff"
	"github.com/kilianp07/energysched/infra/octopus"
)

// BreakpointConfig is one step of a manual daily tariff.
type BreakpointConfig struct {
	At    string  `json:"at"`
	Price float64 `json:"price"`
}

// FreeWindowConfig declares a daily free-energy window.
type FreeWindowConfig struct {
	Start    string        `json:"start"`
	Duration time.Duration `json:"duration"`
}

// TariffConfig selects where prices come from.
type TariffConfig struct {
	// Source is "agile" for Octopus Agile rates or "manual" for breakpoints.
	Source      string             `json:"source"`
	Region      string             `json:"region"`
	Octopus     octopus.Config     `json:"octopus"`
	Breakpoints []BreakpointConfig `json:"breakpoints"`
	FreeWindow  *FreeWindowConfig  `json:"free_window"`
}

// SetDefaults applies sane defaults.
func (c *TariffConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = "manual"
	}
}

// Validate checks the source and parses every clock value.
func (c TariffConfig) Validate() error {
	switch c.Source {
	case "agile":
		if !octopus.ValidRegion(c.Region) {
			return fmt.Errorf("tariff: region %q is invalid", c.Region)
		}
	case "manual":
		bps, err := c.ParsedBreakpoints()
		if err != nil {
			return err
		}
		if err := tariff.ValidateBreakpoints(bps); err != nil {
			return fmt.Errorf("tariff: %w", err)
		}
	default:
		return fmt.Errorf("tariff: unknown source %q (agile or manual)", c.Source)
	}
	if _, err := c.ParsedFreeWindow(); err != nil {
		return err
	}
	return nil
}

// ParsedBreakpoints converts the configured breakpoints.
func (c TariffConfig) ParsedBreakpoints() ([]tariff.Breakpoint, error) {
	out := make([]tariff.Breakpoint, 0, len(c.Breakpoints))
	for _, b := range c.Breakpoints {
		at, err := tariff.ParseClock(b.At)
		if err != nil {
			return nil, fmt.Errorf("tariff breakpoint: %w", err)
		}
		out = append(out, tariff.Breakpoint{At: at, Price: b.Price})
	}
	return out, nil
}

// ParsedFreeWindow converts the free window, returning nil when none is set.
func (c TariffConfig) ParsedFreeWindow() (*tariff.FreeWindow, error) {
	if c.FreeWindow == nil || c.FreeWindow.Duration == 0 {
		return nil, nil
	}
	start, err := tariff.ParseClock(c.FreeWindow.Start)
	if err != nil {
		return nil, fmt.Errorf("tariff free_window: %w", err)
	}
	if c.FreeWindow.Duration < 0 || c.FreeWindow.Duration > 24*time.Hour {
		return nil, fmt.Errorf("tariff free_window: duration %s is outside (0, 24h]", c.FreeWindow.Duration)
	}
	return &tariff.FreeWindow{Start: start, Duration: c.FreeWindow.Duration}, nil
}
