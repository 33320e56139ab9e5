package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/telemetry"
	"github.com/kilianp07/energysched/infra/mqtt"
)

// SchedulerConfig holds the settings shared by every device scheduler.
type SchedulerConfig struct {
	// TickInterval is how often lifecycles are checked for expiry.
	TickInterval time.Duration `json:"tick_interval"`
	// Grace is added to the end of the last slot before clearing.
	Grace          time.Duration `json:"grace"`
	MergeTolerance time.Duration `json:"merge_tolerance"`
	// ClearDelay spaces consecutive clear commands.
	ClearDelay time.Duration `json:"clear_delay"`
	// EventBuffer is the capacity of the event inbox.
	EventBuffer int `json:"event_buffer"`
}

// SetDefaults applies sane defaults.
func (c *SchedulerConfig) SetDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.Grace == 0 {
		c.Grace = lifecycle.DefaultGrace
	}
	if c.ClearDelay == 0 {
		c.ClearDelay = mqtt.DefaultClearDelay
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
}

// Validate checks value ranges.
func (c SchedulerConfig) Validate() error {
	if c.Grace < 0 || c.MergeTolerance < 0 || c.ClearDelay < 0 {
		return fmt.Errorf("scheduler: durations must not be negative")
	}
	return nil
}

// PollConfig configures telemetry polling.
type PollConfig struct {
	Enabled *bool         `json:"enabled"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Factor  float64       `json:"factor"`
}

// SetDefaults applies sane defaults.
func (c *PollConfig) SetDefaults() {
	def := telemetry.DefaultConfig()
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	if c.Min <= 0 {
		c.Min = def.Min
	}
	if c.Max <= 0 {
		c.Max = def.Max
	}
	if c.Factor == 0 {
		c.Factor = def.Factor
	}
}

// Validate checks value ranges.
func (c PollConfig) Validate() error {
	if c.Max < c.Min {
		return fmt.Errorf("poll: max %s is below min %s", c.Max, c.Min)
	}
	if c.Factor < 1 {
		return fmt.Errorf("poll: factor must be at least 1")
	}
	return nil
}

// IsEnabled reports whether polling runs.
func (c PollConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// Telemetry converts to the poller configuration.
func (c PollConfig) Telemetry() telemetry.Config {
	return telemetry.Config{Min: c.Min, Max: c.Max, Factor: c.Factor}
}

// RetryConfig configures retries of busy device commands.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	Initial     time.Duration `json:"initial"`
	Max         time.Duration `json:"max"`
	Multiplier  float64       `json:"multiplier"`
}

// SetDefaults applies sane defaults.
func (c *RetryConfig) SetDefaults() {
	def := device.DefaultRetryPolicy()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Initial <= 0 {
		c.Initial = def.Initial
	}
	if c.Max <= 0 {
		c.Max = def.Max
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
}

// Validate checks value ranges.
func (c RetryConfig) Validate() error {
	if c.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be at least 1")
	}
	if c.Max < c.Initial {
		return fmt.Errorf("retry: max %s is below initial %s", c.Max, c.Initial)
	}
	return nil
}

// Policy converts to the device retry policy.
func (c RetryConfig) Policy() device.RetryPolicy {
	return device.RetryPolicy{MaxAttempts: c.MaxAttempts, Initial: c.Initial, Max: c.Max, Multiplier: c.Multiplier}
}
