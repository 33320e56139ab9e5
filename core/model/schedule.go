package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// Quantum is the smallest run time the devices act on and the grid their
	// schedule start times are aligned to.
	Quantum = 15 * time.Minute
	// QuantumMinutes is Quantum expressed in minutes.
	QuantumMinutes = 15
	// MaxSlots is the number of independently programmable schedule slots a
	// device exposes.
	MaxSlots = 4
	// MaxSlotDuration is the longest duration a single schedule slot can encode.
	MaxSlotDuration = 9*time.Hour + 59*time.Minute
)

// ErrInvalidRequest matches every ChargeRequest validation failure.
var ErrInvalidRequest = errors.New("invalid charge request")

// ChargeRequest describes how long a device must run and by when.
type ChargeRequest struct {
	RequiredMinutes int
	RateKW          float64
	// Deadline is the time by which the run must be complete. A zero value
	// means the run may use the whole tariff horizon.
	Deadline time.Time
}

// Validate checks the request fields that do not depend on a tariff. A run
// shorter than one quantum cannot be scheduled. Longer runs that are not a
// multiple of the quantum are accepted and their remainder is dropped by the
// solver; see ValidateQuantised for the stricter check.
func (r ChargeRequest) Validate() error {
	if r.RequiredMinutes < QuantumMinutes {
		return fmt.Errorf("%w: required minutes must be at least %d, got %d", ErrInvalidRequest, QuantumMinutes, r.RequiredMinutes)
	}
	if r.RateKW <= 0 || math.IsNaN(r.RateKW) || math.IsInf(r.RateKW, 0) {
		return fmt.Errorf("%w: charge rate must be a positive number of kW, got %v", ErrInvalidRequest, r.RateKW)
	}
	return nil
}

// ValidateQuantised is Validate plus the requirement that RequiredMinutes is
// a whole number of quanta. Requests entering through a request file or the
// HTTP API are held to it.
func (r ChargeRequest) ValidateQuantised() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.RequiredMinutes%QuantumMinutes != 0 {
		return fmt.Errorf("%w: required minutes must be a multiple of %d, got %d", ErrInvalidRequest, QuantumMinutes, r.RequiredMinutes)
	}
	return nil
}

// ChargeRequestFromSoC builds a request from battery percentages. The energy
// gap between current and target charge is converted to minutes at rateKW and
// rounded down to the quantum so the charger is never cycled faster than the
// hardware allows. The target is taken at the top of its whole percent.
func ChargeRequestFromSoC(currentPct, targetPct, batteryKWh, rateKW float64, deadline time.Time) (ChargeRequest, error) {
	if targetPct > 100 {
		return ChargeRequest{}, fmt.Errorf("target charge %.1f%% cannot be greater than 100%%", targetPct)
	}
	if currentPct > 100 {
		return ChargeRequest{}, fmt.Errorf("current charge %.1f%% cannot be greater than 100%%", currentPct)
	}
	if batteryKWh <= 0 {
		return ChargeRequest{}, fmt.Errorf("battery capacity must be greater than 0 kWh")
	}
	if rateKW <= 0 {
		return ChargeRequest{}, fmt.Errorf("charge rate must be greater than 0 kW")
	}
	target := math.Trunc(targetPct) + 0.99
	if currentPct >= target {
		return ChargeRequest{}, fmt.Errorf("current charge %.1f%% already meets target %.1f%%", currentPct, target)
	}
	energy := (target - currentPct) / 100 * batteryKWh
	mins := int(energy / rateKW * 60)
	mins -= mins % QuantumMinutes
	if mins <= 0 {
		return ChargeRequest{}, fmt.Errorf("required charge %.2f kWh is less than %d minutes at %.1f kW", energy, QuantumMinutes, rateKW)
	}
	return ChargeRequest{RequiredMinutes: mins, RateKW: rateKW, Deadline: deadline}, nil
}

// ChargeSlot is one interval selected by the solver.
type ChargeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price_per_kwh"`
}

// Minutes returns the slot length in whole minutes.
func (s ChargeSlot) Minutes() int { return int(s.End.Sub(s.Start) / time.Minute) }

// CompiledSlot is a device-ready schedule entry.
type CompiledSlot struct {
	SlotID   int           `json:"slot_id"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Days     DayMask       `json:"days"`
}

// End returns the time the slot switches the device off.
func (s CompiledSlot) End() time.Time { return s.Start.Add(s.Duration) }

// DurationHM splits the slot duration into hours and minutes as the device
// encodes it.
func (s CompiledSlot) DurationHM() (int, int) {
	mins := int(s.Duration / time.Minute)
	return mins / 60, mins % 60
}

// LastEnd returns the latest end time across slots.
func LastEnd(slots []CompiledSlot) time.Time {
	var end time.Time
	for _, s := range slots {
		if e := s.End(); e.After(end) {
			end = e
		}
	}
	return end
}
