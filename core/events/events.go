package events

import (
	"time"

	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/solver"
)

// Event is implemented only by the types in this package.
type Event interface {
	isEvent()
	// DeviceName is the configured name of the device the event concerns.
	DeviceName() string
}

// PlanComputed carries a solved and compiled plan. Seq is the request
// sequence number it answers.
type PlanComputed struct {
	Seq      uint64
	Device   string
	Plan     solver.Plan
	Compiled []model.CompiledSlot
}

// ScheduleApplied is published once a plan has been pushed.
type ScheduleApplied struct {
	Seq      uint64
	Device   string
	Slots    []model.CompiledSlot
	ClearsAt time.Time
}

// BoostApplied is published when a boost schedule has been pushed. Seq is
// the request sequence number it answers.
type BoostApplied struct {
	Seq      uint64
	Device   string
	Relay    int
	Slot     model.CompiledSlot
	ClearsAt time.Time
}

// BoostCancelled is published when boost was switched off before its end.
type BoostCancelled struct {
	Seq    uint64
	Device string
}

// LifecycleChanged reports one lifecycle transition.
type LifecycleChanged struct {
	Device     string
	Transition lifecycle.Transition
}

// OpTelemetry is the RequestFailed operation of a failed telemetry read.
const OpTelemetry = "telemetry"

// RequestFailed reports a failed request. Op is one of "compute", "apply",
// "boost", "cancel_boost", "clear" or OpTelemetry.
type RequestFailed struct {
	Seq    uint64
	Device string
	Op     string
	Err    error
}

// TelemetryUpdated carries the merged device state after a poll.
type TelemetryUpdated struct {
	Device    string
	Telemetry model.Telemetry
}

func (PlanComputed) isEvent()     {}
func (ScheduleApplied) isEvent()  {}
func (BoostApplied) isEvent()     {}
func (BoostCancelled) isEvent()   {}
func (LifecycleChanged) isEvent() {}
func (RequestFailed) isEvent()    {}
func (TelemetryUpdated) isEvent() {}

func (e PlanComputed) DeviceName() string     { return e.Device }
func (e ScheduleApplied) DeviceName() string  { return e.Device }
func (e BoostApplied) DeviceName() string     { return e.Device }
func (e BoostCancelled) DeviceName() string   { return e.Device }
func (e LifecycleChanged) DeviceName() string { return e.Device }
func (e RequestFailed) DeviceName() string    { return e.Device }
func (e TelemetryUpdated) DeviceName() string { return e.Device }

// Transitions wraps lifecycle transitions into events.
func Transitions(device string, trs []lifecycle.Transition) []Event {
	out := make([]Event, len(trs))
	for i, tr := range trs {
		out[i] = LifecycleChanged{Device: device, Transition: tr}
	}
	return out
}
