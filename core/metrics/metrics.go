package metrics

import (
	"time"

	"github.com/kilianp07/energysched/core/model"
)

// PlanEvent summarises one computed charge plan.
type PlanEvent struct {
	Device           string
	RequiredMinutes  int
	AllocatedMinutes int
	DroppedMinutes   int
	Slots            int
	CompiledSlots    int
	Cost             float64
	Deadline         time.Time
	Time             time.Time
}

// MetricsSink records computed plans for observability purposes.
type MetricsSink interface {
	RecordPlan(ev PlanEvent) error
}

// TransitionEvent records a schedule lifecycle state change.
type TransitionEvent struct {
	Device    string
	Lifecycle string
	From      string
	To        string
	Time      time.Time
}

// TransitionRecorder records lifecycle transitions.
type TransitionRecorder interface {
	RecordTransition(ev TransitionEvent) error
}

// TelemetryEvent is one device snapshot.
type TelemetryEvent struct {
	Device    string
	Telemetry model.Telemetry
}

// TelemetryRecorder records device snapshots.
type TelemetryRecorder interface {
	RecordTelemetry(ev TelemetryEvent) error
}

// FailureEvent describes a request that ended in error.
type FailureEvent struct {
	Device string
	Op     string
	Busy   bool
	Error  string
	Time   time.Time
}

// FailureRecorder records failed requests.
type FailureRecorder interface {
	RecordFailure(ev FailureEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPlan(PlanEvent) error             { return nil }
func (NopSink) RecordTransition(TransitionEvent) error { return nil }
func (NopSink) RecordTelemetry(TelemetryEvent) error   { return nil }
func (NopSink) RecordFailure(FailureEvent) error       { return nil }
