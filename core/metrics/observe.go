package metrics

import (
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
)

// Observe records ev on whichever recorders sink implements. Events with no
// metric counterpart are ignored.
func Observe(sink MetricsSink, ev events.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.PlanComputed:
		return sink.RecordPlan(PlanEvent{
			Device:           e.Device,
			RequiredMinutes:  e.Plan.RequiredMinutes,
			AllocatedMinutes: e.Plan.TotalMinutes,
			DroppedMinutes:   e.Plan.Dropped(),
			Slots:            len(e.Plan.Slots),
			CompiledSlots:    len(e.Compiled),
			Cost:             e.Plan.TotalCost,
			Deadline:         e.Plan.Deadline,
			Time:             now,
		})
	case events.LifecycleChanged:
		if r, ok := sink.(TransitionRecorder); ok {
			return r.RecordTransition(TransitionEvent{
				Device:    e.Device,
				Lifecycle: e.Transition.Name,
				From:      e.Transition.From.String(),
				To:        e.Transition.To.String(),
				Time:      e.Transition.At,
			})
		}
	case events.TelemetryUpdated:
		if r, ok := sink.(TelemetryRecorder); ok {
			return r.RecordTelemetry(TelemetryEvent{Device: e.Device, Telemetry: e.Telemetry})
		}
	case events.RequestFailed:
		if r, ok := sink.(FailureRecorder); ok {
			msg := ""
			if e.Err != nil {
				msg = e.Err.Error()
			}
			return r.RecordFailure(FailureEvent{
				Device: e.Device,
				Op:     e.Op,
				Busy:   device.IsBusy(e.Err),
				Error:  msg,
				Time:   now,
			})
		}
	}
	return nil
}
