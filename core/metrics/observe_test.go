package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/solver"
)

type captureSink struct {
	plans       []PlanEvent
	transitions []TransitionEvent
	telemetry   []TelemetryEvent
	failures    []FailureEvent
}

func (c *captureSink) RecordPlan(ev PlanEvent) error {
	c.plans = append(c.plans, ev)
	return nil
}
func (c *captureSink) RecordTransition(ev TransitionEvent) error {
	c.transitions = append(c.transitions, ev)
	return nil
}
func (c *captureSink) RecordTelemetry(ev TelemetryEvent) error {
	c.telemetry = append(c.telemetry, ev)
	return nil
}
func (c *captureSink) RecordFailure(ev FailureEvent) error {
	c.failures = append(c.failures, ev)
	return nil
}

func TestObserveMapsEvents(t *testing.T) {
	now := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	plan := solver.Plan{
		Slots:           []model.ChargeSlot{{Start: now, End: now.Add(30 * time.Minute), Price: 0.07}},
		RequiredMinutes: 40,
		TotalMinutes:    30,
		TotalCost:       0.25,
	}
	evs := []events.Event{
		events.PlanComputed{Device: "zappi", Plan: plan, Compiled: []model.CompiledSlot{{SlotID: 11}}},
		events.LifecycleChanged{Device: "zappi", Transition: lifecycle.Transition{Name: "zappi_charge", From: lifecycle.Idle, To: lifecycle.Scheduled, At: now}},
		events.TelemetryUpdated{Device: "zappi", Telemetry: model.Telemetry{At: now}},
		events.RequestFailed{Device: "zappi", Op: "apply", Err: &device.CommandError{Op: "push", Status: device.StatusBusy}},
		events.BoostCancelled{Device: "zappi"},
	}
	for _, ev := range evs {
		require.NoError(t, Observe(sink, ev, now))
	}
	require.Len(t, sink.plans, 1)
	assert.Equal(t, 30, sink.plans[0].AllocatedMinutes)
	assert.Equal(t, 10, sink.plans[0].DroppedMinutes)
	assert.Equal(t, 1, sink.plans[0].CompiledSlots)
	require.Len(t, sink.transitions, 1)
	assert.Equal(t, "idle", sink.transitions[0].From)
	assert.Equal(t, "scheduled", sink.transitions[0].To)
	assert.Len(t, sink.telemetry, 1)
	require.Len(t, sink.failures, 1)
	assert.True(t, sink.failures[0].Busy)
}

func TestObservePlanOnlySink(t *testing.T) {
	sink := &planOnly{}
	ev := events.LifecycleChanged{Device: "eddi"}
	if err := Observe(sink, ev, time.Now()); err != nil {
		t.Fatalf("observe: %v", err)
	}
}
