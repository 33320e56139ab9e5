package scheduler

import (
	"context"
	"errors"
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

func TestTrackerPlanThenApply(t *testing.T) {
	s := newScheduler(t, Config{Name: "car", Kind: model.KindZappi, RateKW: 7}, device.NewMockClient(), nil)
	tr := NewTracker()
	compiled := []model.CompiledSlot{{SlotID: 11, Start: now.Add(time.Hour), Duration: time.Hour}}
	tr.Observe(events.PlanComputed{Seq: 4, Device: "car", Plan: solver.Plan{TotalMinutes: 60}, Compiled: compiled})
	v := tr.View(s)
	require.NotNil(t, v.Plan)
	assert.False(t, v.Plan.Applied)

	tr.Observe(events.RequestFailed{Seq: 4, Device: "car", Op: "apply", Err: &device.CommandError{Op: "push", Status: device.StatusBusy}})
	v = tr.View(s)
	require.NotNil(t, v.LastError)
	assert.True(t, v.LastError.Busy)

	tr.Observe(events.ScheduleApplied{Seq: 4, Device: "car", Slots: compiled})
	v = tr.View(s)
	assert.True(t, v.Plan.Applied)
	assert.Equal(t, 60, v.Plan.Plan.TotalMinutes)
	assert.Nil(t, v.LastError)
	assert.Equal(t, "car", v.Name)
}

func TestTrackerIgnoresTelemetryFailures(t *testing.T) {
	s := newScheduler(t, Config{Name: "car", Kind: model.KindZappi, RateKW: 7}, device.NewMockClient(), nil)
	tr := NewTracker()
	tr.Observe(events.RequestFailed{Device: "car", Op: "telemetry", Err: errors.New("timeout")})
	tr.Observe(events.TelemetryUpdated{Device: "car", Telemetry: model.Telemetry{At: now, Zappi: &model.ZappiStatus{ChargeWatts: 7000}}})
	v := tr.View(s)
	assert.Nil(t, v.LastError)
	require.NotNil(t, v.Telemetry)
	assert.True(t, v.Telemetry.Charging())
}

func TestTrackerBoostSlotFollowsLifecycle(t *testing.T) {
	s := newScheduler(t, Config{Name: "tank", Kind: model.KindEddi, RateKW: 3}, device.NewMockClient(), nil)
	tr := NewTracker()
	for _, ev := range s.BoostJob(now, now.Add(time.Hour), 1)(context.Background(), 1) {
		tr.Observe(ev)
	}
	v := tr.View(s)
	require.NotNil(t, v.Boost)
	assert.Equal(t, lifecycle.Scheduled, v.Boost.Status)
	require.NotNil(t, v.BoostSlot)
	assert.Equal(t, lifecycle.BoostSlotRelay1, v.BoostSlot.SlotID)

	for _, ev := range s.CancelBoostJob(now.Add(time.Minute))(context.Background(), 2) {
		tr.Observe(ev)
	}
	v = tr.View(s)
	assert.Nil(t, v.BoostSlot)
	assert.Equal(t, lifecycle.Idle, v.Boost.Status)
}

func TestClearJob(t *testing.T) {
	m := device.NewMockClient()
	s := newScheduler(t, Config{Name: "car", Kind: model.KindZappi, RateKW: 7}, m, nil)
	_, err := s.ApplySchedule(context.Background(), []model.CompiledSlot{{SlotID: 11, Start: now.Add(time.Hour), Duration: time.Hour}})
	require.NoError(t, err)
	evs := s.ClearJob()(context.Background(), 9)
	require.Len(t, evs, 2)
	last, ok := evs[1].(events.LifecycleChanged)
	require.True(t, ok)
	assert.Equal(t, lifecycle.Idle, last.Transition.To)
	_, _, cleared := m.Snapshot()
	require.Len(t, cleared, 1)
	assert.Equal(t, []int{11, 12, 13, 14}, cleared[0])
}
