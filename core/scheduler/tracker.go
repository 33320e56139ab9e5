package scheduler

import (
	"sync"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/solver"
)

// PlanView is the latest plan computed for a device.
type PlanView struct {
	Seq      uint64               `json:"seq"`
	Plan     solver.Plan          `json:"plan"`
	Compiled []model.CompiledSlot `json:"compiled"`
	Applied  bool                 `json:"applied"`
}

// FailureView is the latest failed request for a device.
type FailureView struct {
	Seq   uint64    `json:"seq,omitempty"`
	Op    string    `json:"op"`
	Error string    `json:"error"`
	Busy  bool      `json:"busy"`
	At    time.Time `json:"at"`
}

// View is what the control API reports for one device.
type View struct {
	Status
	Telemetry *model.Telemetry    `json:"telemetry,omitempty"`
	Plan      *PlanView           `json:"plan,omitempty"`
	BoostSlot *model.CompiledSlot `json:"boost_slot,omitempty"`
	LastError *FailureView        `json:"last_error,omitempty"`
}

type tracked struct {
	telemetry *model.Telemetry
	plan      *PlanView
	boost     *model.CompiledSlot
	failure   *FailureView
}

// Tracker folds published events into per-device views. It is fed by the
// single event consumer and read by the API.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*tracked
	now     func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{devices: map[string]*tracked{}, now: time.Now}
}

func (t *Tracker) get(name string) *tracked {
	d, ok := t.devices[name]
	if !ok {
		d = &tracked{}
		t.devices[name] = d
	}
	return d
}

// Observe records ev.
func (t *Tracker) Observe(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.get(ev.DeviceName())
	switch e := ev.(type) {
	case events.PlanComputed:
		d.plan = &PlanView{Seq: e.Seq, Plan: e.Plan, Compiled: e.Compiled}
	case events.ScheduleApplied:
		if d.plan == nil || d.plan.Seq != e.Seq {
			d.plan = &PlanView{Seq: e.Seq, Compiled: e.Slots}
		}
		d.plan.Applied = true
		d.failure = nil
	case events.BoostApplied:
		slot := e.Slot
		d.boost = &slot
		d.failure = nil
	case events.BoostCancelled:
		d.boost = nil
	case events.TelemetryUpdated:
		tel := e.Telemetry
		d.telemetry = &tel
	case events.RequestFailed:
		if e.Op == events.OpTelemetry {
			return
		}
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		d.failure = &FailureView{Seq: e.Seq, Op: e.Op, Error: msg, Busy: device.IsBusy(e.Err), At: t.now()}
	}
}

// View merges the tracked events with the scheduler's lifecycle state.
func (t *Tracker) View(s *Scheduler) View {
	v := View{Status: s.Status()}
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devices[s.Name()]
	if !ok {
		return v
	}
	v.Telemetry = d.telemetry
	v.Plan = d.plan
	v.LastError = d.failure
	if v.Boost != nil && v.Boost.Status == lifecycle.Scheduled {
		v.BoostSlot = d.boost
	}
	return v
}
