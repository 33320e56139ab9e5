package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/model"
)

// Job is a blocking request run by a Worker. seq is the job's sequence
// number; the events it returns are published only if no newer job was
// submitted meanwhile.
type Job func(ctx context.Context, seq uint64) []events.Event

type queued struct {
	seq uint64
	job Job
}

// Worker runs at most one job at a time. A submitted job replaces any job
// still waiting to run, and results of superseded jobs are dropped.
type Worker struct {
	publish func(events.Event)
	log     logger.Logger

	mu      sync.Mutex
	latest  uint64
	pending *queued
	kick    chan struct{}
}

// NewWorker creates a worker publishing job results with publish.
func NewWorker(publish func(events.Event), log logger.Logger) *Worker {
	if publish == nil {
		publish = func(events.Event) {}
	}
	return &Worker{publish: publish, log: logger.OrNop(log), kick: make(chan struct{}, 1)}
}

// Submit queues job and returns its sequence number.
func (w *Worker) Submit(job Job) uint64 {
	w.mu.Lock()
	w.latest++
	seq := w.latest
	if w.pending != nil {
		w.log.Debugf("request %d superseded by %d before running", w.pending.seq, seq)
	}
	w.pending = &queued{seq: seq, job: job}
	w.mu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default:
	}
	return seq
}

// Latest returns the newest submitted sequence number.
func (w *Worker) Latest() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

func (w *Worker) take() *queued {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.pending
	w.pending = nil
	return q
}

// Run executes jobs until ctx is cancelled. A job already running when ctx
// is cancelled is not interrupted beyond what its own use of ctx allows.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.kick:
		}
		for q := w.take(); q != nil; q = w.take() {
			evs := q.job(ctx, q.seq)
			if latest := w.Latest(); q.seq < latest {
				w.log.Debugf("dropping stale result %d (latest %d)", q.seq, latest)
				continue
			}
			for _, e := range evs {
				w.publish(e)
			}
		}
	}
}

// ComputeJob computes a plan without applying it.
func (s *Scheduler) ComputeJob(req model.ChargeRequest) Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		res, err := s.ComputeSchedule(ctx, req)
		if err != nil {
			return []events.Event{events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "compute", Err: err}}
		}
		return []events.Event{events.PlanComputed{Seq: seq, Device: s.cfg.Name, Plan: res.Plan, Compiled: res.Compiled}}
	}
}

// PlanAndApplyJob computes a plan and pushes it.
func (s *Scheduler) PlanAndApplyJob(req model.ChargeRequest) Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		res, err := s.ComputeSchedule(ctx, req)
		if err != nil {
			return []events.Event{events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "compute", Err: err}}
		}
		evs := []events.Event{events.PlanComputed{Seq: seq, Device: s.cfg.Name, Plan: res.Plan, Compiled: res.Compiled}}
		return append(evs, s.applyEvents(ctx, seq, res.Compiled)...)
	}
}

// ApplyJob pushes an already compiled schedule.
func (s *Scheduler) ApplyJob(compiled []model.CompiledSlot) Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		return s.applyEvents(ctx, seq, compiled)
	}
}

func (s *Scheduler) applyEvents(ctx context.Context, seq uint64, compiled []model.CompiledSlot) []events.Event {
	trs, err := s.ApplySchedule(ctx, compiled)
	if err != nil {
		s.log.Errorf("%s: apply schedule: %v", s.cfg.Name, err)
		return []events.Event{events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "apply", Err: err}}
	}
	evs := []events.Event{events.ScheduleApplied{Seq: seq, Device: s.cfg.Name, Slots: compiled, ClearsAt: s.charge.State().ClearsAt}}
	return append(evs, events.Transitions(s.cfg.Name, trs)...)
}

// BoostJob applies a boost.
func (s *Scheduler) BoostJob(now, off time.Time, relay int) Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		slot, trs, err := s.RequestBoost(ctx, now, off, relay)
		if err != nil {
			return []events.Event{events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "boost", Err: err}}
		}
		evs := []events.Event{events.BoostApplied{Seq: seq, Device: s.cfg.Name, Relay: relay, Slot: slot, ClearsAt: s.boost.State().ClearsAt}}
		return append(evs, events.Transitions(s.cfg.Name, trs)...)
	}
}

// CancelBoostJob switches boost off.
func (s *Scheduler) CancelBoostJob(now time.Time) Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		trs, err := s.CancelBoost(ctx, now)
		evs := events.Transitions(s.cfg.Name, trs)
		if err != nil {
			return append(evs, events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "cancel_boost", Err: err})
		}
		return append([]events.Event{events.BoostCancelled{Seq: seq, Device: s.cfg.Name}}, evs...)
	}
}

// TickEvents runs Tick and wraps its outcome in events.
func (s *Scheduler) TickEvents(ctx context.Context, now time.Time) []events.Event {
	trs, err := s.Tick(ctx, now)
	evs := events.Transitions(s.cfg.Name, trs)
	if err != nil {
		s.log.Warnf("%s: clear: %v", s.cfg.Name, err)
		evs = append(evs, events.RequestFailed{Device: s.cfg.Name, Op: "clear", Err: err})
	}
	return evs
}

// ClearJob switches the charge schedule off.
func (s *Scheduler) ClearJob() Job {
	return func(ctx context.Context, seq uint64) []events.Event {
		trs, err := s.ClearSchedule(ctx)
		evs := events.Transitions(s.cfg.Name, trs)
		if err != nil {
			return append(evs, events.RequestFailed{Seq: seq, Device: s.cfg.Name, Op: "clear", Err: err})
		}
		return evs
	}
}
