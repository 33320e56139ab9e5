package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/energysched/core/history"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/scheduler"
	"github.com/kilianp07/energysched/infra/httpapi"
	"github.com/kilianp07/energysched/infra/myenergi"
)

// The methods below make Service the controller behind the HTTP API. Charge
// and boost requests are validated here and run by the device workers.

func (s *Service) unit(name string) (*unit, error) {
	u, ok := s.units[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", httpapi.ErrUnknownDevice, name)
	}
	return u, nil
}

func invalid(err error) error { return fmt.Errorf("%w: %v", httpapi.ErrInvalidRequest, err) }

// Devices lists the configured device names in configuration order.
func (s *Service) Devices() []string { return s.order }

// View reports the lifecycle state, latest plan and telemetry of a device.
func (s *Service) View(name string) (scheduler.View, error) {
	u, err := s.unit(name)
	if err != nil {
		return scheduler.View{}, err
	}
	return s.tracker.View(u.sched), nil
}

// Plan queues a plan computation without applying it.
func (s *Service) Plan(name string, rf scheduler.RequestFile) (uint64, error) {
	return s.submitCharge(name, rf, (*scheduler.Scheduler).ComputeJob)
}

// Apply queues a plan computation that is pushed to the device once solved.
func (s *Service) Apply(name string, rf scheduler.RequestFile) (uint64, error) {
	return s.submitCharge(name, rf, (*scheduler.Scheduler).PlanAndApplyJob)
}

func (s *Service) submitCharge(name string, rf scheduler.RequestFile, job func(*scheduler.Scheduler, model.ChargeRequest) scheduler.Job) (uint64, error) {
	u, err := s.unit(name)
	if err != nil {
		return 0, err
	}
	req, err := rf.ChargeRequest(s.now(), u.sched.RateKW())
	if err != nil {
		return 0, invalid(err)
	}
	return u.charge.Submit(job(u.sched, req)), nil
}

// ClearCharge queues switching the charge schedule off.
func (s *Service) ClearCharge(name string) (uint64, error) {
	u, err := s.unit(name)
	if err != nil {
		return 0, err
	}
	return u.charge.Submit(u.sched.ClearJob()), nil
}

// Boost queues an immediate heater boost.
func (s *Service) Boost(name string, req scheduler.BoostRequest) (uint64, error) {
	u, err := s.unit(name)
	if err != nil {
		return 0, err
	}
	if u.boost == nil {
		return 0, scheduler.ErrBoostUnsupported
	}
	now := s.now()
	off, err := req.OffTime(now)
	if err != nil {
		return 0, invalid(err)
	}
	relay := req.RelayOrDefault()
	if relay != 1 && relay != 2 {
		return 0, invalid(fmt.Errorf("relay %d is not 1 or 2", relay))
	}
	return u.boost.Submit(u.sched.BoostJob(now, off, relay)), nil
}

// CancelBoost queues switching both boost slots off.
func (s *Service) CancelBoost(name string) (uint64, error) {
	u, err := s.unit(name)
	if err != nil {
		return 0, err
	}
	if u.boost == nil {
		return 0, scheduler.ErrBoostUnsupported
	}
	return u.boost.Submit(u.sched.CancelBoostJob(s.now())), nil
}

// Schedules reads the slots currently programmed on a device.
func (s *Service) Schedules(ctx context.Context, name string) ([]myenergi.ScheduleEntry, error) {
	u, err := s.unit(name)
	if err != nil {
		return nil, err
	}
	return u.bridge.Schedules(ctx)
}

// History returns recorded scheduler outcomes. It is empty when history is
// disabled.
func (s *Service) History(ctx context.Context, q history.Query) ([]history.Record, error) {
	if q.Device != "" {
		if _, err := s.unit(q.Device); err != nil {
			return nil, err
		}
	}
	if s.history == nil {
		return []history.Record{}, nil
	}
	return s.history.Query(ctx, q)
}

var _ httpapi.Controller = (*Service)(nil)
