package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/slots"
	"github.com/kilianp07/energysched/core/solver"
	"github.com/kilianp07/energysched/core/store"
	"github.com/kilianp07/energysched/core/tariff"
)

// ErrBoostUnsupported is returned for boost requests on a zappi, which has
// no slot left outside its charge pool.
var ErrBoostUnsupported = errors.New("boost is only supported on an eddi")

// Config describes one scheduled device.
type Config struct {
	Name string
	Kind model.DeviceKind
	// Relay selects the eddi heater the charge schedule drives.
	Relay  int
	RateKW float64
	Grace  time.Duration
	// MergeTolerance lets the compiler merge intervals whose boundaries are
	// this close. Zero merges only exactly touching intervals.
	MergeTolerance time.Duration
	// EcoPlus switches a zappi to Eco+ before a schedule is pushed so the
	// schedule alone decides when grid energy is drawn.
	EcoPlus bool
}

// Result is a computed but not yet applied schedule.
type Result struct {
	Plan     solver.Plan          `json:"plan"`
	Compiled []model.CompiledSlot `json:"compiled"`
	Tariff   tariff.Stats         `json:"tariff"`
}

// Status is a snapshot of a device's lifecycles.
type Status struct {
	Name   string           `json:"name"`
	Kind   model.DeviceKind `json:"kind"`
	Charge lifecycle.State  `json:"charge"`
	Boost  *lifecycle.State `json:"boost,omitempty"`
}

// Scheduler plans and applies schedules for one device.
type Scheduler struct {
	cfg      Config
	client   device.Client
	tariff   TariffSource
	compiler *slots.Compiler
	charge   *lifecycle.Lifecycle
	boost    *lifecycle.Lifecycle
	log      logger.Logger
	now      func() time.Time
}

// New builds a Scheduler and restores its lifecycles from kv.
func New(ctx context.Context, cfg Config, client device.Client, src TariffSource, kv store.KV, log logger.Logger) (*Scheduler, error) {
	if cfg.Name == "" {
		cfg.Name = string(cfg.Kind)
	}
	if cfg.Grace == 0 {
		cfg.Grace = lifecycle.DefaultGrace
	}
	if cfg.Kind == model.KindEddi && cfg.Relay == 0 {
		cfg.Relay = 1
	}
	pool, err := slots.PoolFor(cfg.Kind, cfg.Relay)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	opts := []lifecycle.Option{lifecycle.WithGrace(cfg.Grace), lifecycle.WithLogger(log)}
	charge, err := lifecycle.New(ctx, cfg.Name+"_charge", kv, opts...)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:      cfg,
		client:   client,
		tariff:   src,
		compiler: slots.NewCompiler(pool, slots.WithTolerance(cfg.MergeTolerance)),
		charge:   charge,
		log:      log,
		now:      time.Now,
	}
	if cfg.Kind == model.KindEddi {
		if s.boost, err = lifecycle.New(ctx, cfg.Name+"_boost", kv, opts...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name returns the configured device name.
func (s *Scheduler) Name() string { return s.cfg.Name }

// Kind returns the device kind.
func (s *Scheduler) Kind() model.DeviceKind { return s.cfg.Kind }

// RateKW returns the configured charge or heater rate.
func (s *Scheduler) RateKW() float64 { return s.cfg.RateKW }

// Client returns the device client.
func (s *Scheduler) Client() device.Client { return s.client }

// ChargeSlotIDs lists the slot ids the charge schedule owns.
func (s *Scheduler) ChargeSlotIDs() []int { return s.compiler.SlotIDs() }

// ComputeSchedule solves req against a fresh tariff and compiles the result.
// Nothing is sent to the device.
func (s *Scheduler) ComputeSchedule(ctx context.Context, req model.ChargeRequest) (Result, error) {
	if req.RateKW == 0 {
		req.RateKW = s.cfg.RateKW
	}
	now := s.now()
	series, err := s.tariff.Series(ctx, now, req.Deadline)
	if err != nil {
		return Result{}, err
	}
	plan, err := solver.Solve(series, req, now)
	if err != nil {
		return Result{}, err
	}
	if plan.Dropped() > 0 {
		s.log.Infof("%s: %d of %d minutes dropped below the %d minute quantum",
			s.cfg.Name, plan.Dropped(), plan.RequiredMinutes, model.QuantumMinutes)
	}
	compiled, err := s.compiler.Compile(plan.Slots)
	if err != nil {
		return Result{}, err
	}
	return Result{Plan: plan, Compiled: compiled, Tariff: series.Stats()}, nil
}

// ApplySchedule pushes compiled slots and tracks them until they have run.
// A failed push leaves the lifecycle unchanged.
func (s *Scheduler) ApplySchedule(ctx context.Context, compiled []model.CompiledSlot) ([]lifecycle.Transition, error) {
	if len(compiled) == 0 {
		return nil, slots.ErrEmptySchedule
	}
	now := s.now()
	return s.charge.Apply(ctx, now, model.LastEnd(compiled), func(ctx context.Context) error {
		if s.cfg.Kind == model.KindZappi && s.cfg.EcoPlus {
			err := device.SetChargeMode(ctx, s.client, model.ChargeModeEcoPlus)
			if err != nil && !errors.Is(err, device.ErrModeUnsupported) {
				return fmt.Errorf("switch to eco+: %w", err)
			}
		}
		return s.client.Push(ctx, compiled)
	})
}

// Tick clears any schedule whose clear time has passed.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]lifecycle.Transition, error) {
	trs, err := s.charge.Tick(ctx, now, s.clearCharge)
	if s.boost != nil {
		btrs, berr := s.boost.Tick(ctx, now, s.clearBoost)
		trs = append(trs, btrs...)
		err = errors.Join(err, berr)
	}
	return trs, err
}

// ClearSchedule switches the charge schedule off immediately.
func (s *Scheduler) ClearSchedule(ctx context.Context) ([]lifecycle.Transition, error) {
	return s.charge.Cancel(ctx, s.now(), s.clearCharge)
}

// RequestBoost runs the heater on relay from the current quarter hour until
// off, using the relay's reserved boost slot.
func (s *Scheduler) RequestBoost(ctx context.Context, now, off time.Time, relay int) (model.CompiledSlot, []lifecycle.Transition, error) {
	if s.boost == nil {
		return model.CompiledSlot{}, nil, ErrBoostUnsupported
	}
	slot, err := lifecycle.BoostSchedule(now, off, relay)
	if err != nil {
		return model.CompiledSlot{}, nil, err
	}
	trs, err := s.boost.Apply(ctx, now, off, func(ctx context.Context) error {
		return s.client.Push(ctx, []model.CompiledSlot{slot})
	})
	if err != nil {
		return model.CompiledSlot{}, nil, err
	}
	return slot, trs, nil
}

// CancelBoost switches both boost slots off immediately.
func (s *Scheduler) CancelBoost(ctx context.Context, now time.Time) ([]lifecycle.Transition, error) {
	if s.boost == nil {
		return nil, ErrBoostUnsupported
	}
	return s.boost.Cancel(ctx, now, s.clearBoost)
}

// Status returns the lifecycle states.
func (s *Scheduler) Status() Status {
	st := Status{Name: s.cfg.Name, Kind: s.cfg.Kind, Charge: s.charge.State()}
	if s.boost != nil {
		b := s.boost.State()
		st.Boost = &b
	}
	return st
}

func (s *Scheduler) clearCharge(ctx context.Context) error {
	return s.client.Clear(ctx, s.compiler.SlotIDs())
}

func (s *Scheduler) clearBoost(ctx context.Context) error {
	return s.client.Clear(ctx, lifecycle.BoostSlots)
}
