// Package solver selects the cheapest tariff slots that cover a required run
// time before a deadline.
//
// Slot costs are independent and additive, so taking slots cheapest first is
// optimal for the total cost. Allocations are quantised to model.Quantum: a
// remainder shorter than one quantum is dropped rather than rounded up.
package solver

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/tariff"
)

// Plan is the outcome of a successful solve.
type Plan struct {
	// Slots are listed in allocation order, cheapest first.
	Slots           []model.ChargeSlot `json:"slots"`
	RequiredMinutes int                `json:"required_minutes"`
	TotalMinutes    int                `json:"total_minutes"`
	TotalCost       float64            `json:"total_cost"`
	Deadline        time.Time          `json:"deadline"`
}

// Dropped returns the requested minutes that were not allocated because they
// were shorter than one quantum.
func (p Plan) Dropped() int { return p.RequiredMinutes - p.TotalMinutes }

type candidate struct {
	start   time.Time
	minutes int
	price   float64
}

// Solve allocates req.RequiredMinutes across the cheapest slots of series
// that start at or after now and before the deadline. When req.Deadline is
// zero the series end is used.
func Solve(series *tariff.Series, req model.ChargeRequest, now time.Time) (Plan, error) {
	if series == nil || series.Len() == 0 {
		return Plan{}, &tariff.InvalidTariffError{Reason: "no tariff to solve against"}
	}
	if err := req.Validate(); err != nil {
		return Plan{}, fmt.Errorf("charge request: %w", err)
	}
	deadline := req.Deadline
	if deadline.IsZero() || deadline.After(series.End()) {
		deadline = series.End()
	}

	cands, available := eligible(series, now, deadline)
	if req.RequiredMinutes > available {
		return Plan{}, &InfeasibleScheduleError{
			Deadline:         deadline,
			RequiredMinutes:  req.RequiredMinutes,
			AvailableMinutes: available,
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].price < cands[j].price })

	plan := Plan{RequiredMinutes: req.RequiredMinutes, Deadline: deadline}
	var minutes, prices []float64
	remaining := req.RequiredMinutes
	for _, c := range cands {
		if remaining < model.QuantumMinutes {
			break
		}
		take := min(remaining, c.minutes)
		take -= take % model.QuantumMinutes
		if take < model.QuantumMinutes {
			continue
		}
		plan.Slots = append(plan.Slots, model.ChargeSlot{
			Start: c.start,
			End:   c.start.Add(time.Duration(take) * time.Minute),
			Price: c.price,
		})
		minutes = append(minutes, float64(take))
		prices = append(prices, c.price)
		remaining -= take
		plan.TotalMinutes += take
	}
	if len(plan.Slots) == 0 {
		return Plan{}, &InfeasibleScheduleError{Deadline: deadline, RequiredMinutes: req.RequiredMinutes, AvailableMinutes: available}
	}
	plan.TotalCost = req.RateKW / 60 * floats.Dot(minutes, prices)
	return plan, nil
}

// eligible returns the slots usable for a run between now and deadline,
// clipped to the deadline and rounded down to the quantum, in start order,
// along with their total capacity in minutes.
func eligible(series *tariff.Series, now, deadline time.Time) ([]candidate, int) {
	var out []candidate
	total := 0
	for _, s := range series.Slots() {
		if s.Start.Before(now) || !s.Start.Before(deadline) {
			continue
		}
		end := s.End
		if end.After(deadline) {
			end = deadline
		}
		mins := int(end.Sub(s.Start) / time.Minute)
		mins -= mins % model.QuantumMinutes
		if mins == 0 {
			continue
		}
		out = append(out, candidate{start: s.Start, minutes: mins, price: s.Price})
		total += mins
	}
	return out, total
}
