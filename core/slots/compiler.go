// Package slots turns solver output into device schedule entries.
package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/energysched/core/model"
)

var (
	// ZappiPool lists the zappi charge schedule slots.
	ZappiPool = []int{11, 12, 13, 14}
	// EddiRelay1Pool lists the eddi slots for the first heater, excluding
	// the boost slot.
	EddiRelay1Pool = []int{11, 12, 13}
	// EddiRelay2Pool lists the eddi slots for the second heater, excluding
	// the boost slot.
	EddiRelay2Pool = []int{21, 22, 23}
)

// PoolFor returns the charge slot pool of a device. relay only matters for
// an eddi.
func PoolFor(kind model.DeviceKind, relay int) ([]int, error) {
	switch kind {
	case model.KindZappi:
		return ZappiPool, nil
	case model.KindEddi:
		switch relay {
		case 1:
			return EddiRelay1Pool, nil
		case 2:
			return EddiRelay2Pool, nil
		}
		return nil, fmt.Errorf("eddi relay %d is invalid (1 or 2)", relay)
	}
	return nil, fmt.Errorf("unknown device kind %q", kind)
}

// Compiler coalesces charge slots and maps them onto device slot ids.
type Compiler struct {
	pool      []int
	tolerance time.Duration
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTolerance merges intervals whose boundaries are at most d apart.
func WithTolerance(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.tolerance = d
		}
	}
}

// NewCompiler builds a compiler assigning ids from pool in order.
func NewCompiler(pool []int, opts ...Option) *Compiler {
	c := &Compiler{pool: append([]int(nil), pool...)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capacity is the number of slots the compiler can fill.
func (c *Compiler) Capacity() int { return min(len(c.pool), model.MaxSlots) }

// SlotIDs returns the device slot ids owned by the compiler.
func (c *Compiler) SlotIDs() []int { return append([]int(nil), c.pool[:c.Capacity()]...) }

// Coalesce sorts in by start and merges neighbours whose end and start lie
// within the tolerance. The input is not modified.
func (c *Compiler) Coalesce(in []model.ChargeSlot) []model.ChargeSlot {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]model.ChargeSlot, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []model.ChargeSlot{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		gap := s.Start.Sub(last.End)
		if gap < 0 {
			gap = -gap
		}
		if gap <= c.tolerance {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Compile produces device-ready slots. It never truncates: a schedule that
// needs more slots than the pool holds, or an interval longer than the device
// can encode, is an error.
func (c *Compiler) Compile(in []model.ChargeSlot) ([]model.CompiledSlot, error) {
	if len(in) == 0 {
		return nil, ErrEmptySchedule
	}
	merged := c.Coalesce(in)
	if len(merged) > c.Capacity() {
		return nil, &TooManySlotsError{Merged: len(merged), Available: c.Capacity()}
	}
	out := make([]model.CompiledSlot, 0, len(merged))
	for i, m := range merged {
		start := m.Start.Truncate(time.Minute)
		dur := m.End.Sub(start).Truncate(time.Minute)
		if dur > model.MaxSlotDuration {
			return nil, &DurationTooLongError{Start: start, Duration: dur, Max: model.MaxSlotDuration}
		}
		if dur <= 0 {
			return nil, fmt.Errorf("slot starting %s has no duration", start.Format(time.RFC3339))
		}
		out = append(out, model.CompiledSlot{
			SlotID:   c.pool[i],
			Start:    start,
			Duration: dur,
			Days:     model.DayOf(start),
		})
	}
	return out, nil
}

// Expand converts compiled slots back to charge slots, so a compiled schedule
// can be fed through Compile again.
func Expand(compiled []model.CompiledSlot) []model.ChargeSlot {
	out := make([]model.ChargeSlot, len(compiled))
	for i, s := range compiled {
		out[i] = model.ChargeSlot{Start: s.Start, End: s.End()}
	}
	return out
}
