package lifecycle

import (
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/slots"
)

// Eddi slots reserved for boost, one per heater relay. They are outside the
// charge pools so boost and planned schedules never collide.
const (
	BoostSlotRelay1 = 14
	BoostSlotRelay2 = 24
)

// BoostSlots lists every reserved boost slot.
var BoostSlots = []int{BoostSlotRelay1, BoostSlotRelay2}

// BoostSlot returns the reserved slot for a heater relay.
func BoostSlot(relay int) (int, error) {
	switch relay {
	case 1:
		return BoostSlotRelay1, nil
	case 2:
		return BoostSlotRelay2, nil
	}
	return 0, fmt.Errorf("relay %d is invalid (1 or 2)", relay)
}

// quarter truncates t to the quarter hour on its local clock.
func quarter(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%model.QuantumMinutes, 0, 0, t.Location())
}

// AlignBoost returns the start and duration of a one-shot schedule running
// from the current quarter hour until off.
func AlignBoost(now, off time.Time) (time.Time, time.Duration, error) {
	if !off.After(now) {
		return time.Time{}, 0, fmt.Errorf("boost off time %s is not after %s", off.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	start := quarter(now)
	dur := off.Sub(start).Truncate(time.Minute)
	if dur > model.MaxSlotDuration {
		return time.Time{}, 0, &slots.DurationTooLongError{Start: start, Duration: dur, Max: model.MaxSlotDuration}
	}
	return start, dur, nil
}

// BoostUntil returns the off time for a boost of minutes from now, rounded up
// to the quarter hour.
func BoostUntil(now time.Time, minutes int) (time.Time, error) {
	if minutes <= 0 {
		return time.Time{}, fmt.Errorf("boost minutes must be positive, got %d", minutes)
	}
	off := now.Add(time.Duration(minutes) * time.Minute)
	q := quarter(off)
	if q.Before(off) {
		q = q.Add(model.Quantum)
	}
	return q, nil
}

// BoostSchedule builds the compiled slot for a boost on relay.
func BoostSchedule(now, off time.Time, relay int) (model.CompiledSlot, error) {
	id, err := BoostSlot(relay)
	if err != nil {
		return model.CompiledSlot{}, err
	}
	start, dur, err := AlignBoost(now, off)
	if err != nil {
		return model.CompiledSlot{}, err
	}
	return model.CompiledSlot{SlotID: id, Start: start, Duration: dur, Days: model.DayOf(start)}, nil
}
