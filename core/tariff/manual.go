package tariff

import (
	"time"
)

// Breakpoint sets the price from a time of day until the next breakpoint.
type Breakpoint struct {
	At    Clock   `json:"at"`
	Price float64 `json:"price"`
}

// ValidateBreakpoints checks that a daily tariff starts at midnight and is
// strictly ascending.
func ValidateBreakpoints(bps []Breakpoint) error {
	if len(bps) == 0 {
		return invalid("no tariff breakpoints defined")
	}
	if bps[0].At.Minutes() != 0 {
		return invalid("the first tariff value must start at 00:00, got %s", bps[0].At)
	}
	for i, bp := range bps {
		if err := bp.At.Validate(); err != nil {
			return &InvalidTariffError{Reason: "breakpoint " + bp.At.String(), Err: err}
		}
		if bp.Price < 0 {
			return invalid("breakpoint %s has negative price %v", bp.At, bp.Price)
		}
		if i > 0 && bp.At.Minutes() <= bps[i-1].At.Minutes() {
			return invalid("tariff list is not ascending (%s is not after %s)", bp.At, bps[i-1].At)
		}
	}
	return nil
}

// priceAt returns the price in force at clock c. bps must be validated.
func priceAt(bps []Breakpoint, c Clock) float64 {
	price := bps[0].Price
	m := c.Minutes()
	for _, bp := range bps {
		if bp.At.Minutes() > m {
			break
		}
		price = bp.Price
	}
	return price
}

// FromBreakpoints synthesises a half-hourly series from a daily tariff. The
// horizon starts at the next half hour after now and runs to deadline, or
// 48 hours when deadline is zero. The last slot may straddle the deadline.
func FromBreakpoints(bps []Breakpoint, now, deadline time.Time) (*Series, error) {
	if err := ValidateBreakpoints(bps); err != nil {
		return nil, err
	}
	start := NextHalfHour(now)
	end := deadline
	if end.IsZero() {
		end = start.Add(48 * time.Hour)
	}
	var slots []Slot
	for t := start; t.Before(end); t = t.Add(SlotDuration) {
		slots = append(slots, Slot{Start: t, End: t.Add(SlotDuration), Price: priceAt(bps, ClockOf(t))})
	}
	if len(slots) == 0 {
		return nil, invalid("deadline %s is before the first tariff slot at %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return NewSeries(slots)
}
