// Package tariff builds validated half-hourly price curves used by the
// charge window solver.
package tariff

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Slot is one fixed-length interval of the price curve.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price_per_kwh"`
}

// Series is an immutable, ordered and contiguous sequence of slots.
type Series struct {
	slots []Slot
}

// NewSeries validates slots and returns a Series holding a private copy.
func NewSeries(slots []Slot) (*Series, error) {
	if len(slots) == 0 {
		return nil, invalid("no tariff slots")
	}
	cp := make([]Slot, len(slots))
	copy(cp, slots)
	for i, s := range cp {
		if s.End.Sub(s.Start) != SlotDuration {
			return nil, invalid("slot at %s lasts %s, want %s", s.Start.Format(time.RFC3339), s.End.Sub(s.Start), SlotDuration)
		}
		if i == 0 {
			continue
		}
		prev := cp[i-1]
		if !s.Start.After(prev.Start) {
			return nil, invalid("slot at %s is not after %s", s.Start.Format(time.RFC3339), prev.Start.Format(time.RFC3339))
		}
		if !s.Start.Equal(prev.End) {
			return nil, invalid("gap between %s and %s", prev.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
		}
	}
	return &Series{slots: cp}, nil
}

// Slots returns a copy of the slots.
func (s *Series) Slots() []Slot {
	cp := make([]Slot, len(s.slots))
	copy(cp, s.slots)
	return cp
}

// Len returns the number of slots.
func (s *Series) Len() int { return len(s.slots) }

// Start returns the start of the horizon.
func (s *Series) Start() time.Time { return s.slots[0].Start }

// End returns the end of the horizon.
func (s *Series) End() time.Time { return s.slots[len(s.slots)-1].End }

// PriceAt returns the price of the slot containing t.
func (s *Series) PriceAt(t time.Time) (float64, bool) {
	i := sort.Search(len(s.slots), func(i int) bool { return s.slots[i].End.After(t) })
	if i == len(s.slots) || t.Before(s.slots[i].Start) {
		return 0, false
	}
	return s.slots[i].Price, true
}

// Stats summarises the prices in the series.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Stats returns the minimum, maximum and mean slot price.
func (s *Series) Stats() Stats {
	prices := make([]float64, len(s.slots))
	for i, sl := range s.slots {
		prices[i] = sl.Price
	}
	return Stats{Min: floats.Min(prices), Max: floats.Max(prices), Mean: stat.Mean(prices, nil)}
}
