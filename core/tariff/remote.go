package tariff

import (
	"sort"
	"time"
)

// FromRecords builds a series from provider records. Records starting before
// the next half hour are discarded and the curve is truncated at deadline, or
// at DefaultHorizon(now) when deadline is zero. Slot times are moved into
// now's location so free windows and device schedules use local clock time.
func FromRecords(records []Slot, now, deadline time.Time) (*Series, error) {
	if len(records) == 0 {
		return nil, invalid("price provider returned no records")
	}
	sorted := make([]Slot, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	start := NextHalfHour(now)
	end := deadline
	if end.IsZero() {
		end = DefaultHorizon(now)
	}
	loc := now.Location()
	var usable []Slot
	for _, r := range sorted {
		if r.Start.Before(start) || !r.Start.Before(end) {
			continue
		}
		r.Start = r.Start.In(loc)
		if r.End.IsZero() {
			r.End = r.Start.Add(SlotDuration)
		}
		r.End = r.End.In(loc)
		usable = append(usable, r)
	}
	if len(usable) == 0 {
		return nil, invalid("no usable price records between %s and %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return NewSeries(usable)
}
