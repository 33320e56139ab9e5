package tariff

import "time"

// FreeWindow is a recurring period in which energy costs nothing.
type FreeWindow struct {
	Start    Clock         `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Occurrence returns the first window occurrence that has not finished by
// from. A window already in progress at from counts.
func (w FreeWindow) Occurrence(from time.Time) (time.Time, time.Time) {
	start := w.Start.On(from)
	if !start.Add(w.Duration).After(from) {
		start = w.Start.On(from.AddDate(0, 0, 1))
	}
	return start, start.Add(w.Duration)
}

// WithFreeWindow returns a copy of the series whose slots starting inside the
// next occurrence of w are priced at zero.
func (s *Series) WithFreeWindow(w FreeWindow) (*Series, error) {
	if err := w.Start.Validate(); err != nil {
		return nil, &InvalidTariffError{Reason: "free window start", Err: err}
	}
	if w.Duration <= 0 {
		return nil, invalid("free window duration must be positive, got %s", w.Duration)
	}
	from, to := w.Occurrence(s.Start())
	slots := s.Slots()
	for i, sl := range slots {
		if !sl.Start.Before(from) && sl.Start.Before(to) {
			slots[i].Price = 0
		}
	}
	return &Series{slots: slots}, nil
}
