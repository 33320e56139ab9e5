package model

import (
	"fmt"
	"strings"
	"time"
)

// DayMask selects the weekdays a schedule slot applies to. Bit 0 is Monday.
type DayMask uint8

const (
	Monday DayMask = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DayOf returns the single-day mask for t's weekday.
func DayOf(t time.Time) DayMask {
	idx := (int(t.Weekday()) + 6) % 7
	return Monday << idx
}

// String renders the mask in the device format: a leading 0 followed by one
// digit per day from Monday to Sunday, e.g. "01000000" for Monday.
func (m DayMask) String() string {
	var b strings.Builder
	b.WriteByte('0')
	for i := 0; i < 7; i++ {
		if m&(Monday<<i) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Weekdays lists the days set in the mask starting with Monday.
func (m DayMask) Weekdays() []time.Weekday {
	var days []time.Weekday
	for i := 0; i < 7; i++ {
		if m&(Monday<<i) != 0 {
			days = append(days, time.Weekday((i+1)%7))
		}
	}
	return days
}

// ParseDayMask parses the eight character device representation.
func ParseDayMask(s string) (DayMask, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("day mask %q must have 8 digits", s)
	}
	var m DayMask
	for i := 1; i < 8; i++ {
		switch s[i] {
		case '1':
			m |= Monday << (i - 1)
		case '0':
		default:
			return 0, fmt.Errorf("day mask %q has invalid digit %q", s, s[i])
		}
	}
	return m, nil
}
