package tariff

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotDuration is the length of one tariff slot.
const SlotDuration = 30 * time.Minute

// Clock is a time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("%q is invalid (HH:MM expected)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("%q is invalid (HH:MM expected)", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("%q is invalid (HH:MM expected)", s)
	}
	c := Clock{Hour: h, Minute: m}
	if err := c.Validate(); err != nil {
		return Clock{}, err
	}
	return c, nil
}

// Validate checks the clock is within a day.
func (c Clock) Validate() error {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%02d:%02d is not a valid time of day", c.Hour, c.Minute)
	}
	return nil
}

// Minutes returns the minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// On returns the clock time on t's calendar day in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// ClockOf returns the time of day of t.
func ClockOf(t time.Time) Clock { return Clock{Hour: t.Hour(), Minute: t.Minute()} }

// NextHalfHour returns the first half-hour boundary strictly after now.
func NextHalfHour(now time.Time) time.Time {
	next := now.Add(SlotDuration)
	min := 0
	if next.Minute() >= 30 {
		min = 30
	}
	return time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), min, 0, 0, next.Location())
}

// DeadlineAt returns the next occurrence of clock strictly after now.
func DeadlineAt(now time.Time, c Clock) time.Time {
	d := c.On(now)
	if !d.After(now) {
		d = c.On(now.AddDate(0, 0, 1))
	}
	return d
}

// DefaultHorizon is the horizon end used when no deadline is given: 48 hours
// ahead floored to the hour.
func DefaultHorizon(now time.Time) time.Time {
	end := now.Add(48 * time.Hour)
	return time.Date(end.Year(), end.Month(), end.Day(), end.Hour(), 0, 0, 0, end.Location())
}
