package slots

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySchedule is returned when there is nothing to compile.
	ErrEmptySchedule = errors.New("no charge slots to compile")
	// ErrTooManySlots matches every TooManySlotsError.
	ErrTooManySlots = errors.New("too many schedule slots")
	// ErrDurationTooLong matches every DurationTooLongError.
	ErrDurationTooLong = errors.New("schedule slot too long")
)

// TooManySlotsError reports a schedule that needs more device slots than
// are available after coalescing.
type TooManySlotsError struct {
	Merged    int
	Available int
}

func (e *TooManySlotsError) Error() string {
	return fmt.Sprintf("schedule needs %d slots after merging but the device has %d", e.Merged, e.Available)
}

func (e *TooManySlotsError) Is(target error) bool { return target == ErrTooManySlots }

// DurationTooLongError reports a merged interval the device cannot encode.
type DurationTooLongError struct {
	Start    time.Time
	Duration time.Duration
	Max      time.Duration
}

func (e *DurationTooLongError) Error() string {
	return fmt.Sprintf("slot starting %s lasts %s, longer than the %s maximum",
		e.Start.Format(time.RFC3339), e.Duration, e.Max)
}

func (e *DurationTooLongError) Is(target error) bool { return target == ErrDurationTooLong }
